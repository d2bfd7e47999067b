package notices

import "time"

type ComponentKind string

const (
	ComponentAlert    ComponentKind = "alert"
	ComponentDocument ComponentKind = "document"
)

// NoticeComponent references the stored bytes of one part of a notice.
type NoticeComponent struct {
	NoticeID    string        `gorm:"column:notice_id;type:text;primaryKey" json:"noticeId"`
	Component   ComponentKind `gorm:"column:component;type:text;primaryKey" json:"component"`
	StorageKey  string        `gorm:"column:storage_key;type:text;not null" json:"storageKey"`
	ContentType string        `gorm:"column:content_type;type:text" json:"contentType"`
	SizeBytes   int64         `gorm:"column:size_bytes" json:"sizeBytes"`
	SHA256      string        `gorm:"column:sha256;type:text" json:"sha256"`
	IPFSHash    *string       `gorm:"column:ipfs_hash;type:text" json:"ipfsHash,omitempty"`
	SealedKey   []byte        `gorm:"column:sealed_key" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}

func (NoticeComponent) TableName() string { return "notice_components" }

package notices

import (
	"time"

	"gorm.io/datatypes"
)

type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusSuccess    BatchStatus = "success"
	BatchStatusPartial    BatchStatus = "partial"
	BatchStatusFailed     BatchStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusSuccess, BatchStatusPartial, BatchStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition enforces processing -> terminal, never backwards.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	if s == next {
		return true
	}
	return s == BatchStatusProcessing && next.Terminal()
}

type BatchUpload struct {
	BatchID        string         `gorm:"column:batch_id;type:text;primaryKey" json:"batchId"`
	ServerAddress  string         `gorm:"column:server_address;type:text;not null;index" json:"serverAddress"`
	RecipientCount int            `gorm:"column:recipient_count;not null;default:0" json:"recipientCount"`
	Status         BatchStatus    `gorm:"column:status;type:text;not null;default:'processing'" json:"status"`
	Metadata       datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}

func (BatchUpload) TableName() string { return "batch_uploads" }

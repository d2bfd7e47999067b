package notices

import "time"

// ServedNotice is one (recipient, case) pair inside a batch.
// NoticeID is text; the column was widened from INTEGER after 32-bit overflow.
type ServedNotice struct {
	NoticeID         string  `gorm:"column:notice_id;type:text;primaryKey" json:"noticeId"`
	ServerAddress    string  `gorm:"column:server_address;type:text;not null;index" json:"serverAddress"`
	RecipientAddress string  `gorm:"column:recipient_address;type:text;not null;index" json:"recipientAddress"`
	NoticeType       string  `gorm:"column:notice_type;type:text" json:"noticeType"`
	CaseNumber       string  `gorm:"column:case_number;type:text;index" json:"caseNumber"`
	AlertID          string  `gorm:"column:alert_id;type:text" json:"alertId"`
	DocumentID       string  `gorm:"column:document_id;type:text" json:"documentId"`
	IssuingAgency    string  `gorm:"column:issuing_agency;type:text" json:"issuingAgency"`
	HasDocument      bool    `gorm:"column:has_document;not null;default:false" json:"hasDocument"`
	IPFSHash         *string `gorm:"column:ipfs_hash;type:text" json:"ipfsHash,omitempty"`
	BatchID          string  `gorm:"column:batch_id;type:text;not null;index" json:"batchId"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}

func (ServedNotice) TableName() string { return "served_notices" }

// UpsertColumns are overwritten when a notice_id is resubmitted.
var ServedNoticeUpsertColumns = []string{
	"server_address",
	"recipient_address",
	"notice_type",
	"case_number",
	"alert_id",
	"document_id",
	"issuing_agency",
	"has_document",
	"ipfs_hash",
	"batch_id",
	"updated_at",
}

package notices

import "time"

type ItemStatus string

const (
	ItemStatusSuccess ItemStatus = "success"
	ItemStatusFailed  ItemStatus = "failed"
)

// NoticeBatchItem is written once per recipient and never updated.
type NoticeBatchItem struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchID   string     `gorm:"column:batch_id;type:text;not null;index;uniqueIndex:ux_batch_item_notice,priority:1" json:"batchId"`
	NoticeID  string     `gorm:"column:notice_id;type:text;not null;uniqueIndex:ux_batch_item_notice,priority:2" json:"noticeId"`
	Recipient string     `gorm:"column:recipient;type:text;not null" json:"recipient"`
	Status    ItemStatus `gorm:"column:status;type:text;not null" json:"status"`
	Error     *string    `gorm:"column:error;type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
}

func (NoticeBatchItem) TableName() string { return "notice_batch_items" }

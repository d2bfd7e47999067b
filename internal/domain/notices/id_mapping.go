package notices

import "time"

// IDMapping persists external string id <-> safe integer id pairs.
type IDMapping struct {
	ExternalID string    `gorm:"column:external_id;type:text;primaryKey" json:"externalId"`
	SafeID     int64     `gorm:"column:safe_id;not null;uniqueIndex" json:"safeId"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
}

func (IDMapping) TableName() string { return "id_mappings" }

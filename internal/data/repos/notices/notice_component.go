package notices

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

type NoticeComponentRepo interface {
	Upsert(dbc dbctx.Context, component *types.NoticeComponent) error
	GetByNoticeID(dbc dbctx.Context, noticeID string) ([]*types.NoticeComponent, error)
}

type noticeComponentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNoticeComponentRepo(db *gorm.DB, baseLog *logger.Logger) NoticeComponentRepo {
	repoLog := baseLog.With("repo", "NoticeComponentRepo")
	return &noticeComponentRepo{db: db, log: repoLog}
}

func (r *noticeComponentRepo) Upsert(dbc dbctx.Context, component *types.NoticeComponent) error {
	if component == nil || component.NoticeID == "" || component.Component == "" {
		return fmt.Errorf("notice component requires notice_id and component")
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "notice_id"}, {Name: "component"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"storage_key",
				"content_type",
				"size_bytes",
				"sha256",
				"ipfs_hash",
				"sealed_key",
				"updated_at",
			}),
		}).
		Create(component).Error
}

func (r *noticeComponentRepo) GetByNoticeID(dbc dbctx.Context, noticeID string) ([]*types.NoticeComponent, error) {
	var out []*types.NoticeComponent
	if err := dbc.Conn(r.db).
		Where("notice_id = ?", noticeID).
		Order("component ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

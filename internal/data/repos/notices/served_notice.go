package notices

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

type ServedNoticeRepo interface {
	// Upsert inserts the notice or overwrites every non-key column of an
	// existing row with the same notice_id (last writer wins).
	Upsert(dbc dbctx.Context, notice *types.ServedNotice) error
	GetByNoticeID(dbc dbctx.Context, noticeID string) (*types.ServedNotice, error)
	GetByBatchID(dbc dbctx.Context, batchID string) ([]*types.ServedNotice, error)
}

type servedNoticeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewServedNoticeRepo(db *gorm.DB, baseLog *logger.Logger) ServedNoticeRepo {
	repoLog := baseLog.With("repo", "ServedNoticeRepo")
	return &servedNoticeRepo{db: db, log: repoLog}
}

func (r *servedNoticeRepo) Upsert(dbc dbctx.Context, notice *types.ServedNotice) error {
	if notice == nil || notice.NoticeID == "" {
		return fmt.Errorf("served notice requires notice_id")
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "notice_id"}},
			DoUpdates: clause.AssignmentColumns(types.ServedNoticeUpsertColumns),
		}).
		Create(notice).Error
}

func (r *servedNoticeRepo) GetByNoticeID(dbc dbctx.Context, noticeID string) (*types.ServedNotice, error) {
	var out types.ServedNotice
	if err := dbc.Conn(r.db).Where("notice_id = ?", noticeID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *servedNoticeRepo) GetByBatchID(dbc dbctx.Context, batchID string) ([]*types.ServedNotice, error) {
	var out []*types.ServedNotice
	if err := dbc.Conn(r.db).
		Where("batch_id = ?", batchID).
		Order("created_at ASC, notice_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

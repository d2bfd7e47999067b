package notices

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

type NoticeBatchItemRepo interface {
	// Upsert keeps one row per (batch_id, notice_id); a resubmitted item
	// takes the latest recipient, status and error.
	Upsert(dbc dbctx.Context, items []*types.NoticeBatchItem) ([]*types.NoticeBatchItem, error)
	GetByBatchID(dbc dbctx.Context, batchID string) ([]*types.NoticeBatchItem, error)
	CountByStatus(dbc dbctx.Context, batchID string, status types.ItemStatus) (int64, error)
}

type noticeBatchItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNoticeBatchItemRepo(db *gorm.DB, baseLog *logger.Logger) NoticeBatchItemRepo {
	repoLog := baseLog.With("repo", "NoticeBatchItemRepo")
	return &noticeBatchItemRepo{db: db, log: repoLog}
}

func (r *noticeBatchItemRepo) Upsert(dbc dbctx.Context, items []*types.NoticeBatchItem) ([]*types.NoticeBatchItem, error) {
	if len(items) == 0 {
		return []*types.NoticeBatchItem{}, nil
	}
	err := dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}, {Name: "notice_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"recipient", "status", "error"}),
		}).
		Create(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *noticeBatchItemRepo) GetByBatchID(dbc dbctx.Context, batchID string) ([]*types.NoticeBatchItem, error) {
	var out []*types.NoticeBatchItem
	if err := dbc.Conn(r.db).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *noticeBatchItemRepo) CountByStatus(dbc dbctx.Context, batchID string, status types.ItemStatus) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).
		Model(&types.NoticeBatchItem{}).
		Where("batch_id = ? AND status = ?", batchID, status).
		Count(&n).Error
	return n, err
}

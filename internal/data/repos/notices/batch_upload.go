package notices

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

type BatchUploadRepo interface {
	Upsert(dbc dbctx.Context, batch *types.BatchUpload) error
	GetByID(dbc dbctx.Context, batchID string) (*types.BatchUpload, error)
	UpdateStatus(dbc dbctx.Context, batchID string, status types.BatchStatus) error
}

type batchUploadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchUploadRepo(db *gorm.DB, baseLog *logger.Logger) BatchUploadRepo {
	repoLog := baseLog.With("repo", "BatchUploadRepo")
	return &batchUploadRepo{db: db, log: repoLog}
}

func (r *batchUploadRepo) Upsert(dbc dbctx.Context, batch *types.BatchUpload) error {
	if batch == nil || batch.BatchID == "" {
		return fmt.Errorf("batch upload requires batch_id")
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "batch_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"server_address",
				"recipient_count",
				"status",
				"metadata",
				"updated_at",
			}),
		}).
		Create(batch).Error
}

func (r *batchUploadRepo) GetByID(dbc dbctx.Context, batchID string) (*types.BatchUpload, error) {
	var out types.BatchUpload
	if err := dbc.Conn(r.db).Where("batch_id = ?", batchID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *batchUploadRepo) UpdateStatus(dbc dbctx.Context, batchID string, status types.BatchStatus) error {
	res := dbc.Conn(r.db).
		Model(&types.BatchUpload{}).
		Where("batch_id = ?", batchID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

package notices

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

type IDMappingRepo interface {
	// Save keeps the first mapping written for an external id and
	// returns the row that won.
	Save(dbc dbctx.Context, externalID string, safeID int64) (*types.IDMapping, error)
	GetByExternalID(dbc dbctx.Context, externalID string) (*types.IDMapping, error)
	GetBySafeID(dbc dbctx.Context, safeID int64) (*types.IDMapping, error)
}

type idMappingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIDMappingRepo(db *gorm.DB, baseLog *logger.Logger) IDMappingRepo {
	repoLog := baseLog.With("repo", "IDMappingRepo")
	return &idMappingRepo{db: db, log: repoLog}
}

func (r *idMappingRepo) Save(dbc dbctx.Context, externalID string, safeID int64) (*types.IDMapping, error) {
	row := &types.IDMapping{ExternalID: externalID, SafeID: safeID}
	if err := dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetByExternalID(dbc, externalID)
}

func (r *idMappingRepo) GetByExternalID(dbc dbctx.Context, externalID string) (*types.IDMapping, error) {
	var out types.IDMapping
	err := dbc.Conn(r.db).Where("external_id = ?", externalID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *idMappingRepo) GetBySafeID(dbc dbctx.Context, safeID int64) (*types.IDMapping, error) {
	var out types.IDMapping
	err := dbc.Conn(r.db).Where("safe_id = ?", safeID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

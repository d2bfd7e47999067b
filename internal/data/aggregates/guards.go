package aggregates

import (
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
)

// StatusGuard applies compare-and-set status transitions on rows keyed by a
// text column.
type StatusGuard struct {
	db *gorm.DB
}

func NewStatusGuard(db *gorm.DB) StatusGuard {
	return StatusGuard{db: db}
}

func (g StatusGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, ValidationError("missing db transaction context")
}

// Transition updates the row where keyColumn = key only while its status is
// one of allowed. ok is false when no row matched.
func (g StatusGuard) Transition(dbc dbctx.Context, table, keyColumn, key string, allowed []string, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	keyColumn = strings.TrimSpace(keyColumn)
	if table == "" || keyColumn == "" || strings.TrimSpace(key) == "" {
		return false, ValidationError("table, key column and key are required for Transition")
	}
	if len(allowed) == 0 {
		return false, ValidationError("allowed statuses must not be empty")
	}
	if len(updates) == 0 {
		return false, ValidationError("updates must not be empty")
	}
	res := db.Table(table).
		Where(keyColumn+" = ? AND status IN ?", key, allowed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}

package aggregates

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
)

// TxRunner provides a shared transaction boundary primitive for aggregate writes.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

// NewGormTxRunner returns a transaction runner backed by GORM transactions.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return NewError(CodeInternal, "aggregate.tx", "transaction runner has nil db", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

// Savepoint runs fn inside a nested transaction of dbc.Tx. A failure rolls
// back only the savepoint; the outer transaction stays usable.
func Savepoint(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	if dbc.Tx == nil {
		return NewError(CodeInternal, "aggregate.savepoint", "savepoint requires an open transaction", nil)
	}
	return dbc.Tx.Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}

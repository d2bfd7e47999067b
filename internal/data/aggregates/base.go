package aggregates

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
)

// WriteDeps is what a guarded multi-table write needs. Zero values fall back
// to a GORM runner over DB and no-op hooks.
type WriteDeps struct {
	DB     *gorm.DB
	Runner TxRunner
	Hooks  Hooks
}

func (d WriteDeps) withDefaults() WriteDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	return d
}

// ExecuteWrite runs fn in one transaction and returns the failure mapped to
// an *Error. The cause chain is kept so Diagnose still sees driver errors.
func ExecuteWrite(ctx context.Context, deps WriteDeps, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.write"
	}
	err := deps.Runner.InTx(ctx, fn)
	mapped := MapError(op, err)

	status := "success"
	if mapped != nil {
		status = writeStatus(mapped)
		switch CodeOf(mapped) {
		case CodeConflict:
			deps.Hooks.IncConflict(op)
		case CodeRetryable:
			deps.Hooks.IncRetry(op)
		}
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return mapped
}

func writeStatus(err error) string {
	if err == nil {
		return "success"
	}
	code := strings.TrimSpace(string(CodeOf(err)))
	if code == "" {
		code = strings.TrimSpace(string(CodeOf(MapError("aggregate.status", err))))
	}
	if code == "" {
		return "failure"
	}
	return code
}

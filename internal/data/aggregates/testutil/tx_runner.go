package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/noticeserve-backend/internal/data/aggregates"
	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
)

// InjectedTxRunner injects failures around a transaction. With Inner set the
// body runs in a real transaction, and FailCommit is returned from inside it
// so everything the body wrote is rolled back.
type InjectedTxRunner struct {
	Inner aggregates.TxRunner

	mu sync.Mutex

	FailBegin      error
	FailBeforeBody error
	FailCommit     error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin := r.FailBegin
	failBeforeBody := r.FailBeforeBody
	failCommit := r.FailCommit
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	if failBeforeBody != nil {
		r.rolledBack()
		return failBeforeBody
	}

	body := func(dbc dbctx.Context) error {
		if fn != nil {
			if err := fn(dbc); err != nil {
				return err
			}
		}
		return failCommit
	}
	var err error
	if r.Inner != nil {
		err = r.Inner.InTx(ctx, body)
	} else {
		err = body(dbctx.Context{Ctx: ctx})
	}
	if err != nil {
		r.rolledBack()
		return err
	}
	r.mu.Lock()
	r.CommitCalls++
	r.mu.Unlock()
	return nil
}

func (r *InjectedTxRunner) rolledBack() {
	r.mu.Lock()
	r.RollbackCalls++
	r.mu.Unlock()
}

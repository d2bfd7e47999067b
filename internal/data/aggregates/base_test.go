package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
)

func TestExecuteWriteObservesSuccessStatus(t *testing.T) {
	hooks := &spyHooks{}
	err := ExecuteWrite(context.Background(), WriteDeps{
		Runner: spyTxRunner{},
		Hooks:  hooks,
	}, "batch.ingest", func(_ dbctx.Context) error { return nil })
	if err != nil {
		t.Fatalf("ExecuteWrite success: %v", err)
	}
	if len(hooks.Operations) != 1 || hooks.Operations[0].Status != "success" {
		t.Fatalf("unexpected operations: %+v", hooks.Operations)
	}
	if hooks.Operations[0].Name != "batch.ingest" {
		t.Fatalf("operation name: %q", hooks.Operations[0].Name)
	}
}

func TestExecuteWriteMapsAndCounts(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      ErrorCode
		conflicts int
		retries   int
	}{
		{"invariant", InvariantError("status cannot become processing"), CodeInvariantViolation, 0, 0},
		{"conflict", ConflictError("batch left processing"), CodeConflict, 1, 0},
		{"retryable", RetryableError("lock timeout"), CodeRetryable, 0, 1},
		{"deadline", context.DeadlineExceeded, CodeRetryable, 0, 1},
		{"opaque", errors.New("boom"), CodeInternal, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hooks := &spyHooks{}
			err := ExecuteWrite(context.Background(), WriteDeps{
				Runner: spyTxRunner{},
				Hooks:  hooks,
			}, "batch.ingest", func(_ dbctx.Context) error { return tc.err })
			if !IsCode(err, tc.code) {
				t.Fatalf("want code %s, got %q (%v)", tc.code, CodeOf(err), err)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("cause chain lost: %v", err)
			}
			if len(hooks.Conflicts) != tc.conflicts || len(hooks.Retries) != tc.retries {
				t.Fatalf("conflicts=%v retries=%v", hooks.Conflicts, hooks.Retries)
			}
			if len(hooks.Operations) != 1 || hooks.Operations[0].Status != string(tc.code) {
				t.Fatalf("unexpected op status: %+v", hooks.Operations)
			}
		})
	}
}

func TestExecuteWriteDefaultsToNoopHooks(t *testing.T) {
	err := ExecuteWrite(context.Background(), WriteDeps{Runner: spyTxRunner{}}, "", func(_ dbctx.Context) error {
		return ValidationError("empty")
	})
	if !IsCode(err, CodeValidation) {
		t.Fatalf("expected validation code, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Op != "aggregate.write" {
		t.Fatalf("default op: %+v", e)
	}
}

func TestWriteStatus(t *testing.T) {
	if got := writeStatus(nil); got != "success" {
		t.Fatalf("nil status: want=success got=%s", got)
	}
	if got := writeStatus(ConflictError("x")); got != string(CodeConflict) {
		t.Fatalf("conflict status: got=%s", got)
	}
}

type spyTxRunner struct{}

func (spyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(dbctx.Context{Ctx: ctx})
}

type spyHooks struct {
	Operations []spyOperation
	Conflicts  []string
	Retries    []string
}

type spyOperation struct {
	Name   string
	Status string
}

func (h *spyHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.Operations = append(h.Operations, spyOperation{Name: name, Status: status})
}

func (h *spyHooks) IncConflict(name string) {
	h.Conflicts = append(h.Conflicts, name)
}

func (h *spyHooks) IncRetry(name string) {
	h.Retries = append(h.Retries, name)
}

package ctxutil

import "context"

type traceDataKey struct{}

// TraceData is shared by pointer for the life of a request, so later layers
// can fill in BatchID once it is known.
type TraceData struct {
	TraceID   string
	RequestID string
	BatchID   string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// SetBatchID records batchID on the request's trace data, if any.
func SetBatchID(ctx context.Context, batchID string) {
	if td := GetTraceData(ctx); td != nil && batchID != "" {
		td.BatchID = batchID
	}
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

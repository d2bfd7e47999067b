package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/noticeserve-backend/internal/platform/ctxutil"
)

const (
	headerTraceID     = "X-Trace-Id"
	headerRequestID   = "X-Request-Id"
	headerBatchID     = "X-Batch-Id"
	headerTraceparent = "traceparent"
)

// AttachTraceContext tags every request with a request id and a trace id.
// Status lookups also carry the :batchId route param; uploads get their batch
// id later from the ingestion service.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		batchID := strings.TrimSpace(c.Param("batchId"))
		if batchID == "" {
			batchID = strings.TrimSpace(c.GetHeader(headerBatchID))
		}
		td := &ctxutil.TraceData{
			TraceID:   requestTraceID(c),
			RequestID: reqID,
			BatchID:   batchID,
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Set("trace_id", td.TraceID)
		c.Set("request_id", td.RequestID)
		c.Writer.Header().Set(headerTraceID, td.TraceID)
		c.Writer.Header().Set(headerRequestID, td.RequestID)
		c.Next()
	}
}

// requestTraceID prefers an explicit X-Trace-Id, then a W3C traceparent,
// then the active span.
func requestTraceID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(headerTraceID)); id != "" {
		return id
	}
	if tp := strings.Split(strings.TrimSpace(c.GetHeader(headerTraceparent)), "-"); len(tp) == 4 {
		if id, err := trace.TraceIDFromHex(tp[1]); err == nil {
			return id.String()
		}
	}
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}

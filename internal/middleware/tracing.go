package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/clipforge/exportd/internal/platform/ctxutil"
)

// TraceContext stashes the active span's identifiers as a ctxutil.TraceData
// so handlers and repos can log a trace id without importing otel
// themselves. Must be registered after otelgin's middleware, which is what
// puts a span on the request context in the first place; a no-op when
// tracing is disabled, since SpanContextFromContext then returns an
// invalid span context.
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			td := &ctxutil.TraceData{TraceID: sc.TraceID().String(), RequestID: sc.SpanID().String()}
			c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		}
		c.Next()
	}
}

package httpserver

import (
	"github.com/gin-gonic/gin"

	"mailminder/pkg/trace"
)

// TraceMiddleware 沿用调用方的 X-Trace-ID，没有时生成，并写回响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(trace.HeaderName); id != "" {
			ctx = trace.WithContext(ctx, id)
		}
		ctx, id := trace.Ensure(ctx)

		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName, id)
		c.Next()
	}
}

package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taylorelley/vllm-vram-calc.github.io/logutil"
)

const requestIDHeader = "X-Request-ID"

// requestID tags every request with an id, echoed in the response, and logs
// the request once it completes.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		attrs := []any{
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}

		if c.Writer.Status() >= 500 {
			slog.Warn("request", attrs...)
		} else {
			logutil.Trace("request", attrs...)
		}
	}
}

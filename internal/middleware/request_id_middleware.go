package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"billing-lifecycle/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	RequestIDHeader     = "X-Request-Id"
	CorrelationIDHeader = "X-Correlation-Id"
)

// RequestIDMiddleware tags the request context with a request id and, when the
// caller sent one, the correlation id that groups its workflow events.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = newRequestID()
		}
		c.Writer.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(c.Request.Context(), logger.RequestIdKey, requestID)
		if correlationID := c.GetHeader(CorrelationIDHeader); correlationID != "" {
			ctx = logger.WithCorrelationID(ctx, correlationID)
			c.Writer.Header().Set(CorrelationIDHeader, correlationID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// newRequestID returns 16 random bytes hex encoded, a compact id without hyphens.
func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

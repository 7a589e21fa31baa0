package api

import (
	"time"

	"devmarket/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PayerHeader carries the authenticated payer id, set by the auth proxy in
// front of this service.
const PayerHeader = "X-Payer-Id"

const payerKey = "payer_id"

// PayerAuth rejects requests without a well-formed payer id.
func PayerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(PayerHeader)
		if raw == "" {
			abortWithError(c, apperr.ErrUnauthorized)
			return
		}
		payerID, err := uuid.Parse(raw)
		if err != nil {
			abortWithError(c, apperr.ErrUnauthorized)
			return
		}
		c.Set(payerKey, payerID)
		c.Next()
	}
}

func payerFrom(c *gin.Context) uuid.UUID {
	v, _ := c.Get(payerKey)
	id, _ := v.(uuid.UUID)
	return id
}

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("duration", time.Since(start)),
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
		}
		if c.Writer.Status() >= 500 {
			logger.Error("Request failed", fields...)
			return
		}
		logger.Info("Request", fields...)
	}
}

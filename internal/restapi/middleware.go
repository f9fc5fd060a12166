package restapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reconciliation-rca/engine/internal/logger"
)

const (
	RequestIDHeader     = "X-Request-ID"
	ContextKeyRequestID = "request_id"
)

// LoggingMiddleware logs one structured line per request, tagging every
// line with the request's trace id so it can be correlated with the
// reconciliation trace the orchestrator records for the same request.
type LoggingMiddleware struct {
	logger *logger.Logger
}

func NewLoggingMiddleware(log *logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: log}
}

func (m *LoggingMiddleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(RequestIDHeader, requestID)

		log := m.logger.WithTrace(requestID)
		log.Info("request started",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
		)

		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			log.Error("request completed", args...)
		case status >= 400:
			log.Warn("request completed", args...)
		default:
			log.Info("request completed", args...)
		}
	}
}

func GetRequestID(c *gin.Context) string {
	v, ok := c.Get(ContextKeyRequestID)
	if !ok {
		return ""
	}
	return v.(string)
}

// RecoveryMiddleware turns a panic anywhere downstream of an operator or
// handler into a 500 APIError instead of tearing down the process — the
// same contract spec §5 asks of the executor for operator-level faults,
// applied one layer up at the HTTP boundary.
type RecoveryMiddleware struct {
	logger *logger.Logger
}

func NewRecoveryMiddleware(log *logger.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: log}
}

func (m *RecoveryMiddleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestID := GetRequestID(c)
				m.logger.Error("panic recovered",
					"trace_id", requestID,
					"path", c.Request.URL.Path,
					"error", r,
					"stack", string(debug.Stack()),
				)
				apiErr := NewAPIError("INTERNAL_ERROR", fmt.Sprintf("internal server error (trace_id: %s)", requestID), http.StatusInternalServerError)
				c.AbortWithStatusJSON(apiErr.HTTPStatus, apiErr)
			}
		}()
		c.Next()
	}
}

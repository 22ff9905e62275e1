package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-gateway/internal/apperror"
	"github.com/lexiqai/speech-gateway/internal/observability"
)

const (
	headerRequestID = "X-Request-Id"
	headerAPIKey    = "X-API-Key"
	ctxRequestID    = "request_id"
)

// RequestID injects a unique X-Request-Id header into every request/response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = observability.NewRequestID()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// RequestLogger logs every request by status. Probe and scrape paths are skipped.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isProbePath(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Info()
		}
		event.
			Str("request_id", c.GetString(ctxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client", c.ClientIP()).
			Msg("Request completed")
	}
}

func isProbePath(path string) bool {
	switch path {
	case "/health", "/ready", "/metrics":
		return true
	}
	return false
}

// APIKeyAuth rejects requests whose X-API-Key does not match key.
func APIKeyAuth(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		got := c.GetHeader(headerAPIKey)
		if got == "" {
			abortWithError(c, apperror.Auth("Missing API key"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			abortWithError(c, apperror.Auth("Invalid API key"))
			return
		}
		c.Next()
	}
}

// CORS allows any origin, matching the service's public upload use.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Request-Id")
		h.Set("Access-Control-Expose-Headers", headerRequestID)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// BodySizeLimit caps the request body at n bytes.
func BodySizeLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// Recovery recovers from panics, logs the stack and answers 500.
func Recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Str("error", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Str("path", c.Request.URL.Path).
					Str("request_id", c.GetString(ctxRequestID)).
					Msg("Panic recovered")
				abortWithError(c, fmt.Errorf("panic: %v", r))
			}
		}()
		c.Next()
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperror.StatusOf(err), apperror.ToResponse(err))
}

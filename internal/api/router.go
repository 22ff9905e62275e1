// Package api exposes the gateway over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-gateway/internal/observability"
)

// multipartOverhead is allowed on top of the audio limit for the other form fields.
const multipartOverhead = 1 << 20

// RouterConfig wires the router's dependencies.
type RouterConfig struct {
	APIKey         string
	MaxUploadBytes int64
	MetricsEnabled bool
	Health         observability.HealthInfo
	ReadyChecks    []observability.Check
	ReadyTimeout   time.Duration
	Logger         zerolog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg RouterConfig, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(
		RequestID(),
		Recovery(cfg.Logger),
		RequestLogger(cfg.Logger),
		CORS(),
	)

	r.GET("/", gin.WrapF(observability.InfoHandler()))
	r.GET("/health", gin.WrapF(observability.HealthCheckHandler(cfg.Health)))
	r.GET("/ready", gin.WrapF(observability.ReadinessHandler(cfg.ReadyTimeout, cfg.ReadyChecks...)))
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/api/v1", APIKeyAuth(cfg.APIKey))
	{
		limit := int64(0)
		if cfg.MaxUploadBytes > 0 {
			limit = cfg.MaxUploadBytes + multipartOverhead
		}
		v1.POST("/transcribe", BodySizeLimit(limit), h.Transcribe)
	}

	return r
}

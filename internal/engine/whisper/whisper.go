// Package whisper is a transcription engine backed by a faster-whisper
// HTTP sidecar.
package whisper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-gateway/internal/engine"
	"github.com/lexiqai/speech-gateway/internal/engine/sidecar"
	"github.com/lexiqai/speech-gateway/internal/resilience"
)

// BackendName is the TRANSCRIPTION_BACKEND value selecting this engine.
const BackendName = "whisper"

const (
	defaultURL     = "http://localhost:8387"
	defaultModel   = "base"
	defaultTimeout = 300 * time.Second
)

// Config holds configuration for the Whisper engine.
type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
	Wait    *resilience.WaitConfig
}

// Engine implements engine.Transcriber. One Engine serves one model.
type Engine struct {
	cfg    Config
	client *sidecar.Client
	logger zerolog.Logger
}

var (
	_ engine.Transcriber = (*Engine)(nil)
	_ engine.Initializer = (*Engine)(nil)
	_ engine.Checker     = (*Engine)(nil)
)

// New creates an Engine. Init must run before the first Transcribe.
func New(cfg Config, logger zerolog.Logger) *Engine {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	logger = logger.With().Str("engine", BackendName).Str("model", cfg.Model).Logger()
	return &Engine{
		cfg:    cfg,
		client: sidecar.NewClient(cfg.URL, cfg.Timeout, cfg.Wait, logger),
		logger: logger,
	}
}

// Factory returns an engine.TranscriberFactory building Engines from cfg,
// with the model taken from the request parameters.
func Factory(cfg Config, logger zerolog.Logger) engine.TranscriberFactory {
	return func(p engine.TranscriberParams) (engine.Transcriber, error) {
		c := cfg
		if p.Model != "" {
			c.Model = p.Model
		}
		return New(c, logger), nil
	}
}

// Name returns the engine name.
func (e *Engine) Name() string { return BackendName }

// Init waits for the sidecar and asks it to load the model.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.client.WaitReady(ctx, "whisper sidecar"); err != nil {
		return err
	}
	if err := e.client.PostJSON(ctx, "/load", map[string]string{"model": e.cfg.Model}, nil); err != nil {
		return fmt.Errorf("load whisper model %s: %w", e.cfg.Model, err)
	}
	e.logger.Info().Msg("Whisper model loaded")
	return nil
}

// IsAvailable checks if the Whisper sidecar is reachable.
func (e *Engine) IsAvailable(ctx context.Context) bool {
	return e.client.Health(ctx) == nil
}

// Transcribe sends the audio file to the sidecar.
func (e *Engine) Transcribe(ctx context.Context, req engine.TranscriptionRequest) (*engine.TranscriptionResult, error) {
	var res engine.TranscriptionResult
	err := e.client.PostAudio(ctx, "/transcribe", req.AudioPath, map[string]string{
		"model":    e.cfg.Model,
		"language": req.Language,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("whisper transcribe: %w", err)
	}

	if res.Language == "" {
		res.Language = req.Language
	}
	if res.Duration == 0 && len(res.Segments) > 0 {
		res.Duration = res.Segments[len(res.Segments)-1].End
	}

	e.logger.Debug().
		Int("segments", len(res.Segments)).
		Str("language", res.Language).
		Float64("duration", res.Duration).
		Msg("Transcription received")
	return &res, nil
}

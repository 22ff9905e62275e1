// Package pyannote is a diarization engine backed by a pyannote.audio
// HTTP sidecar.
package pyannote

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-gateway/internal/engine"
	"github.com/lexiqai/speech-gateway/internal/engine/sidecar"
	"github.com/lexiqai/speech-gateway/internal/resilience"
)

const (
	defaultURL      = "http://localhost:8388"
	defaultPipeline = "pyannote/speaker-diarization-3.1"
	defaultTimeout  = 300 * time.Second
)

// Config holds configuration for the pyannote engine.
type Config struct {
	URL      string
	Pipeline string
	Token    string // Hugging Face token for gated pipelines
	Timeout  time.Duration
	Wait     *resilience.WaitConfig
}

// Engine implements engine.Diarizer.
type Engine struct {
	cfg    Config
	client *sidecar.Client
	logger zerolog.Logger
}

var (
	_ engine.Diarizer    = (*Engine)(nil)
	_ engine.Initializer = (*Engine)(nil)
	_ engine.Checker     = (*Engine)(nil)
)

// New creates an Engine. Init must run before the first Diarize.
func New(cfg Config, logger zerolog.Logger) *Engine {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Pipeline == "" {
		cfg.Pipeline = defaultPipeline
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	logger = logger.With().Str("engine", "pyannote").Str("pipeline", cfg.Pipeline).Logger()
	return &Engine{
		cfg:    cfg,
		client: sidecar.NewClient(cfg.URL, cfg.Timeout, cfg.Wait, logger),
		logger: logger,
	}
}

// Factory returns an engine.DiarizerFactory. It refuses to build an engine
// without a token since the sidecar cannot fetch gated weights without one.
func Factory(cfg Config, logger zerolog.Logger) engine.DiarizerFactory {
	return func(p engine.DiarizerParams) (engine.Diarizer, error) {
		if cfg.Token == "" {
			return nil, fmt.Errorf("diarization requires a Hugging Face token")
		}
		c := cfg
		if p.Model != "" {
			c.Pipeline = p.Model
		}
		return New(c, logger), nil
	}
}

// Name returns the engine name.
func (e *Engine) Name() string { return "pyannote" }

// Init waits for the sidecar and asks it to load the pipeline.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.client.WaitReady(ctx, "pyannote sidecar"); err != nil {
		return err
	}
	body := map[string]string{"pipeline": e.cfg.Pipeline, "token": e.cfg.Token}
	if err := e.client.PostJSON(ctx, "/load", body, nil); err != nil {
		return fmt.Errorf("load pipeline %s: %w", e.cfg.Pipeline, err)
	}
	e.logger.Info().Msg("Diarization pipeline loaded")
	return nil
}

// IsAvailable checks if the pyannote sidecar is reachable.
func (e *Engine) IsAvailable(ctx context.Context) bool {
	return e.client.Health(ctx) == nil
}

type diarizeResponse struct {
	Segments []engine.Turn `json:"segments"`
	Error    string        `json:"error,omitempty"`
}

// Diarize sends the audio file to the sidecar. Audio should be mono 16 kHz WAV.
func (e *Engine) Diarize(ctx context.Context, req engine.DiarizationRequest) (*engine.DiarizationResult, error) {
	fields := map[string]string{}
	if req.NumSpeakers > 0 {
		fields["num_speakers"] = strconv.Itoa(req.NumSpeakers)
	}

	var res diarizeResponse
	if err := e.client.PostAudio(ctx, "/diarize", req.AudioPath, fields, &res); err != nil {
		return nil, fmt.Errorf("pyannote diarize: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("pyannote diarize: %s", res.Error)
	}

	e.logger.Debug().Int("turns", len(res.Segments)).Msg("Diarization received")
	return &engine.DiarizationResult{Turns: res.Segments}, nil
}

// Package deepgram is a transcription engine backed by Deepgram's
// pre-recorded REST API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-gateway/internal/engine"
)

// BackendName is the TRANSCRIPTION_BACKEND value selecting this engine.
const BackendName = "deepgram"

// Config holds configuration for the Deepgram engine.
type Config struct {
	APIKey string
	Model  string // nova-2, enhanced, base
}

type fromFileFunc func(ctx context.Context, path string, opts *interfaces.PreRecordedTranscriptionOptions) (any, error)

// Engine implements engine.Transcriber.
type Engine struct {
	cfg      Config
	fromFile fromFileFunc
	logger   zerolog.Logger
}

var _ engine.Transcriber = (*Engine)(nil)

// New creates an Engine using the Deepgram SDK REST client.
func New(cfg Config, logger zerolog.Logger) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepgram api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}

	dg := api.New(client.NewREST(cfg.APIKey, &interfaces.ClientOptions{}))
	fromFile := func(ctx context.Context, path string, opts *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return dg.FromFile(ctx, path, opts)
	}
	return newEngine(cfg, fromFile, logger), nil
}

func newEngine(cfg Config, fromFile fromFileFunc, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		fromFile: fromFile,
		logger:   logger.With().Str("engine", BackendName).Str("model", cfg.Model).Logger(),
	}
}

// Factory returns an engine.TranscriberFactory building Engines from cfg.
func Factory(cfg Config, logger zerolog.Logger) engine.TranscriberFactory {
	return func(p engine.TranscriberParams) (engine.Transcriber, error) {
		c := cfg
		if p.Model != "" {
			c.Model = p.Model
		}
		return New(c, logger)
	}
}

// Name returns the engine name.
func (e *Engine) Name() string { return BackendName }

// response is the subset of the pre-recorded response the gateway reads.
type response struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Confidence float64 `json:"confidence"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
}

// Transcribe uploads the file to Deepgram. Utterances become segments;
// Deepgram reports no no-speech probability, so 1 - confidence stands in.
func (e *Engine) Transcribe(ctx context.Context, req engine.TranscriptionRequest) (*engine.TranscriptionResult, error) {
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:      e.cfg.Model,
		Punctuate:  true,
		Utterances: true,
	}
	if req.Language != "" {
		opts.Language = req.Language
	} else {
		opts.DetectLanguage = true
	}

	raw, err := e.fromFile(ctx, req.AudioPath, opts)
	if err != nil {
		return nil, fmt.Errorf("deepgram transcribe: %w", err)
	}

	// Round-trip through JSON so only the wire field names matter.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode deepgram response: %w", err)
	}
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode deepgram response: %w", err)
	}

	res := &engine.TranscriptionResult{
		Language: req.Language,
		Duration: resp.Metadata.Duration,
	}
	if len(resp.Results.Channels) > 0 {
		ch := resp.Results.Channels[0]
		if ch.DetectedLanguage != "" {
			res.Language = ch.DetectedLanguage
		}
		if len(ch.Alternatives) > 0 {
			res.Text = strings.TrimSpace(ch.Alternatives[0].Transcript)
		}
	}
	for _, u := range resp.Results.Utterances {
		res.Segments = append(res.Segments, engine.TranscriptionSegment{
			Start:        u.Start,
			End:          u.End,
			Text:         u.Transcript,
			NoSpeechProb: 1 - u.Confidence,
		})
	}

	e.logger.Debug().
		Int("segments", len(res.Segments)).
		Str("language", res.Language).
		Float64("duration", res.Duration).
		Msg("Transcription received")
	return res, nil
}

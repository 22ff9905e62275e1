package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TranscriberParams selects a transcription engine.
type TranscriberParams struct {
	Backend string
	Model   string
}

func (p TranscriberParams) key() string {
	return strings.ToLower(p.Backend) + ":" + p.Model
}

// DiarizerParams selects a diarization pipeline.
type DiarizerParams struct {
	Model string
}

func (p DiarizerParams) key() string {
	return p.Model
}

// TranscriberFactory builds an uninitialized transcription engine.
type TranscriberFactory func(params TranscriberParams) (Transcriber, error)

// DiarizerFactory builds an uninitialized diarization engine.
type DiarizerFactory func(params DiarizerParams) (Diarizer, error)

// Observer is told about every engine load attempt.
type Observer func(kind, key string, elapsed time.Duration, err error)

// GuardFunc returns the protections for a freshly loaded engine.
type GuardFunc func(kind, key string) Guard

// Pool hands out process-wide engine handles, loading each distinct
// configuration once through a Gate.
type Pool struct {
	transcribers *Gate[Transcriber]
	diarizers    *Gate[Diarizer]

	newTranscriber TranscriberFactory
	newDiarizer    DiarizerFactory

	loadTimeout time.Duration
	guard       GuardFunc
	observers   []Observer
	logger      zerolog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithLoadTimeout bounds a single engine load.
func WithLoadTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.loadTimeout = d }
}

// WithGuard wraps every loaded engine with the protections fn returns.
func WithGuard(fn GuardFunc) PoolOption {
	return func(p *Pool) { p.guard = fn }
}

// WithObserver adds an observer for load attempts.
func WithObserver(o Observer) PoolOption {
	return func(p *Pool) { p.observers = append(p.observers, o) }
}

// NewPool creates a Pool. Either factory may be nil, in which case
// requesting that kind of engine fails.
func NewPool(newTranscriber TranscriberFactory, newDiarizer DiarizerFactory, logger zerolog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		transcribers:   NewGate[Transcriber](KindTranscription),
		diarizers:      NewGate[Diarizer](KindDiarization),
		newTranscriber: newTranscriber,
		newDiarizer:    newDiarizer,
		loadTimeout:    5 * time.Minute,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transcriber returns the shared transcription engine for params.
func (p *Pool) Transcriber(ctx context.Context, params TranscriberParams) (Transcriber, error) {
	if p.newTranscriber == nil {
		return nil, fmt.Errorf("no transcription backend configured")
	}
	key := params.key()
	return p.transcribers.Acquire(ctx, key, func(ctx context.Context) (Transcriber, error) {
		t, err := p.load(ctx, KindTranscription, key, func(ctx context.Context) (any, error) {
			t, err := p.newTranscriber(params)
			if err != nil {
				return nil, err
			}
			return t, initialize(ctx, t)
		})
		if err != nil {
			return nil, err
		}
		tr := t.(Transcriber)
		if p.guard != nil {
			tr = GuardTranscriber(tr, p.guard(KindTranscription, key))
		}
		return tr, nil
	})
}

// Diarizer returns the shared diarization engine for params.
func (p *Pool) Diarizer(ctx context.Context, params DiarizerParams) (Diarizer, error) {
	if p.newDiarizer == nil {
		return nil, fmt.Errorf("no diarization backend configured")
	}
	key := params.key()
	return p.diarizers.Acquire(ctx, key, func(ctx context.Context) (Diarizer, error) {
		d, err := p.load(ctx, KindDiarization, key, func(ctx context.Context) (any, error) {
			d, err := p.newDiarizer(params)
			if err != nil {
				return nil, err
			}
			return d, initialize(ctx, d)
		})
		if err != nil {
			return nil, err
		}
		dr := d.(Diarizer)
		if p.guard != nil {
			dr = GuardDiarizer(dr, p.guard(KindDiarization, key))
		}
		return dr, nil
	})
}

// Loaded reports the keys of engines loaded so far, by kind.
func (p *Pool) Loaded() map[string][]string {
	return map[string][]string{
		KindTranscription: p.transcribers.Keys(),
		KindDiarization:   p.diarizers.Keys(),
	}
}

// Check probes every loaded engine of kind that can report availability.
// It returns false when none is loaded.
func (p *Pool) Check(ctx context.Context, kind string) bool {
	var checkers []Checker
	switch kind {
	case KindTranscription:
		for _, k := range p.transcribers.Keys() {
			if t, ok := p.transcribers.Peek(k); ok {
				checkers = append(checkers, asChecker(t))
			}
		}
	case KindDiarization:
		for _, k := range p.diarizers.Keys() {
			if d, ok := p.diarizers.Peek(k); ok {
				checkers = append(checkers, asChecker(d))
			}
		}
	}
	if len(checkers) == 0 {
		return false
	}
	for _, c := range checkers {
		if !c.IsAvailable(ctx) {
			return false
		}
	}
	return true
}

func (p *Pool) load(ctx context.Context, kind, key string, build func(ctx context.Context) (any, error)) (any, error) {
	log := p.logger.With().Str("engine", kind).Str("key", key).Logger()
	log.Info().Msg("Loading engine")

	if p.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	h, err := build(ctx)
	elapsed := time.Since(start)

	for _, o := range p.observers {
		o(kind, key, elapsed, err)
	}
	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("Engine load failed")
		return nil, fmt.Errorf("load %s engine %q: %w", kind, key, err)
	}
	log.Info().Dur("elapsed", elapsed).Msg("Engine ready")
	return h, nil
}

func initialize(ctx context.Context, h any) error {
	if i, ok := h.(Initializer); ok {
		return i.Init(ctx)
	}
	return nil
}

type alwaysAvailable struct{}

func (alwaysAvailable) IsAvailable(context.Context) bool { return true }

func asChecker(h any) Checker {
	if c, ok := h.(Checker); ok {
		return c
	}
	return alwaysAvailable{}
}

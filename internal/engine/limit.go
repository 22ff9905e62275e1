package engine

import (
	"context"

	"github.com/lexiqai/speech-gateway/internal/resilience"
)

// Limit caps concurrent inference calls on an engine that is not safe for
// unbounded parallel use.
type Limit struct {
	slots chan struct{}
}

// NewLimit returns a Limit admitting n concurrent calls. n <= 0 means 1.
func NewLimit(n int) *Limit {
	if n <= 0 {
		n = 1
	}
	return &Limit{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx ends.
func (l *Limit) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *Limit) Release() {
	<-l.slots
}

// InFlight returns the number of calls currently holding a slot.
func (l *Limit) InFlight() int {
	return len(l.slots)
}

// Guard bundles the protections applied to every engine handle.
type Guard struct {
	Limit   *Limit
	Breaker *resilience.CircuitBreaker
}

func (g Guard) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.Limit != nil {
		if err := g.Limit.Acquire(ctx); err != nil {
			return err
		}
		defer g.Limit.Release()
	}
	if g.Breaker != nil {
		return g.Breaker.CallContext(ctx, fn)
	}
	return fn(ctx)
}

type guardedTranscriber struct {
	Transcriber
	guard Guard
}

// GuardTranscriber wraps t so every Transcribe call goes through g.
func GuardTranscriber(t Transcriber, g Guard) Transcriber {
	return &guardedTranscriber{Transcriber: t, guard: g}
}

func (t *guardedTranscriber) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResult, error) {
	var res *TranscriptionResult
	err := t.guard.run(ctx, func(ctx context.Context) error {
		var err error
		res, err = t.Transcriber.Transcribe(ctx, req)
		return err
	})
	return res, err
}

func (t *guardedTranscriber) IsAvailable(ctx context.Context) bool {
	if c, ok := t.Transcriber.(Checker); ok {
		return c.IsAvailable(ctx)
	}
	return true
}

type guardedDiarizer struct {
	Diarizer
	guard Guard
}

// GuardDiarizer wraps d so every Diarize call goes through g.
func GuardDiarizer(d Diarizer, g Guard) Diarizer {
	return &guardedDiarizer{Diarizer: d, guard: g}
}

func (d *guardedDiarizer) Diarize(ctx context.Context, req DiarizationRequest) (*DiarizationResult, error) {
	var res *DiarizationResult
	err := d.guard.run(ctx, func(ctx context.Context) error {
		var err error
		res, err = d.Diarizer.Diarize(ctx, req)
		return err
	})
	return res, err
}

func (d *guardedDiarizer) IsAvailable(ctx context.Context) bool {
	if c, ok := d.Diarizer.(Checker); ok {
		return c.IsAvailable(ctx)
	}
	return true
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWaitUntil_EventuallyReady(t *testing.T) {
	checks := 0
	err := WaitUntil(context.Background(), "sidecar", func(ctx context.Context) error {
		checks++
		if checks < 3 {
			return errors.New("loading")
		}
		return nil
	}, &WaitConfig{MaxAttempts: 5, Backoff: time.Millisecond, Multiplier: 2, MaxBackoff: 5 * time.Millisecond}, zerolog.Nop())

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if checks != 3 {
		t.Errorf("Expected 3 checks, got %d", checks)
	}
}

func TestWaitUntil_GivesUp(t *testing.T) {
	down := errors.New("connection refused")
	checks := 0
	err := WaitUntil(context.Background(), "sidecar", func(ctx context.Context) error {
		checks++
		return down
	}, &WaitConfig{MaxAttempts: 3, Backoff: time.Millisecond, Multiplier: 1, MaxBackoff: time.Millisecond}, zerolog.Nop())

	if !errors.Is(err, down) {
		t.Errorf("Expected last check error in chain, got %v", err)
	}
	if checks != 3 {
		t.Errorf("Expected 3 checks, got %d", checks)
	}
}

func TestWaitUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := WaitUntil(ctx, "sidecar", func(ctx context.Context) error {
		cancel()
		return errors.New("loading")
	}, &WaitConfig{MaxAttempts: 5, Backoff: time.Second, Multiplier: 1, MaxBackoff: time.Second}, zerolog.Nop())

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// WaitConfig controls WaitUntil.
type WaitConfig struct {
	MaxAttempts int           // Checks before giving up
	Backoff     time.Duration // Delay after the first failed check
	Multiplier  float64       // Growth factor between delays
	MaxBackoff  time.Duration // Upper bound for any single delay
}

// DefaultWaitConfig returns a default readiness wait configuration
func DefaultWaitConfig() *WaitConfig {
	return &WaitConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// CheckFunc reports nil once the awaited resource is ready.
type CheckFunc func(ctx context.Context) error

// WaitUntil polls check with exponential backoff until it succeeds. It is
// used while an engine sidecar is still loading its model after start.
func WaitUntil(ctx context.Context, name string, check CheckFunc, config *WaitConfig, logger zerolog.Logger) error {
	if config == nil {
		config = DefaultWaitConfig()
	}

	backoff := config.Backoff
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = check(ctx)
		if lastErr == nil {
			if attempt > 0 {
				logger.Info().Str("target", name).Int("attempts", attempt+1).Msg("Dependency became ready")
			}
			return nil
		}

		if attempt < config.MaxAttempts-1 {
			logger.Warn().
				Err(lastErr).
				Str("target", name).
				Int("attempt", attempt+1).
				Int("max_attempts", config.MaxAttempts).
				Dur("retry_in", backoff).
				Msg("Dependency not ready")

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}

			backoff = time.Duration(float64(backoff) * config.Multiplier)
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	return fmt.Errorf("%s not ready after %d attempts: %w", name, config.MaxAttempts, lastErr)
}

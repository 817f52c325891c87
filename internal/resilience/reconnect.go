package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/moonlight-recovery/note-builder/internal/observability"
)

// ReconnectConfig controls reconnection backoff.
type ReconnectConfig struct {
	MaxAttempts int           // 0 means retry forever
	Backoff     time.Duration // initial delay between attempts
	Multiplier  float64       // backoff growth factor
	MaxBackoff  time.Duration // upper bound on the delay
}

// DefaultReconnectConfig returns a reconnect policy suitable for
// streaming connections.
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// Reconnect calls fn until it succeeds, the attempt budget is exhausted,
// or ctx is cancelled. The delay between attempts grows geometrically.
func Reconnect(ctx context.Context, fn func() error, config *ReconnectConfig) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}

	logger := observability.GetLogger()
	backoff := config.Backoff

	for attempt := 1; config.MaxAttempts == 0 || attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Reconnected")
			}
			return nil
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Reconnect attempt failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return fmt.Errorf("reconnect failed after %d attempts", config.MaxAttempts)
}

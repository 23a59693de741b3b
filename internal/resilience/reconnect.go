package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ReconnectConfig holds configuration for reconnection logic
type ReconnectConfig struct {
	MaxAttempts int           // Maximum number of reconnection attempts
	Backoff     time.Duration // Wait after the first failed attempt
	Multiplier  float64       // Backoff multiplier for exponential backoff
	MaxBackoff  time.Duration // Maximum backoff duration
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// ReconnectFunc is a function that attempts to reconnect
type ReconnectFunc func() error

// Reconnect calls fn until it succeeds, waiting with exponential backoff
// between attempts. Progress is logged to the zerolog logger carried by ctx.
func Reconnect(ctx context.Context, fn ReconnectFunc, config *ReconnectConfig) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}
	logger := zerolog.Ctx(ctx)
	attempts := max(config.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			logger.Info().Int("attempt", attempt+1).Msg("Reconnection successful")
			return nil
		}

		if attempt == attempts-1 {
			break
		}

		wait := CalculateBackoff(attempt, config.Backoff, config.MaxBackoff, config.Multiplier)
		logger.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Dur("retry_in", wait).
			Msg("Reconnection attempt failed")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("failed to reconnect after %d attempts: %w", attempts, lastErr)
}

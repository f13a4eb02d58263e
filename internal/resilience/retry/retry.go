// Package retry provides exponential backoff with jitter.
// The connection manager drives its redial schedule with a Backoff; hosts
// that want automatic retries around request calls can use WithBackoff
// with the client's retryable-error predicate.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Config holds the backoff schedule parameters.
type Config struct {
	// MaxAttempts is the maximum number of attempts for WithBackoff
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// Multiplier is the multiplier for exponential backoff
	Multiplier float64

	// JitterFraction is the fraction of delay to add as random jitter (0.0 to 1.0)
	JitterFraction float64
}

// DefaultConfig returns a schedule suited to interactive request calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// ChannelRedialConfig returns a schedule for push channel reconnection.
// Redialing is open-ended, so MaxAttempts is not set.
func ChannelRedialConfig(min, max time.Duration) Config {
	return Config{
		InitialDelay:   min,
		MaxDelay:       max,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Backoff yields successive delays from a Config. Not safe for concurrent
// use; each supervisor owns its own.
type Backoff struct {
	cfg  Config
	next time.Duration
}

// NewBackoff creates a backoff iterator at the start of its schedule.
func NewBackoff(cfg Config) *Backoff {
	return &Backoff{cfg: cfg, next: cfg.InitialDelay}
}

// Next returns the delay to wait before the upcoming attempt and advances
// the schedule.
func (b *Backoff) Next() time.Duration {
	delay := b.next

	b.next = time.Duration(float64(b.next) * b.cfg.Multiplier)
	if b.next > b.cfg.MaxDelay {
		b.next = b.cfg.MaxDelay
	}

	return addJitter(delay, b.cfg.JitterFraction)
}

// Reset rewinds the schedule to the initial delay, typically after a
// successful attempt.
func (b *Backoff) Reset() {
	b.next = b.cfg.InitialDelay
}

// WithBackoff executes fn with retries on the Config's schedule.
// retryable decides whether an error is worth another attempt; a nil
// predicate retries every error.
func WithBackoff(ctx context.Context, cfg Config, retryable func(error) bool, fn func() error) error {
	backoff := NewBackoff(cfg)
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return nil
		}

		if retryable != nil && !retryable(lastErr) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr))
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := backoff.Next()
		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// addJitter adds random jitter to prevent thundering herd.
func addJitter(delay time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return delay
	}
	jitter := time.Duration(rand.Float64() * fraction * float64(delay)) // #nosec G404 -- jitter does not need crypto randomness
	return delay + jitter
}

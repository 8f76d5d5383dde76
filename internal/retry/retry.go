// Package retry runs an operation under a fixed attempt cap with exponentially growing delays.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy describes how many attempts to make and how long to wait between them.
// The delay before attempt n+1 is BaseDelay * Multiplier^(n-1).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	// Retryable decides whether a failed attempt may be retried. Nil retries everything.
	Retryable func(error) bool
	// Sleep defaults to a context-aware timer.
	Sleep Sleeper
}

// Outcome reports what Do actually did.
type Outcome struct {
	Attempts int
	Delays   []time.Duration
}

// Default mirrors the configuration defaults.
func Default() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: 2 * time.Second, Multiplier: 2}
}

// Validate checks that the policy produces strictly increasing delays.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("retry: base delay must be positive, got %s", p.BaseDelay)
	}
	if p.Multiplier <= 1 {
		return fmt.Errorf("retry: multiplier must be > 1, got %.2f", p.Multiplier)
	}
	return nil
}

// Delay returns the wait before the attempt following attempt n (1-based).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1)))
}

// Do calls op until it succeeds, returns a non-retryable error, or the attempt cap is hit.
// The returned error is the last one op produced, or the context error if the wait was cut short.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (Outcome, error) {
	var out Outcome
	if err := p.Validate(); err != nil {
		return out, err
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			d := p.Delay(attempt - 1)
			log.Debug().Int("attempt", attempt).Dur("delay", d).Err(lastErr).Msg("retrying after failure")
			out.Delays = append(out.Delays, d)
			if err := sleep(ctx, d); err != nil {
				return out, err
			}
		}

		out.Attempts = attempt
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return out, nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return out, lastErr
		}
	}
	return out, fmt.Errorf("gave up after %d attempts: %w", out.Attempts, lastErr)
}

// SleepContext blocks for d unless ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package retry provides bounded polling with a fixed interval.
//
// It backs both the boot-time readiness wait and the post-repair settle
// delay: every wait has a hard attempt ceiling so an unattended host never
// blocks forever on a condition that does not arrive.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when the condition never held within MaxAttempts.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Config configures a bounded wait.
type Config struct {
	// Interval is the delay between attempts.
	// Default: 1s
	Interval time.Duration

	// MaxAttempts is the maximum number of attempts (including the first).
	// Default: 1
	MaxAttempts int

	// OnAttempt is called after every failed attempt.
	OnAttempt func(attempt int)
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	return c
}

// Until polls cond until it returns true, MaxAttempts is reached or ctx is done.
// It returns the number of attempts made. The error is nil on success,
// ErrExhausted when attempts ran out, or the context error.
func Until(ctx context.Context, cfg Config, cond func(context.Context) bool) (int, error) {
	cfg = cfg.withDefaults()
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if cond(ctx) {
			return attempt, nil
		}
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt)
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if err := Sleep(ctx, cfg.Interval); err != nil {
			return attempt, err
		}
	}
	return cfg.MaxAttempts, ErrExhausted
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

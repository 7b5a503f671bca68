package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config controls Do. Attempt n (0-based) waits BaseDelay * Multiplier^n before attempt n+1.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the real Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier executes a function with bounded exponential backoff.
type Retrier struct {
	cfg   Config
	sleep Sleeper
}

func New(cfg Config) *Retrier {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	return &Retrier{cfg: cfg, sleep: ContextSleep}
}

// WithSleeper replaces the sleeper. Used by tests to avoid real waits.
func (r *Retrier) WithSleeper(s Sleeper) *Retrier {
	cp := *r
	cp.sleep = s
	return &cp
}

// Delay returns the wait after the given 0-based attempt.
func (r *Retrier) Delay(attempt int) time.Duration {
	d := float64(r.cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= r.cfg.Multiplier
	}
	if d > float64(r.cfg.MaxDelay) {
		return r.cfg.MaxDelay
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns an error wrapped by Stop, or the
// attempts are exhausted. fn receives the 0-based attempt number.
func (r *Retrier) Do(ctx context.Context, fn func(attempt int) error) error {
	var last error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		var stop *stopError
		if errors.As(err, &stop) {
			return stop.err
		}
		last = err
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}
		if serr := r.sleep(ctx, r.Delay(attempt)); serr != nil {
			return fmt.Errorf("retry cancelled: %w", errors.Join(serr, last))
		}
	}
	return fmt.Errorf("after %d attempts: %w", r.cfg.MaxAttempts, last)
}

type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }

func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as not retryable. Do returns the unwrapped err immediately.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

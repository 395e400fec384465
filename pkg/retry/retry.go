// Package retry runs operations again with exponential backoff when they fail
// with a transient volstore error.
package retry

import (
	"context"
	stderr "errors"
	"math"
	"math/rand"
	"time"

	"github.com/volstore/volstore/pkg/errors"
)

// Config defines retry behavior.
type Config struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`

	// Jitter spreads each delay by up to 20% either way.
	Jitter bool `yaml:"jitter" json:"jitter"`

	// RetryableErrors are retried in addition to errors flagged Retryable.
	RetryableErrors []errors.ErrorCode `yaml:"retryable_errors" json:"retryable_errors"`

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns the backoff used for origin downloads.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer handles retry logic with exponential backoff
type Retryer struct {
	config Config
}

// New creates a Retryer, filling zero values from DefaultConfig.
func New(config Config) *Retryer {
	def := DefaultConfig()
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	return &Retryer{config: config}
}

// MaxAttempts returns the configured attempt budget.
func (r *Retryer) MaxAttempts() int {
	return r.config.MaxAttempts
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. The last error is returned unchanged so callers can still
// inspect its code. Cancellation while waiting returns OPERATION_CANCELED or
// OPERATION_TIMEOUT.
func (r *Retryer) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return canceled(err, attempt-1, lastErr)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == r.config.MaxAttempts || !r.shouldRetry(err) {
			return err
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return canceled(ctx.Err(), attempt, lastErr)
		case <-timer.C:
		}
	}
	return lastErr
}

func (r *Retryer) shouldRetry(err error) bool {
	verr, ok := errors.As(err)
	if !ok {
		return false
	}
	if verr.Retryable {
		return true
	}
	for _, code := range r.config.RetryableErrors {
		if verr.Code == code {
			return true
		}
	}
	return false
}

// delay is InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		d += d * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func canceled(ctxErr error, attempts int, lastErr error) error {
	code := errors.ErrCodeOperationCanceled
	if stderr.Is(ctxErr, context.DeadlineExceeded) {
		code = errors.ErrCodeOperationTimeout
	}
	verr := errors.Wrap(code, "retry interrupted", ctxErr).WithDetail("attempts", attempts)
	if lastErr != nil {
		verr.WithDetail("last_error", lastErr.Error())
	}
	return verr
}

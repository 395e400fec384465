// Package resolve supplies logical artifacts from the first source that has
// them: local disk, then the remote store, then the origin.
package resolve

import (
	"context"
	stderr "errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// Attempt records one failed source.
type Attempt struct {
	Source   string        `json:"source"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Result is a successful resolution.
type Result struct {
	Key      string    `json:"key"`
	Path     string    `json:"path"`
	Source   string    `json:"source"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Error is returned when no source could supply the key. Its code, as seen by
// errors.CodeOf, is RESOLUTION_FAILED, or OPERATION_CANCELED/OPERATION_TIMEOUT
// when the context ended first.
type Error struct {
	Key      string
	Attempts []Attempt
	// Cause is set when the context ended before every source was tried.
	Cause error

	status *errors.VolstoreError
}

func newError(key string, attempts []Attempt, cause error) *Error {
	e := &Error{Key: key, Attempts: attempts, Cause: cause}

	code := errors.ErrCodeResolutionFailed
	switch {
	case stderr.Is(cause, context.DeadlineExceeded):
		code = errors.ErrCodeOperationTimeout
	case cause != nil:
		code = errors.ErrCodeOperationCanceled
	}
	e.status = errors.NewError(code, fmt.Sprintf("no source could supply %s", key)).
		WithComponent("resolve").
		WithContext("key", key)
	if severe := e.Severest(); severe != nil {
		e.status.Retryable = errors.IsTransient(severe)
		e.status.WithDetail("source_code", string(errors.CodeOf(severe)))
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolve %s failed", e.Key)
	if e.Cause != nil {
		fmt.Fprintf(&b, " (%v)", e.Cause)
	}
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Source, a.Err)
	}
	return b.String()
}

// Unwrap exposes the resolution status first, then the cause and every
// attempt error.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+2)
	if e.status != nil {
		errs = append(errs, e.status)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Severest returns the attempt error that best explains the failure: a
// denial over any other failure over a miss, the later source on ties.
func (e *Error) Severest() error {
	var (
		best error
		rank = -1
	)
	for _, a := range e.Attempts {
		r := severity(a.Err)
		if r >= rank {
			best, rank = a.Err, r
		}
	}
	return best
}

func severity(err error) int {
	switch {
	case errors.IsDenied(err):
		return 2
	case errors.IsNotFound(err):
		return 0
	}
	return 1
}

// Resolver tries its sources in order.
type Resolver struct {
	sources []Source
	metrics types.MetricsCollector
	logger  zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// New builds a Resolver over sources, tried in the given order.
func New(sources []Source, opts ...Option) *Resolver {
	r := &Resolver{
		sources: sources,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "resolver").Logger()
	return r
}

// Sources returns the source names in order.
func (r *Resolver) Sources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the first source that supplies key. Failures of earlier
// sources are logged and recorded in the result, never returned.
func (r *Resolver) Resolve(ctx context.Context, key string) (Result, error) {
	var attempts []Attempt

	for _, src := range r.sources {
		if err := ctx.Err(); err != nil {
			return Result{}, r.fail(key, attempts, err)
		}

		start := time.Now()
		path, err := r.try(ctx, src, key)
		elapsed := time.Since(start)
		if r.metrics != nil {
			r.metrics.RecordResolution(src.Name(), err == nil, elapsed)
		}

		if err == nil {
			r.logger.Info().
				Str("key", key).
				Str("source", src.Name()).
				Str("path", path).
				Dur("duration", elapsed).
				Msg("Artifact resolved")
			return Result{Key: key, Path: path, Source: src.Name(), Attempts: attempts}, nil
		}

		attempts = append(attempts, Attempt{Source: src.Name(), Err: err, Duration: elapsed})
		event := r.logger.Warn()
		if errors.IsNotFound(err) {
			event = r.logger.Debug()
		}
		event.Err(err).Str("key", key).Str("source", src.Name()).Msg("Source could not supply artifact, trying next")
	}

	return Result{}, r.fail(key, attempts, nil)
}

func (r *Resolver) fail(key string, attempts []Attempt, cause error) *Error {
	err := newError(key, attempts, cause)
	r.logger.Error().Err(err).Str("key", key).Int("attempts", len(attempts)).Msg("Artifact could not be resolved")
	return err
}

// try runs one source, turning a panic into that source's failure.
func (r *Resolver) try(ctx context.Context, src Source, key string) (path string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.NewError(errors.ErrCodePanicRecovered, fmt.Sprintf("source %s panicked: %v", src.Name(), p)).
				WithComponent("resolve").
				WithOperation(src.Name()).
				WithDetail("stack", string(debug.Stack()))
			path = ""
		}
	}()
	return src.Resolve(ctx, key)
}

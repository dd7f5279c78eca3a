// Package retry runs fallible operations under an explicit retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/spherical/verbatim/internal/domain"
	"github.com/spherical/verbatim/internal/observability"
)

const (
	defaultRecognitionBase = 5 * time.Second
	defaultRecognitionCap  = 60 * time.Second
	defaultDownloadDelay   = 5 * time.Second
	defaultDownloadTries   = 3
)

// Policy describes when and how long to retry.
type Policy struct {
	Name string

	// MaxAttempts counts the first call. 0 retries forever.
	MaxAttempts int

	// NewBackOff builds a fresh delay schedule for one Run.
	NewBackOff func() backoff.BackOff

	// Retryable decides whether an error deserves another attempt.
	// A nil predicate retries everything.
	Retryable func(error) bool
}

// RecognitionPolicy retries transient recognition failures forever with a
// linear delay of min(cap, base*attempt).
func RecognitionPolicy(base, maxDelay time.Duration) Policy {
	if base <= 0 {
		base = defaultRecognitionBase
	}
	if maxDelay <= 0 {
		maxDelay = defaultRecognitionCap
	}
	return Policy{
		Name:        "recognition",
		MaxAttempts: 0,
		NewBackOff: func() backoff.BackOff {
			return NewLinearBackOff(base, maxDelay)
		},
		Retryable: domain.IsRetryable,
	}
}

// DownloadPolicy retries any failure a fixed number of times with a constant delay.
func DownloadPolicy(attempts int, delay time.Duration) Policy {
	if attempts <= 0 {
		attempts = defaultDownloadTries
	}
	if delay <= 0 {
		delay = defaultDownloadDelay
	}
	return Policy{
		Name:        "download",
		MaxAttempts: attempts,
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(delay)
		},
	}
}

// Executor applies one Policy. It is safe for concurrent use.
type Executor struct {
	policy   Policy
	logger   *observability.Logger
	newTimer func() backoff.Timer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for attempt reports.
func WithLogger(l *observability.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTimer replaces the wall clock timer, mainly for tests.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(e *Executor) {
		e.newTimer = newTimer
	}
}

// NewExecutor creates an executor for the given policy.
func NewExecutor(policy Policy, opts ...Option) *Executor {
	if policy.NewBackOff == nil {
		policy.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	}
	e := &Executor{
		policy: policy,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run calls op until it succeeds, returns a non-retryable error, exhausts
// the attempt budget or ctx is cancelled.
func (e *Executor) Run(ctx context.Context, op func(ctx context.Context) error) error {
	return e.run(ctx, e.logger, op)
}

// RunLogged is Run with a caller supplied logger, so attempt reports carry the caller's scope.
func (e *Executor) RunLogged(ctx context.Context, logger *observability.Logger, op func(ctx context.Context) error) error {
	if logger == nil {
		logger = e.logger
	}
	return e.run(ctx, logger, op)
}

func (e *Executor) run(ctx context.Context, logger *observability.Logger, op func(ctx context.Context) error) error {
	b := e.policy.NewBackOff()
	if e.policy.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(e.policy.MaxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)

	attempt := 0
	started := time.Now()
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if e.policy.Retryable != nil && !e.policy.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn().
			Str("policy", e.policy.Name).
			Int("attempt", attempt).
			Dur("wait", wait).
			Err(err).
			Msgf("attempt %d failed, retrying in %s", attempt, wait)
	}

	var timer backoff.Timer
	if e.newTimer != nil {
		timer = e.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, b, notify, timer)
	if err == nil {
		logger.Info().
			Str("policy", e.policy.Name).
			Int("attempts", attempt).
			Dur("duration", time.Since(started)).
			Msg("operation succeeded")
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%s interrupted after %d attempt(s): %w", e.policy.Name, attempt, ctxErr)
	}
	if e.policy.MaxAttempts > 0 && attempt >= e.policy.MaxAttempts {
		logger.Error().
			Str("policy", e.policy.Name).
			Int("attempts", attempt).
			Err(err).
			Msg("giving up")
		return fmt.Errorf("%s failed after %d attempts: %w", e.policy.Name, attempt, err)
	}
	return err
}

// Do runs op through exec and returns its value.
func Do[T any](ctx context.Context, exec *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := exec.Run(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// DoLogged is Do with a caller supplied logger.
func DoLogged[T any](ctx context.Context, exec *Executor, logger *observability.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := exec.RunLogged(ctx, logger, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

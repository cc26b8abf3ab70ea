package wrappers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"mercator-hq/ledger/pkg/audit"
)

// Retry retries failed storage calls with exponential backoff. Not-found,
// not-supported and context errors are never retried.
//
// Retrying an insert whose first attempt reached the backend but failed to
// report success can store the event twice.
type Retry struct {
	provider        audit.DataProvider
	maxTries        uint
	maxElapsed      time.Duration
	initialInterval time.Duration
	maxInterval     time.Duration
	retryable       func(error) bool
	logger          *slog.Logger
}

// RetryOption configures a Retry.
type RetryOption func(*Retry)

// WithMaxTries sets the total number of attempts. Default: 3.
func WithMaxTries(n uint) RetryOption {
	return func(r *Retry) { r.maxTries = n }
}

// WithMaxElapsedTime bounds the total time spent retrying. Default: 30s.
func WithMaxElapsedTime(d time.Duration) RetryOption {
	return func(r *Retry) { r.maxElapsed = d }
}

// WithIntervals sets the initial and maximum backoff intervals.
// Default: 100ms and 5s.
func WithIntervals(initial, max time.Duration) RetryOption {
	return func(r *Retry) {
		r.initialInterval = initial
		r.maxInterval = max
	}
}

// WithRetryable overrides the retry classification. Errors for which fn
// returns false fail immediately.
func WithRetryable(fn func(error) bool) RetryOption {
	return func(r *Retry) { r.retryable = fn }
}

// NewRetry wraps p.
func NewRetry(p audit.DataProvider, opts ...RetryOption) *Retry {
	r := &Retry{
		provider:        p,
		maxTries:        3,
		maxElapsed:      30 * time.Second,
		initialInterval: 100 * time.Millisecond,
		maxInterval:     5 * time.Second,
		retryable:       IsRetryable,
		logger:          slog.Default().With("component", "audit.provider.retry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, audit.ErrNotFound),
		errors.Is(err, audit.ErrNotSupported),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var confErr *audit.ConfigurationError
	return !errors.As(err, &confErr)
}

// Name implements audit.Named.
func (r *Retry) Name() string {
	return "retry(" + audit.ProviderName(r.provider) + ")"
}

// Unwrap implements audit.Unwrapper.
func (r *Retry) Unwrap() audit.DataProvider {
	return r.provider
}

func (r *Retry) options(operation string) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval

	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithMaxElapsedTime(r.maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("storage call failed, retrying",
				"provider", audit.ProviderName(r.provider),
				"operation", operation,
				"retry_in", next,
				"error", err,
			)
		}),
	}
}

// classify marks errors that must not be retried as permanent.
func (r *Retry) classify(err error) error {
	if err != nil && !r.retryable(err) {
		return backoff.Permanent(err)
	}
	return err
}

// InsertEvent implements audit.DataProvider.
func (r *Retry) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	return backoff.Retry(ctx, func() (any, error) {
		id, err := r.provider.InsertEvent(ctx, event)
		return id, r.classify(err)
	}, r.options("insert")...)
}

// ReplaceEvent implements audit.DataProvider.
func (r *Retry) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.classify(r.provider.ReplaceEvent(ctx, eventID, event))
	}, r.options("replace")...)
	return err
}

// GetEvent implements audit.DataProvider.
func (r *Retry) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.classify(r.provider.GetEvent(ctx, eventID, dest))
	}, r.options("get")...)
	return err
}

// CloneValue implements audit.DataProvider.
func (r *Retry) CloneValue(value any) (any, error) {
	return r.provider.CloneValue(value)
}

// Close closes the wrapped provider.
func (r *Retry) Close() error {
	if c, ok := r.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Package retry re-runs an operation with capped exponential backoff.
// Outbound SES and S3 calls use it, and so does the postgres unit-of-work
// runner when a transaction loses a serialization race.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Error classification
// ─────────────────────────────────────────────────────────────────────────────

type verdict int

const (
	verdictRetry verdict = iota + 1
	verdictStop
)

// classified marks an error as worth retrying or not. Do strips the mark
// before returning.
type classified struct {
	err     error
	verdict verdict
}

func (e *classified) Error() string { return e.err.Error() }
func (e *classified) Unwrap() error { return e.err }

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, verdict: verdictRetry}
}

// Permanent marks err as final; Do returns it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, verdict: verdictStop}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool { return verdictOf(err) == verdictRetry }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool { return verdictOf(err) == verdictStop }

func verdictOf(err error) verdict {
	var c *classified
	if errors.As(err, &c) {
		return c.verdict
	}
	return 0
}

func strip(err error) error {
	var c *classified
	if errors.As(err, &c) && c == err {
		return c.err
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Backoff
// ─────────────────────────────────────────────────────────────────────────────

// Backoff computes the wait before each retry.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64

	// Jitter spreads each delay by ±Jitter×delay (0 disables it).
	Jitter float64

	rand func() float64
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(b.Factor, float64(attempt-1))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		r := rand.Float64
		if b.rand != nil {
			r = b.rand
		}
		d += d * b.Jitter * (2*r() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// ─────────────────────────────────────────────────────────────────────────────
// Retrier
// ─────────────────────────────────────────────────────────────────────────────

// Retrier runs operations with a fixed policy. It holds no per-call state
// and is safe for concurrent use.
type Retrier struct {
	attempts int
	backoff  Backoff
	retryIf  func(error) bool
	onRetry  func(attempt int, err error, delay time.Duration)
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithMaxAttempts counts the first call too.
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.attempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.backoff.Initial = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.backoff.Max = d
		}
	}
}

func WithMultiplier(f float64) Option {
	return func(r *Retrier) {
		if f >= 1 {
			r.backoff.Factor = f
		}
	}
}

// WithJitter takes a factor between 0 and 1.
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		if j >= 0 && j <= 1 {
			r.backoff.Jitter = j
		}
	}
}

// WithRetryIf replaces the default rule (retry only Retryable errors).
// Permanent errors are never retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) { r.retryIf = fn }
}

// WithOnRetry observes each retry before the wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

// New creates a Retrier: 3 attempts, 100ms doubling up to 30s, 10% jitter.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		attempts: 3,
		backoff:  Backoff{Initial: 100 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: 0.1},
		retryIf:  IsRetryable,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do calls op until it succeeds, fails permanently, runs out of attempts
// or ctx ends. The returned error is op's last error without its mark.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return strip(last)
			}
			return err
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if IsPermanent(last) || !r.retryIf(last) || attempt >= r.attempts {
			return strip(last)
		}

		delay := r.backoff.Delay(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, last, delay)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return strip(last)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Presets
// ─────────────────────────────────────────────────────────────────────────────

// EmailRetrier backs off quickly because SES throttles per second.
func EmailRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(500*time.Millisecond),
		WithMaxDelay(10*time.Second),
		WithJitter(0.2),
	)
}

// StorageRetrier is tuned for proof uploads, where the user is waiting.
func StorageRetrier() *Retrier {
	return New(
		WithMaxAttempts(4),
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithMultiplier(1.5),
	)
}

// Package retry wraps remote writes with bounded exponential backoff and a
// run-scoped circuit breaker. Operations report their failure class through
// sentinel errors instead of exception-style control flow: the wrapper
// inspects the error chain and decides whether to retry, give up, or trip
// the breaker.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrPermanent marks validation-class failures (malformed payload,
	// 4xx other than precondition). Never retried, never counted against
	// the breaker.
	ErrPermanent = errors.New("permanent error")

	// ErrPrecondition marks a stale change token (HTTP 412 or an etag
	// mismatch). Not retried: the conflict resolves itself on the next
	// run once both tokens are re-read.
	ErrPrecondition = errors.New("precondition failed")

	// ErrBreakerOpen is returned for writes skipped because the breaker
	// tripped earlier in the run.
	ErrBreakerOpen = errors.New("circuit breaker open")
)

// Permanent wraps err as a validation-class failure.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Precondition wraps err as a stale-token failure.
func Precondition(err error) error {
	return fmt.Errorf("%w: %w", ErrPrecondition, err)
}

// Breaker is the run-scoped error budget. One breaker guards the writes to
// one side, so a degraded Side A never suppresses writes to Side B. It is
// owned by a single reconciliation goroutine and reset at the start of each
// run (or directional sweep).
type Breaker struct {
	limit   int
	errors  int
	tripped bool
}

// NewBreaker returns a breaker that trips after limit consecutive failed
// attempts.
func NewBreaker(limit int) *Breaker {
	return &Breaker{limit: limit}
}

// Tripped reports whether the error budget is exhausted.
func (b *Breaker) Tripped() bool { return b.tripped }

// Errors returns the current consecutive failure count.
func (b *Breaker) Errors() int { return b.errors }

// Reset clears the failure count and the tripped flag.
func (b *Breaker) Reset() {
	b.errors = 0
	b.tripped = false
}

func (b *Breaker) success() {
	b.errors = 0
}

func (b *Breaker) failure() {
	b.errors++
	if b.errors >= b.limit {
		b.tripped = true
	}
}

// Doer retries remote writes with exponential backoff, consulting a Breaker
// before and during every operation.
type Doer struct {
	Attempts int           // attempts per operation, including the first
	Base     time.Duration // first backoff interval; doubles per attempt
	Breaker  *Breaker
}

// NewDoer returns a Doer with the default policy: 3 attempts, 1s/2s waits,
// breaker tripping at 10 consecutive failures.
func NewDoer() *Doer {
	return &Doer{Attempts: 3, Base: time.Second, Breaker: NewBreaker(10)}
}

// Do runs op, retrying transient failures up to d.Attempts times. A
// permanent or precondition failure is returned immediately. When the
// breaker is (or becomes) tripped, the operation is skipped without delay
// and ErrBreakerOpen is returned.
func (d *Doer) Do(ctx context.Context, desc string, op func() error) error {
	if d.Breaker.Tripped() {
		log.Printf("[retry] breaker open, skipping %s", desc)
		return ErrBreakerOpen
	}

	// BackOff implementations are stateful; always build a fresh one.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.Base
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			d.Breaker.success()
			return nil
		}
		if errors.Is(err, ErrPermanent) || errors.Is(err, ErrPrecondition) {
			return backoff.Permanent(err)
		}
		d.Breaker.failure()
		if d.Breaker.Tripped() {
			log.Printf("[retry] breaker tripped after %d errors (%s: %v)", d.Breaker.Errors(), desc, err)
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrBreakerOpen, err))
		}
		if attempt >= d.Attempts {
			return backoff.Permanent(err)
		}
		log.Printf("[retry] attempt %d/%d failed for %s: %v", attempt, d.Attempts, desc, err)
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("%s: %w", desc, err)
	}
	return nil
}

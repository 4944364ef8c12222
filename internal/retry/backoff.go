// Package retry provides the bounded exponential backoff policy used by the
// legacy mesh transport and the realtime channel when a connection drops.
package retry

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultMaxAttempts bounds reconnection; after this many failures the
	// caller surfaces a terminal error instead of retrying forever.
	DefaultMaxAttempts = 5

	baseDelay = time.Second
)

// Policy computes per-attempt delays: 0, 1s, 2s, 4s, 8s ... doubling from
// BaseDelay, with the first attempt always immediate.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	clock clock.Clock
}

// NewPolicy returns a Policy with the default schedule.
func NewPolicy() *Policy {
	return &Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   baseDelay,
		clock:       clock.New(),
	}
}

// NewPolicyWithClock is used by tests to drive delays deterministically.
func NewPolicyWithClock(c clock.Clock) *Policy {
	p := NewPolicy()
	p.clock = c
	return p
}

// Delay returns the wait before the given zero-based attempt.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return p.BaseDelay << (attempt - 1)
}

// Do runs op up to MaxAttempts times, sleeping the scheduled delay between
// attempts. It returns nil on the first success, the last error otherwise.
// Context cancellation interrupts the wait and returns ctx.Err().
func (p *Policy) Do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			timer := p.clock.Timer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := op(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

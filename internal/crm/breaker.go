package crm

import (
	"sync"
	"time"
)

// clock abstracts time for breaker tests.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Breaker state names, exported through State() for metrics.
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half-open"
)

// Breaker is a per-process circuit breaker. It opens after threshold
// consecutive failures and stays open for resetTimeout; the first call after
// the timeout runs as a half-open trial. Success closes the breaker, failure
// re-opens it and restarts the timeout. State is not shared across
// instances.
type Breaker struct {
	mu           sync.Mutex
	failures     int
	threshold    int
	resetTimeout time.Duration
	state        string
	openedAt     time.Time
	clock        clock
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock sets a custom time source. Used by tests.
func WithClock(c clock) BreakerOption {
	return func(b *Breaker) { b.clock = c }
}

// NewBreaker returns a closed breaker. Non-positive arguments fall back to
// the adapter defaults (5 failures, 60 s reset).
func NewBreaker(threshold int, resetTimeout time.Duration, opts ...BreakerOption) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 60 * time.Second
	}
	b := &Breaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        BreakerClosed,
		clock:        realClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may proceed, transitioning open → half-open
// when the reset timeout has elapsed. A rejected call must not touch the
// network.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen {
		if b.clock.Now().Sub(b.openedAt) >= b.resetTimeout {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordFailure counts a failed call. A failure during the half-open trial
// re-opens immediately regardless of the count.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = b.clock.Now()
	}
}

// RecordSuccess resets the failure count and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = BreakerClosed
}

// State returns the current state for metrics and debugging.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

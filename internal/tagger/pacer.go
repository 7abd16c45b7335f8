package tagger

import (
	"context"
	"errors"
	"time"
)

// Pacer is the rate-limiting policy for external vision calls: a fixed
// inter-request delay plus bounded exponential-backoff retries on transient
// failures. The sleep function is injectable so tests run on a fake clock.
type Pacer struct {
	delay      time.Duration
	maxRetries int
	sleep      func(time.Duration)
}

// PacerOption configures a Pacer.
type PacerOption func(*Pacer)

// WithSleep replaces the sleep function (used by tests with a fake clock).
func WithSleep(sleep func(time.Duration)) PacerOption {
	return func(p *Pacer) { p.sleep = sleep }
}

// NewPacer creates a pacer with the given inter-request delay and retry bound.
func NewPacer(delay time.Duration, maxRetries int, opts ...PacerOption) *Pacer {
	p := &Pacer{delay: delay, maxRetries: maxRetries, sleep: time.Sleep}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait blocks for the configured inter-request delay.
func (p *Pacer) Wait() {
	if p.delay > 0 {
		p.sleep(p.delay)
	}
}

// Do runs fn, retrying transient failures (rate limit, timeout) up to the
// retry bound with exponential backoff. Non-transient errors and context
// cancellation return immediately.
func (p *Pacer) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt > 0 {
			p.sleep(p.delay * (1 << (attempt - 1)))
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
	}
	return err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

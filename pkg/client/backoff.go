package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// BackoffStrategy defines how to calculate the next wait time.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0.0 to 1.0
}

// DefaultBackoff returns the readiness probe strategy.
// Base: 200ms, Max: 5s, Factor: 2.0, Jitter: 0.2
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   200 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next calculates the wait duration for the given attempt (0-based).
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		return b.Base
	}

	delay := float64(b.Base)
	for i := 0; i < attempt && delay < float64(b.Max); i++ {
		delay *= b.Factor
	}
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	// delay * (1 +/- Jitter)
	if b.Jitter > 0 {
		delay += delay * (rand.Float64()*2 - 1) * b.Jitter
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// Pinger is anything with a readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitReady pings p until it answers, backing off between attempts. It
// gives up after maxWait or when ctx is done.
func WaitReady(ctx context.Context, p Pinger, b BackoffStrategy, maxWait time.Duration) error {
	if b == nil {
		b = DefaultBackoff()
	}
	deadline := time.Now().Add(maxWait)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if lastErr = p.Ping(ctx); lastErr == nil {
			return nil
		}

		wait := b.Next(attempt)
		if remaining := time.Until(deadline); remaining <= 0 {
			return fmt.Errorf("target not ready after %s (%d attempts): %w", maxWait, attempt+1, lastErr)
		} else if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

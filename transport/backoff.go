package transport

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned by Backoff.Wait once MaxAttempts have
// elapsed without success (spec.md §7 BackpressureExhausted feeds on
// this).
var ErrExhausted = errors.New("transport: backoff attempts exhausted")

// Backoff is the bounded exponential back-off policy the memory-full
// protocol (spec.md §4.C) uses between re-exchanges of a WRITE frame
// the device reported as FIFO-full. It is a plain value, independently
// constructible and testable without a live Transport.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff matches the "bounded exponential, capped at a
// configured maximum" language of spec.md §4.C with conservative
// defaults suitable for a device a few milliseconds away over serial.
var DefaultBackoff = Backoff{
	Base:        time.Millisecond,
	Max:         200 * time.Millisecond,
	MaxAttempts: 20,
}

// Delay returns the sleep duration before retry attempt n (0-based):
// Base * 2^n, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	var d = b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Wait sleeps for Delay(attempt), or returns ctx.Err() if ctx is
// cancelled first, or ErrExhausted if attempt >= MaxAttempts.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	if attempt >= b.MaxAttempts {
		return ErrExhausted
	}

	var timer = time.NewTimer(b.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

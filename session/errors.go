package session

import (
	"errors"
	"fmt"

	"github.com/hexastorm/core/frame"
)

// ErrCancelled is returned when ctx is cancelled between frame
// exchanges; no partial frame is ever sent on this path (spec.md §5).
var ErrCancelled = errors.New("session: cancelled")

// DeviceRejectedError is returned when the device reports parse_error
// or dispatch_error in a reply: the instruction is aborted and not
// retried automatically (spec.md §7 DeviceRejected).
type DeviceRejectedError struct {
	Kind   string // "parse" or "dispatch"
	Status frame.StatusByte
}

func (e *DeviceRejectedError) Error() string {
	return fmt.Sprintf("session: device rejected (%s): %v", e.Kind, e.Status)
}

// BackpressureExhaustedError is returned when the memory-full back-off
// policy's retry budget is spent without the device reporting room
// (spec.md §7 BackpressureExhausted).
type BackpressureExhaustedError struct {
	Attempts int
}

func (e *BackpressureExhaustedError) Error() string {
	return fmt.Sprintf("session: backpressure exhausted after %d attempts", e.Attempts)
}

func (e *BackpressureExhaustedError) Unwrap() error { return errBackoffExhausted }

// errBackoffExhausted is the sentinel BackpressureExhaustedError wraps,
// one stable value regardless of the attempt count. It is unexported,
// so only code inside this package can match it with errors.Is.
var errBackoffExhausted = errors.New("session: backoff attempts exhausted")

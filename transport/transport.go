// Package transport implements the transport session: component B.
// A Transport owns one full-duplex channel and exchanges exactly one
// frame in each direction per call, atomically. Nothing in this
// layer interprets status bits; Exchange only moves bytes.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/hexastorm/core/frame"
)

// ErrIo wraps every transport-level I/O failure (spec.md §7
// TransportIo).
var ErrIo = errors.New("transport: io error")

// Transport exchanges one frame for one reply, chip-select held for
// the whole 9-byte window in both directions.
type Transport interface {
	Exchange(ctx context.Context, out frame.Frame) (frame.Reply, error)
}

// ChipSelect scopes a single frame exchange: Assert is called before
// the bytes move, Release after, on every code path including errors.
type ChipSelect interface {
	Assert() error
	Release() error
}

// noopChipSelect satisfies ChipSelect for a SerialTransport created
// without a chip-select line (cs == nil).
type noopChipSelect struct{}

func (noopChipSelect) Assert() error  { return nil }
func (noopChipSelect) Release() error { return nil }

// withChipSelect runs fn with cs asserted, guaranteeing Release runs
// even if fn panics or returns an error.
func withChipSelect(cs ChipSelect, fn func() error) error {
	if err := cs.Assert(); err != nil {
		return fmt.Errorf("%w: chip-select assert: %v", ErrIo, err)
	}
	defer cs.Release()
	return fn()
}

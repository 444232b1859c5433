package transport

import (
	"context"
	"fmt"

	"github.com/pkg/term"

	"github.com/hexastorm/core/frame"
)

// serialPort is the subset of *term.Term this package depends on,
// narrowed for testability (see serial_pty_test.go, which exercises
// SerialTransport against a real tty pair without hardware).
type serialPort interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// SerialTransport exchanges frames over a termios serial device,
// generalizing samoyed/src/serial_port.go's open/write/read/close
// shape into the spec's atomic, full-duplex, fixed-width exchange. A
// ChipSelect (typically GPIOChipSelect) is held for the whole 9-byte
// window in both directions.
type SerialTransport struct {
	port serialPort
	cs   ChipSelect
}

// OpenSerial opens devicename at baud and wraps it as a Transport. cs
// may be nil, in which case a no-op chip-select is used (e.g. when the
// device's chip-select is tied permanently low by hardware strapping).
func OpenSerial(devicename string, baud int, cs ChipSelect) (*SerialTransport, error) {
	var t, err = term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIo, devicename, err)
	}

	switch baud {
	case 0: // leave alone
	default:
		if err := t.SetSpeed(baud); err != nil {
			t.Close()
			return nil, fmt.Errorf("%w: set speed %d on %s: %v", ErrIo, baud, devicename, err)
		}
	}

	if cs == nil {
		cs = noopChipSelect{}
	}

	return &SerialTransport{port: t, cs: cs}, nil
}

// newSerialTransportForTest lets serial_pty_test.go inject a fake serialPort.
func newSerialTransportForTest(port serialPort, cs ChipSelect) *SerialTransport {
	if cs == nil {
		cs = noopChipSelect{}
	}
	return &SerialTransport{port: port, cs: cs}
}

// Close releases the underlying serial handle.
func (s *SerialTransport) Close() error {
	return s.port.Close()
}

// Exchange writes the 9-byte command frame and reads back the 9-byte
// reply, chip-select asserted for the entire window. No partial frame
// is ever left half-written: a short write or short read is reported
// as ErrIo before any bytes are interpreted.
func (s *SerialTransport) Exchange(ctx context.Context, out frame.Frame) (frame.Reply, error) {
	if err := ctx.Err(); err != nil {
		return frame.Reply{}, err
	}

	var wire = frame.EncodeCommand(out)
	var reply frame.Reply

	var err = withChipSelect(s.cs, func() error {
		var n, werr = s.port.Write(wire[:])
		if werr != nil || n != len(wire) {
			return fmt.Errorf("%w: short write (%d/%d): %v", ErrIo, n, len(wire), werr)
		}

		var in [9]byte
		var total = 0
		for total < len(in) {
			var r, rerr = s.port.Read(in[total:])
			if rerr != nil {
				return fmt.Errorf("%w: read: %v", ErrIo, rerr)
			}
			if r == 0 {
				return fmt.Errorf("%w: read returned 0 bytes", ErrIo)
			}
			total += r
		}

		reply = frame.DecodeReply(in)
		return nil
	})

	if err != nil {
		return frame.Reply{}, err
	}
	return reply, nil
}

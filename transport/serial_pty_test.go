package transport

import (
	"context"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexastorm/core/frame"
)

// TestSerialTransportOverPTY pairs a pty master/slave the way
// samoyed/src/serial_port.go's counterpart tests would need real
// hardware for, and instead drives the slave side with a goroutine
// that plays the part of the device: read 9 bytes, reply with a
// canned status and the same word echoed back.
func TestSerialTransportOverPTY(t *testing.T) {
	var master, slave, err = pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})

	var done = make(chan struct{})
	go func() {
		defer close(done)
		var in [9]byte
		var total = 0
		for total < len(in) {
			var n, rerr = slave.Read(in[total:])
			if rerr != nil {
				return
			}
			total += n
		}

		var reply = frame.EncodeCommand(frame.Frame{Command: frame.Command(0), Word: frame.DecodeReply(in).Word})
		slave.Write(reply[:])
	}()

	var tr = newSerialTransportForTest(master, nil)

	var reply, exchErr = tr.Exchange(context.Background(), frame.Frame{Command: frame.CommandWrite, Word: 0x42})
	require.NoError(t, exchErr)
	assert.Equal(t, uint64(0x42), reply.Word)

	<-done
}

func TestSerialTransportShortReadIsIo(t *testing.T) {
	var tr = newSerialTransportForTest(&truncatingPort{}, nil)

	var _, err = tr.Exchange(context.Background(), frame.Frame{Command: frame.CommandRead, Word: 0})
	require.ErrorIs(t, err, ErrIo)
}

// truncatingPort simulates a device that accepts the write but never
// answers, to exercise the "never leave a half-read frame silently
// accepted" path without requiring a real broken device.
type truncatingPort struct{}

func (truncatingPort) Write(p []byte) (int, error) { return len(p), nil }
func (truncatingPort) Read(p []byte) (int, error)  { return 0, nil }
func (truncatingPort) Close() error                { return nil }

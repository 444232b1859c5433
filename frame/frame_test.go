package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeCommandRoundTrip(t *testing.T) {
	// spec scenario 1: encode_command(WRITE=0x04, 0x2A) -> 04 00...00 2A
	var f = Frame{Command: CommandWrite, Word: 0x2A}
	var wire = EncodeCommand(f)

	assert.Equal(t, [9]byte{0x04, 0, 0, 0, 0, 0, 0, 0, 0x2A}, wire)

	var reply = DecodeReply(wire)
	assert.Equal(t, uint64(0x2A), reply.Word)
	assert.Equal(t, StatusByte(0x04), reply.Status)
}

func TestDecodeReplyZeroStatus(t *testing.T) {
	var wire = [9]byte{0, 0, 0, 0, 0, 0, 0, 0, 0x2A}
	var reply = DecodeReply(wire)

	assert.Equal(t, StatusByte(0), reply.Status)
	assert.Equal(t, uint64(0x2A), reply.Word)
	assert.False(t, reply.Status.MemoryFull())
	assert.False(t, reply.Status.Executing())
	assert.False(t, reply.Status.ParseError())
	assert.False(t, reply.Status.DispatchError())
}

func TestStatusByteBitLayout(t *testing.T) {
	// version=0xA, executing=1, memory_full=0, parse_error=1, dispatch_error=0
	var s = StatusByte(0xA0 | 0x08 | 0x02)

	assert.Equal(t, uint8(0xA), s.Version())
	assert.True(t, s.Executing())
	assert.False(t, s.MemoryFull())
	assert.True(t, s.ParseError())
	assert.False(t, s.DispatchError())
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "WRITE", CommandWrite.String())
	assert.Equal(t, "POSITION", CommandPosition.String())
}

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// mockGPIOLine is a test double for gpioLine, recording the last
// value set — grounded on samoyed/src/ptt_test.go's mockGPIODLine.
type mockGPIOLine struct {
	value  int
	closed bool
}

func (m *mockGPIOLine) SetValue(v int) error {
	m.value = v
	return nil
}

func (m *mockGPIOLine) Close() error {
	m.closed = true
	return nil
}

func TestGPIOChipSelectAssertRelease(t *testing.T) {
	var mock = &mockGPIOLine{}
	var cs = newGPIOChipSelectForTest(mock, false)

	assert.NoError(t, cs.Assert())
	assert.Equal(t, 0, mock.value)

	assert.NoError(t, cs.Release())
	assert.Equal(t, 1, mock.value)
}

func TestGPIOChipSelectInverted(t *testing.T) {
	var mock = &mockGPIOLine{}
	var cs = newGPIOChipSelectForTest(mock, true)

	assert.NoError(t, cs.Assert())
	assert.Equal(t, 1, mock.value)

	assert.NoError(t, cs.Release())
	assert.Equal(t, 0, mock.value)
}

func TestGPIOChipSelectReleasedEvenOnError(t *testing.T) {
	var mock = &mockGPIOLine{}
	var cs = newGPIOChipSelectForTest(mock, false)

	var callErr = withChipSelect(cs, func() error {
		return assert.AnError
	})

	assert.ErrorIs(t, callErr, assert.AnError)
	assert.Equal(t, 1, mock.value, "release must run even when the body returns an error")
}

func TestGPIOChipSelectClose(t *testing.T) {
	var mock = &mockGPIOLine{}
	var cs = newGPIOChipSelectForTest(mock, false)

	assert.NoError(t, cs.Close())
	assert.True(t, mock.closed)
}

package transport

import (
	"context"
	"sync"

	"github.com/hexastorm/core/frame"
)

// MockTransport is a scriptable in-memory test double recording every
// frame it was handed, and replying with a caller-supplied sequence of
// statuses/words (or a single reply reused for every call). It takes
// the place of hardware the way samoyed's mockGPIODLine stands in for
// a GPIO line: no goroutines, no real I/O, just recorded calls.
type MockTransport struct {
	mu sync.Mutex

	// Replies, consumed in order; once exhausted, the last entry (or
	// Default if Replies is empty) is reused for every further call.
	Replies []frame.Reply
	Default frame.Reply

	// ExchangeFunc, if set, overrides Replies entirely and is called
	// for every Exchange; useful for reply sequences that depend on
	// what was sent.
	ExchangeFunc func(out frame.Frame, callIndex int) (frame.Reply, error)

	Sent []frame.Frame
}

func (m *MockTransport) Exchange(ctx context.Context, out frame.Frame) (frame.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var idx = len(m.Sent)
	m.Sent = append(m.Sent, out)

	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(out, idx)
	}

	if len(m.Replies) == 0 {
		return m.Default, nil
	}
	if idx < len(m.Replies) {
		return m.Replies[idx], nil
	}
	return m.Replies[len(m.Replies)-1], nil
}

// CallCount returns how many exchanges have been recorded.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

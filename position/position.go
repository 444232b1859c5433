// Package position implements the position tracker: component G. It
// is a cached shadow of the device's motor position, updated whenever
// a POSITION exchange completes. The device's own internal
// counters remain authoritative; this mirror exists for host-side
// scheduling and test assertions.
package position

import "fmt"

// Mirror holds one signed coordinate per motor.
type Mirror struct {
	coords []int64
}

// New returns a Mirror for the given motor count, all coordinates
// zeroed.
func New(motors int) *Mirror {
	return &Mirror{coords: make([]int64, motors)}
}

// Set records the device-reported position for one motor index.
func (m *Mirror) Set(motor int, value int64) {
	m.coords[motor] = value
}

// Get returns the last recorded position for one motor index.
func (m *Mirror) Get(motor int) int64 {
	return m.coords[motor]
}

// Snapshot returns a copy of every motor's last recorded position, in
// motor-index order.
func (m *Mirror) Snapshot() []int64 {
	var out = make([]int64, len(m.coords))
	copy(out, m.coords)
	return out
}

func (m *Mirror) String() string {
	return fmt.Sprintf("%v", m.coords)
}

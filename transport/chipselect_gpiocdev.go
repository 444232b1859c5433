package transport

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// gpioLine is the subset of *gpiocdev.Line this package depends on,
// narrowed for testability the way samoyed/src/ptt_test.go's
// mockGPIODLine stands in for a *gpiod.Line.
type gpioLine interface {
	SetValue(v int) error
	Close() error
}

// GPIOChipSelect drives a chip-select line through the Linux GPIO
// character device, asserted low (active) for the duration of one
// frame exchange and released immediately after — generalized from
// samoyed/src/ptt.go's gpiod_line request/set/close lifecycle, applied
// to a chip-select line instead of a PTT output.
type GPIOChipSelect struct {
	line        gpioLine
	activeLevel int
	idleLevel   int
}

// OpenGPIOChipSelect requests offset on chip as an output line,
// initially idle. invert swaps which logic level counts as asserted,
// for boards that wire chip-select active-high.
func OpenGPIOChipSelect(chip string, offset int, invert bool) (*GPIOChipSelect, error) {
	var active, idle = 0, 1
	if invert {
		active, idle = 1, 0
	}

	var line, err = gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(idle))
	if err != nil {
		return nil, fmt.Errorf("%w: request chip-select line %s:%d: %v", ErrIo, chip, offset, err)
	}

	return &GPIOChipSelect{line: line, activeLevel: active, idleLevel: idle}, nil
}

func newGPIOChipSelectForTest(line gpioLine, invert bool) *GPIOChipSelect {
	var active, idle = 0, 1
	if invert {
		active, idle = 1, 0
	}
	return &GPIOChipSelect{line: line, activeLevel: active, idleLevel: idle}
}

func (g *GPIOChipSelect) Assert() error {
	if err := g.line.SetValue(g.activeLevel); err != nil {
		return fmt.Errorf("%w: assert chip-select: %v", ErrIo, err)
	}
	return nil
}

func (g *GPIOChipSelect) Release() error {
	if err := g.line.SetValue(g.idleLevel); err != nil {
		return fmt.Errorf("%w: release chip-select: %v", ErrIo, err)
	}
	return nil
}

// Close releases the requested GPIO line.
func (g *GPIOChipSelect) Close() error {
	return g.line.Close()
}

// Package scanline implements the scanline bit-layout engine:
// component E. Geometry turns rotor speed, facet count, and the active
// window fraction into tick counts; Run drives a session.Session
// through the pin -> spin-up -> stable-wait -> stream lifecycle
// spec.md §4.E describes, generalizing the "coroutine-like wait loop"
// design note (spec.md §9) into explicit time-budgeted polls the way
// samoyed/src/dwgpsnmea.go polls a serial reader with a deadline.
package scanline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hexastorm/core/frame"
	"github.com/hexastorm/core/session"
)

// ErrWindowTicksZero is returned by ChooseBitsPerLine when the
// computed active window has no ticks at all (degenerate geometry).
var ErrWindowTicksZero = errors.New("scanline: window has zero ticks")

// ErrSyncTimeout is spec.md §7's ScanSyncTimeout: the photodiode-sync
// bit never went stable within stable_s.
var ErrSyncTimeout = errors.New("scanline: sync timeout waiting for stable")

// Geometry computes ticks_per_facet and the active window's tick count
// from the raw rotor/facet/fraction parameters, independent of any
// chosen bits_per_line (spec.md §4.E "Geometry").
func Geometry(fMotorHz, rpm float64, facets int, startFrac, endFrac float64) (ticksPerFacet, windowTicks uint64) {
	ticksPerFacet = uint64(math.Round(fMotorHz * 60 / (rpm * float64(facets))))
	windowTicks = uint64(math.Floor(float64(ticksPerFacet) * (endFrac - startFrac)))
	return ticksPerFacet, windowTicks
}

// ChooseBitsPerLine picks a bits_per_line that divides windowTicks
// exactly (spec.md §4.E: "implementations must choose bits_per_line so
// [the] quotient is exact"), preferring hint if it already divides
// evenly, otherwise the largest divisor of windowTicks not exceeding
// hint. A hint of 0 searches from windowTicks itself. Always succeeds
// for windowTicks > 0, since 1 divides everything; fails only when the
// window itself has no ticks.
func ChooseBitsPerLine(windowTicks uint64, hint uint64) (uint64, error) {
	if windowTicks == 0 {
		return 0, ErrWindowTicksZero
	}
	if hint == 0 || hint > windowTicks {
		hint = windowTicks
	}
	for b := hint; b >= 1; b-- {
		if windowTicks%b == 0 {
			return b, nil
		}
	}
	return 1, nil
}

// Config holds the lifecycle timing and bit-order parameters Run
// needs beyond what session.Session.Model() already carries.
type Config struct {
	Direction    bool
	SpinupS      float64
	StableS      float64
	PollInterval time.Duration // how often the stable-wait and facet-sync polls read state
	StableBit    uint          // bit index within ReadState's aux word signalling photodiode sync
	FacetSyncBit uint          // bit index within ReadState's aux word that pulses once per facet sync
	SingleLine   bool          // spec.md §4.E: device repeats the pattern without re-streaming
}

// Run drives sess through a full scan: enable the polygon motor, wait
// spinup_s, poll read_state until the photodiode-sync bit is stable
// (or stable_s elapses), then stream bits as laserline instructions
// until stopCh closes or ctx is cancelled. In SingleLine mode, bits is
// streamed exactly once and the device repeats it on its own; Run then
// just waits for stop/cancel instead of re-streaming. When
// sess.Model().SingleFacet() is set (spec.md §4.E: "only one of the
// facets is exposed"), Run throttles its own streaming cadence to match
// — it only issues a new laserline once per facets() facet-sync pulses,
// rather than every loop iteration (spec.md §8: "the laserline stream
// is accepted once per four facet syncs").
func Run(ctx context.Context, sess *session.Session, cfg Config, bits []bool, stopCh <-chan struct{}) error {
	if err := sess.SetPins(ctx, frame.PinPolygonEnable); err != nil {
		return fmt.Errorf("scanline: enable polygon: %w", err)
	}

	if err := sleepOrCancel(ctx, secondsToDuration(cfg.SpinupS)); err != nil {
		return err
	}

	if err := waitStable(ctx, sess, cfg); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("scanline: %w", ctx.Err())
		case <-stopCh:
			return nil
		default:
		}

		if sess.Model().SingleFacet() {
			if err := waitFacetSyncs(ctx, sess, cfg, sess.Model().Facets()); err != nil {
				return err
			}
		}

		if err := sess.Scanline(ctx, cfg.Direction, bits); err != nil {
			return fmt.Errorf("scanline: stream: %w", err)
		}

		if cfg.SingleLine {
			select {
			case <-ctx.Done():
				return fmt.Errorf("scanline: %w", ctx.Err())
			case <-stopCh:
				return nil
			}
		}
	}
}

// waitFacetSyncs blocks until n rising edges of cfg.FacetSyncBit have
// been observed in ReadState's aux word, each edge standing in for one
// facet-sync pulse (spec.md §4.E glossary: "a photodiode pulse produced
// once per facet"). Called only in single_facet mode, where the device
// gates all but one facet per rotation off and the host must not
// restream faster than that cadence.
func waitFacetSyncs(ctx context.Context, sess *session.Session, cfg Config, n int) error {
	if n <= 0 {
		return nil
	}

	var _, aux, err = sess.ReadState(ctx)
	if err != nil {
		return fmt.Errorf("scanline: wait facet sync: %w", err)
	}
	var prev = aux&(uint64(1)<<cfg.FacetSyncBit) != 0

	var count = 0
	for count < n {
		if ctx.Err() != nil {
			return fmt.Errorf("scanline: %w", ctx.Err())
		}
		if err := sleepOrCancel(ctx, cfg.PollInterval); err != nil {
			return err
		}

		var _, aux2, err = sess.ReadState(ctx)
		if err != nil {
			return fmt.Errorf("scanline: wait facet sync: %w", err)
		}
		var cur = aux2&(uint64(1)<<cfg.FacetSyncBit) != 0
		if cur && !prev {
			count++
		}
		prev = cur
	}
	return nil
}

func waitStable(ctx context.Context, sess *session.Session, cfg Config) error {
	var deadline = time.Now().Add(secondsToDuration(cfg.StableS))

	for {
		if ctx.Err() != nil {
			return fmt.Errorf("scanline: %w", ctx.Err())
		}
		if time.Now().After(deadline) {
			return ErrSyncTimeout
		}

		var _, aux, err = sess.ReadState(ctx)
		if err != nil {
			return fmt.Errorf("scanline: wait stable: %w", err)
		}
		if aux&(uint64(1)<<cfg.StableBit) != 0 {
			return nil
		}

		if err := sleepOrCancel(ctx, cfg.PollInterval); err != nil {
			return err
		}
	}
}

func sleepOrCancel(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	var timer = time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("scanline: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// Package segment implements the polynomial trajectory segmenter:
// component D. It splits a move of total_ticks spanning coefficients
// [c0, c1, c2] per motor into segments of at most maxTicks ticks each,
// re-originating the cubic at each segment's start offset, and rejects
// any segment that would violate the device's Nyquist constraint or
// overflow its signed fixed-point coefficient width.
//
// All arithmetic is done in exact integers (math/big) per spec.md §9:
// floating point is never substituted for re-origination or the
// Nyquist bound, both of which have strict overflow/exactness
// contracts.
package segment

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrOverflow is returned when a re-originated coefficient does not
// fit the device's signed 64-bit coefficient width.
var ErrOverflow = errors.New("segment: coefficient overflow")

// ErrNyquist is returned when a segment's maximum step rate would
// exceed F_MOTOR/2 for some motor.
var ErrNyquist = errors.New("segment: nyquist violation")

// Segment is one bounded-length piece of a move trajectory, with
// coefficients already re-originated to its own local time base.
type Segment struct {
	Ticks uint64
	Coefs [][3]int64 // per motor
}

// Split breaks (totalTicks, coefs) into segments of at most maxTicks
// ticks, re-originating each motor's cubic at the segment's start
// offset. fMotorHz is the device's fixed sample frequency, used for
// the Nyquist check (|step rate| < fMotorHz/2).
func Split(totalTicks uint64, coefs [][3]int64, maxTicks uint64, fMotorHz uint64) ([]Segment, error) {
	if maxTicks == 0 {
		return nil, fmt.Errorf("segment: maxTicks must be > 0")
	}
	if totalTicks == 0 {
		return nil, fmt.Errorf("segment: totalTicks must be > 0")
	}

	var numFull = totalTicks / maxTicks
	var remainder = totalTicks % maxTicks

	var numSegments = numFull
	if remainder > 0 {
		numSegments++
	}

	var out = make([]Segment, 0, numSegments)
	var tau = new(big.Int)

	for i := uint64(0); i < numSegments; i++ {
		var ticks = maxTicks
		if i == numFull {
			ticks = remainder
		}

		var reoriginated = make([][3]int64, len(coefs))
		for motor, c := range coefs {
			var c0p, c1p, c2p, err = reoriginate(c, tau)
			if err != nil {
				return nil, fmt.Errorf("segment %d motor %d: %w", i, motor, err)
			}
			if err := checkNyquist(c0p, c1p, c2p, ticks, fMotorHz); err != nil {
				return nil, fmt.Errorf("segment %d motor %d: %w", i, motor, err)
			}
			reoriginated[motor] = [3]int64{c0p, c1p, c2p}
		}

		out = append(out, Segment{Ticks: ticks, Coefs: reoriginated})
		tau.Add(tau, new(big.Int).SetUint64(maxTicks))
	}

	return out, nil
}

// reoriginate computes c0' = c0 + 2*c1*tau + 3*c2*tau^2, c1' = c1 +
// 3*c2*tau, c2' = c2, in exact arbitrary-precision integers, then
// verifies the results fit the device's signed 64-bit width.
func reoriginate(c [3]int64, tau *big.Int) (c0p, c1p, c2p int64, err error) {
	var bc0 = big.NewInt(c[0])
	var bc1 = big.NewInt(c[1])
	var bc2 = big.NewInt(c[2])

	var tau2 = new(big.Int).Mul(tau, tau)

	var c0Big = new(big.Int).Add(bc0, new(big.Int).Mul(big.NewInt(2), new(big.Int).Mul(bc1, tau)))
	c0Big.Add(c0Big, new(big.Int).Mul(big.NewInt(3), new(big.Int).Mul(bc2, tau2)))

	var c1Big = new(big.Int).Add(bc1, new(big.Int).Mul(big.NewInt(3), new(big.Int).Mul(bc2, tau)))

	var c0v, ok0 = toInt64(c0Big)
	if !ok0 {
		return 0, 0, 0, fmt.Errorf("%w: c0' = %s does not fit int64", ErrOverflow, c0Big)
	}
	var c1v, ok1 = toInt64(c1Big)
	if !ok1 {
		return 0, 0, 0, fmt.Errorf("%w: c1' = %s does not fit int64", ErrOverflow, c1Big)
	}

	return c0v, c1v, c[2], nil
}

func toInt64(v *big.Int) (int64, bool) {
	if !v.IsInt64() {
		return 0, false
	}
	return v.Int64(), true
}

// checkNyquist bounds |v(t)| = |c0' + 2*c1'*t + 3*c2'*t^2| over 0 <= t
// < ticks analytically: v(t) is a quadratic in t, so its extremum over
// the interval is at one of the two endpoints or at its vertex (if the
// vertex falls inside the interval). All three candidates are
// evaluated exactly with math/big and compared against fMotorHz/2
// without ever converting to floating point.
func checkNyquist(c0p, c1p, c2p int64, ticks uint64, fMotorHz uint64) error {
	if ticks == 0 {
		return nil
	}

	var a = new(big.Int).Mul(big.NewInt(3), big.NewInt(c2p)) // coefficient of t^2 in v(t)
	var b = new(big.Int).Mul(big.NewInt(2), big.NewInt(c1p)) // coefficient of t in v(t)
	var c = big.NewInt(c0p)

	var evalAt = func(t *big.Int) *big.Int {
		var v = new(big.Int).Mul(a, new(big.Int).Mul(t, t))
		v.Add(v, new(big.Int).Mul(b, t))
		v.Add(v, c)
		return v
	}

	var exceeds = func(v *big.Int) bool {
		// |v| > fMotorHz/2  <=>  2*|v| > fMotorHz. spec.md §4.D's prose
		// says "below F_MOTOR/2" but its operative rule rejects when the
		// bound "exceeds" the threshold; |v| == F_MOTOR/2 is therefore
		// accepted, not rejected.
		var twice = new(big.Int).Mul(big.NewInt(2), new(big.Int).Abs(v))
		return twice.Cmp(new(big.Int).SetUint64(fMotorHz)) > 0
	}

	if exceeds(evalAt(big.NewInt(0))) {
		return fmt.Errorf("%w: |v(0)| exceeds F_MOTOR/2", ErrNyquist)
	}
	if exceeds(evalAt(new(big.Int).SetUint64(ticks - 1))) {
		return fmt.Errorf("%w: |v(ticks-1)| exceeds F_MOTOR/2", ErrNyquist)
	}

	if a.Sign() != 0 {
		// Vertex of v(t) = a*t^2 + b*t + c is at t* = -b/(2a); its value
		// there is c - b^2/(4a). Evaluated exactly as a rational.
		var bSquared = new(big.Int).Mul(b, b)
		var fourA = new(big.Int).Mul(big.NewInt(4), a)

		var lastTick = new(big.Rat).SetInt(new(big.Int).SetUint64(ticks - 1))
		var vertexTime = new(big.Rat).SetFrac(new(big.Int).Neg(b), new(big.Int).Mul(big.NewInt(2), a))
		if vertexTime.Sign() >= 0 && vertexTime.Cmp(lastTick) <= 0 {
			var vertexValue = new(big.Rat).Sub(
				new(big.Rat).SetInt(c),
				new(big.Rat).SetFrac(bSquared, fourA),
			)
			var twice = new(big.Rat).Mul(big.NewRat(2, 1), new(big.Rat).Abs(vertexValue))
			var threshold = new(big.Rat).SetInt(new(big.Int).SetUint64(fMotorHz))
			if twice.Cmp(threshold) > 0 {
				return fmt.Errorf("%w: |v(t*)| exceeds F_MOTOR/2 at vertex", ErrNyquist)
			}
		}
	}

	return nil
}

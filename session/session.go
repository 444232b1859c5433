// Package session implements the dispatcher: component C. Session is
// the host-facing API of spec.md §6.3, built on top of a transport.Transport
// and the frame wire codec. It owns the memory-full back-off protocol,
// the never-reorder-within-an-instruction guarantee, and cooperative
// cancellation polled between frame exchanges.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/hexastorm/core/frame"
	"github.com/hexastorm/core/internal/tracelog"
	"github.com/hexastorm/core/params"
	"github.com/hexastorm/core/position"
	"github.com/hexastorm/core/segment"
	"github.com/hexastorm/core/transport"
)

// Transport is the subset of transport.Transport a Session depends on;
// declared locally so tests can supply a double without importing the
// transport package.
type Transport interface {
	Exchange(ctx context.Context, out frame.Frame) (frame.Reply, error)
}

// Session is the dispatcher: it owns one Transport, the device's frozen
// parameter Model, and a cached position.Mirror, and exposes the
// move/pin/scanline/status operations spec.md §6.3 names. A Session is
// not safe for concurrent use from multiple goroutines — spec.md's
// ordering guarantees assume one caller submitting instructions at a
// time.
type Session struct {
	tr      Transport
	model   params.Model
	pos     *position.Mirror
	backoff transport.Backoff
	logger  *log.Logger
	trace   *tracelog.Logger
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithLogger overrides the default logger (log.Default()).
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithBackoff overrides the default memory-full back-off policy.
func WithBackoff(b transport.Backoff) Option {
	return func(s *Session) { s.backoff = b }
}

// WithTraceLog attaches a tracelog.Logger that records every frame
// exchanged over the Transport, for post-mortem debugging. Nil (the
// default) disables trace logging entirely.
func WithTraceLog(l *tracelog.Logger) Option {
	return func(s *Session) { s.trace = l }
}

// New returns a Session bound to tr and model, with a fresh
// position.Mirror sized to model.Motors().
func New(tr Transport, model params.Model, opts ...Option) *Session {
	var s = &Session{
		tr:      tr,
		model:   model,
		pos:     position.New(model.Motors()),
		backoff: transport.DefaultBackoff,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the Session's frozen parameter model.
func (s *Session) Model() params.Model { return s.model }

// Position returns the Session's cached position.Mirror.
func (s *Session) Position() *position.Mirror { return s.pos }

// Start issues the single-exchange START command.
func (s *Session) Start(ctx context.Context) (frame.StatusByte, error) {
	return s.single(ctx, frame.Frame{Command: frame.CommandStart})
}

// Stop issues the single-exchange STOP command.
func (s *Session) Stop(ctx context.Context) (frame.StatusByte, error) {
	return s.single(ctx, frame.Frame{Command: frame.CommandStop})
}

// ReadState issues the single-exchange READ command, returning the
// status byte and the auxiliary word the device reports (photodiode
// sync bit among others; spec.md §4.E reads this to detect "stable").
func (s *Session) ReadState(ctx context.Context) (frame.StatusByte, uint64, error) {
	var reply, err = s.exchange(ctx, frame.Frame{Command: frame.CommandRead})
	if err != nil {
		return frame.StatusByte(0), 0, err
	}
	return reply.Status, reply.Word, nil
}

// ReadPosition issues one POSITION exchange per motor (Open Question
// decision #2), folding the motor index into the request word's low
// byte, and returns every motor's signed position in index order. The
// Session's position.Mirror is updated as each exchange completes.
func (s *Session) ReadPosition(ctx context.Context) ([]int64, error) {
	for i := 0; i < s.model.Motors(); i++ {
		var reply, err = s.exchange(ctx, frame.Frame{Command: frame.CommandPosition, Word: uint64(i)})
		if err != nil {
			return nil, err
		}
		s.pos.Set(i, int64(reply.Word))
	}
	return s.pos.Snapshot(), nil
}

// single performs one non-retried, non-cancellable exchange (start/stop
// per spec.md §5: "start/stop are not cancellable — they each consist
// of one exchange").
func (s *Session) single(ctx context.Context, f frame.Frame) (frame.StatusByte, error) {
	var reply, err = s.exchange(ctx, f)
	if err != nil {
		return frame.StatusByte(0), err
	}
	return reply.Status, nil
}

// exchange wraps a single Transport.Exchange with the dispatcher's
// error context and optional trace logging; used for operations
// (READ, POSITION) that are not part of an instruction's frame
// sequence and so never retry on memory_full.
func (s *Session) exchange(ctx context.Context, f frame.Frame) (frame.Reply, error) {
	var reply, err = s.tr.Exchange(ctx, f)
	if err != nil {
		return frame.Reply{}, fmt.Errorf("session: %s: %w", f.Command, err)
	}
	s.recordTrace(f, reply)
	return reply, nil
}

// recordTrace appends an exchange to the attached trace log, if any.
// A logging failure is reported but never aborts the exchange itself.
func (s *Session) recordTrace(out frame.Frame, in frame.Reply) {
	if s.trace == nil {
		return
	}
	if err := s.trace.Record(out, in); err != nil {
		s.logger.Warn("trace log write failed", "err", err)
	}
}

// Submit sends frames one at a time, in order, applying the
// memory-full back-off protocol of spec.md §4.C to each: before
// advancing past a WRITE frame, if the reply's memory_full bit is set,
// the same frame is re-exchanged (idempotent, per spec.md §4.C) after
// a back-off delay, up to the policy's attempt budget. A parse_error
// or dispatch_error reply aborts the whole instruction immediately,
// after the frames already sent remain sent (spec.md §7: "either all
// its frames enter the device FIFO or the dispatcher returns an
// error"). ctx is polled before each frame, never mid-exchange.
func (s *Session) Submit(ctx context.Context, frames []frame.Frame) error {
	for i, f := range frames {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: aborted before frame %d/%d", ErrCancelled, i, len(frames))
		}

		var attempt = 0
		for {
			var reply, err = s.tr.Exchange(ctx, f)
			if err != nil {
				return fmt.Errorf("session: frame %d/%d: %w", i, len(frames), err)
			}
			s.recordTrace(f, reply)

			if reply.Status.MemoryFull() {
				s.logger.Debug("memory full, backing off", "frame", i, "attempt", attempt)
				if werr := s.backoff.Wait(ctx, attempt); werr != nil {
					if ctx.Err() != nil {
						return fmt.Errorf("%w: waiting for memory to free", ErrCancelled)
					}
					return &BackpressureExhaustedError{Attempts: attempt + 1}
				}
				attempt++
				continue
			}

			if reply.Status.ParseError() {
				s.logger.Warn("device rejected frame", "frame", i, "kind", "parse")
				return &DeviceRejectedError{Kind: "parse", Status: reply.Status}
			}
			if reply.Status.DispatchError() {
				s.logger.Warn("device rejected frame", "frame", i, "kind", "dispatch")
				return &DeviceRejectedError{Kind: "dispatch", Status: reply.Status}
			}

			break
		}
	}
	return nil
}

// Move applies the segmenter to (totalTicks, coefsPerMotor), then
// submits each resulting segment's MOVE instruction in order. Segments
// are framed and submitted back to back within this single call, so
// no other instruction can interleave between them.
func (s *Session) Move(ctx context.Context, totalTicks uint64, coefsPerMotor [][3]int64) error {
	var segments, err = segment.Split(totalTicks, coefsPerMotor, s.model.TicksMove(), uint64(s.model.FMotor()))
	if err != nil {
		return fmt.Errorf("session: move: %w", err)
	}

	for i, seg := range segments {
		var frames, encErr = frame.EncodeMove(seg.Ticks, seg.Coefs, s.model.TicksMove())
		if encErr != nil {
			return fmt.Errorf("session: move: segment %d: %w", i, encErr)
		}
		if err := s.Submit(ctx, frames); err != nil {
			return fmt.Errorf("session: move: segment %d: %w", i, err)
		}
	}
	return nil
}

// SetPins submits a single PIN instruction carrying vector.
func (s *Session) SetPins(ctx context.Context, vector byte) error {
	return s.Submit(ctx, frame.EncodePin(vector))
}

// ErrBitsOverLong is returned when Scanline is handed more bits than
// model.BitsPerLine() (spec.md §7 ScanOverLong).
var ErrBitsOverLong = errors.New("session: bit pattern exceeds bits_per_line")

// Scanline packs bits into the device's data-word layout and submits a
// single LASERLINE instruction. direction selects bit order within
// each word: forward (true) fills a word LSB-first, backward (false)
// fills it MSB-first (spec.md §4.E). bits must not exceed model.BitsPerLine();
// fewer bits leave the remaining positions zero (laser off) — see
// packBits for which side of the last word that padding falls on.
func (s *Session) Scanline(ctx context.Context, direction bool, bits []bool) error {
	var words, err = packBits(bits, s.model.BitsPerLine(), s.model.WordsPerLine(), direction)
	if err != nil {
		return err
	}

	var frames, encErr = frame.EncodeLaserline(direction, s.model.TicksPerHalfStep(), words, int(s.model.WordsPerLine()))
	if encErr != nil {
		return fmt.Errorf("session: scanline: %w", encErr)
	}
	return s.Submit(ctx, frames)
}

// packBits lays out bits across wordsPerLine 64-bit words. forward
// packs each word low-bit-first; backward packs each word
// high-bit-first. The bit-to-wire mapping is fixed per position
// (word = i/64, forward bit = i%64, backward bit = 63-i%64) regardless
// of how many bits the caller supplies, since the gateware's bit order
// must be stable (spec.md §4.E) and cannot depend on payload length.
//
// Positions beyond len(bits) (but within bitsPerLine) are left zero
// (laser off). spec.md §4.E states this padding falls "at the high
// side of the last word" — true for forward (the last word's unused
// high bits are simply never set by the fill-from-bit-0 walk). Because
// backward fills the same positions starting from bit 63 down, the
// same fixed mapping leaves backward's unused trailing positions at
// the *low* side of the last word instead; the spec's wording describes
// the forward case (its worked example, §8 scenario 5, is forward-only)
// and this implementation keeps the simpler length-independent mapping
// rather than reversing word order for backward to force high-side
// padding in both directions.
func packBits(bits []bool, bitsPerLine uint64, wordsPerLine uint64, forward bool) ([]uint64, error) {
	if uint64(len(bits)) > bitsPerLine {
		return nil, fmt.Errorf("%w: got %d bits, bits_per_line is %d", ErrBitsOverLong, len(bits), bitsPerLine)
	}

	var words = make([]uint64, wordsPerLine)
	for i, on := range bits {
		if !on {
			continue
		}
		var wordIdx = i / 64
		var bitIdx = uint(i % 64)
		if forward {
			words[wordIdx] |= uint64(1) << bitIdx
		} else {
			words[wordIdx] |= uint64(1) << (63 - bitIdx)
		}
	}
	return words, nil
}

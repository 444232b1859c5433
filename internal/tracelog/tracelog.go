// Package tracelog writes a CSV record of every frame exchanged with
// the device to a timestamp-named file, one file per session start —
// the same role samoyed/src/log.go gives its daily CSV packet log,
// generalized from AX.25 packets to wire frames and from daily
// rotation to one file per run.
package tracelog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/hexastorm/core/frame"
)

// filenameLayout names one trace file per process start, UTC, to the
// second; strftime.Format takes the place of log.go's time.Format call.
const filenameLayout = "trace-%Y%m%dT%H%M%S.csv"

var header = []string{"seq", "command", "word_out", "status", "word_in"}

// Logger appends one CSV row per recorded frame exchange. The zero
// value is not usable; construct with Open.
type Logger struct {
	mu  sync.Mutex
	f   *os.File
	w   *csv.Writer
	seq int
}

// Open creates (or appends to, if it already exists within the same
// second) a trace file under dir named from now, and writes the CSV
// header if the file is new.
func Open(dir string, now time.Time) (*Logger, error) {
	var name, err = strftime.Format(filenameLayout, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("tracelog: format filename: %w", err)
	}

	var path = filepath.Join(dir, name)
	var _, statErr = os.Stat(path)
	var alreadyThere = statErr == nil

	var f *os.File
	f, err = os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tracelog: open %s: %w", path, err)
	}

	var w = csv.NewWriter(f)
	if !alreadyThere {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("tracelog: write header: %w", err)
		}
		w.Flush()
	}

	return &Logger{f: f, w: w}, nil
}

// Record appends one row describing an exchanged frame and its reply.
func (l *Logger) Record(out frame.Frame, in frame.Reply) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var row = []string{
		strconv.Itoa(l.seq),
		out.Command.String(),
		fmt.Sprintf("0x%016x", out.Word),
		in.Status.String(),
		fmt.Sprintf("0x%016x", in.Word),
	}
	l.seq++

	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("tracelog: write row: %w", err)
	}
	l.w.Flush()
	return l.w.Error()
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.f.Close()
		return fmt.Errorf("tracelog: flush: %w", err)
	}
	return l.f.Close()
}

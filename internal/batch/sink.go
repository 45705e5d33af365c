// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/vbauerster/mpb/v6"
	"github.com/vbauerster/mpb/v6/decor"
)

// Sink receives the line-oriented observations of a run.
type Sink interface {
	// Printf emits one observation line; the newline is added.
	Printf(format string, args ...any)

	// Start is called once with the number of units before iteration.
	Start(total int)

	// Advance is called after every unit with its outcome: nil, an error
	// matching ErrSkipped, or a failure.
	Advance(unit string, err error)

	// Finish is called once iteration stops.
	Finish()
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Printf(string, ...any) {}
func (discard) Start(int)             {}
func (discard) Advance(string, error) {}
func (discard) Finish()               {}

// WriterSink prints every observation and one status line per unit.
type WriterSink struct {
	w      io.Writer
	failed *color.Color
	pos    int
	total  int
}

// NewWriterSink returns a sink writing plain lines to w. When colorize is
// true, failures are printed in red.
func NewWriterSink(w io.Writer, colorize bool) *WriterSink {
	failed := color.New(color.FgRed)
	if colorize {
		failed.EnableColor()
	} else {
		failed.DisableColor()
	}
	return &WriterSink{w: w, failed: failed}
}

func (s *WriterSink) Printf(format string, args ...any) {
	fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *WriterSink) Start(total int) {
	s.total = total
	s.pos = 0
}

func (s *WriterSink) Advance(unit string, err error) {
	s.pos++
	switch {
	case err == nil:
		fmt.Fprintf(s.w, "done    %s (%d/%d)\n", unit, s.pos, s.total)
	case errors.Is(err, ErrSkipped):
		fmt.Fprintf(s.w, "skipped %s (%d/%d): %v\n", unit, s.pos, s.total, err)
	default:
		s.failed.Fprintf(s.w, "failed  %s (%d/%d): %v\n", unit, s.pos, s.total, err)
	}
}

func (s *WriterSink) Finish() {}

// ProgressSink renders a progress bar to bar and prints observations,
// skips and failures to out. Successful units only move the bar.
type ProgressSink struct {
	mu       sync.Mutex
	out      io.Writer
	barOut   io.Writer
	failed   *color.Color
	progress *mpb.Progress
	bar      *mpb.Bar
}

// NewProgressSink returns a sink that draws a bar on barOut, which should
// be a terminal distinct from out.
func NewProgressSink(out, barOut io.Writer) *ProgressSink {
	return &ProgressSink{out: out, barOut: barOut, failed: color.New(color.FgRed)}
}

func (s *ProgressSink) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format+"\n", args...)
}

func (s *ProgressSink) Start(total int) {
	s.progress = mpb.New(mpb.WithOutput(s.barOut), mpb.WithWidth(60))
	s.bar = s.progress.AddBar(int64(total),
		mpb.PrependDecorators(decor.CountersNoUnit("(%d/%d)", decor.WCSyncWidth)),
		mpb.AppendDecorators(decor.Name("ETA "), decor.AverageETA(decor.ET_STYLE_GO)),
	)
}

func (s *ProgressSink) Advance(unit string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrSkipped):
		s.Printf("skipped %s: %v", unit, err)
	default:
		s.mu.Lock()
		s.failed.Fprintf(s.out, "failed  %s: %v\n", unit, err)
		s.mu.Unlock()
	}
	if s.bar != nil {
		s.bar.Increment()
	}
}

func (s *ProgressSink) Finish() {
	if s.progress == nil {
		return
	}
	if !s.bar.Completed() {
		s.bar.Abort(false)
	}
	s.progress.Wait()
	s.progress = nil
	s.bar = nil
}

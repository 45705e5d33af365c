// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch runs an operator-confirmed, rate-limited sequence of units
// (index files or crate names) through one operation, isolating per-unit
// failures so one bad unit never blocks the rest.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSkipped marks a unit that was deliberately not processed. Jobs return
// it (usually via Skip) instead of a failure.
var ErrSkipped = errors.New("skipped")

// Skip returns an error matching ErrSkipped that carries a reason.
func Skip(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrSkipped)
}

// Job is one run mode of the driver.
type Job interface {
	// Name identifies the job in reports and metrics (e.g. "git-import").
	Name() string

	// Discover lists the units to process, in processing order. An error
	// here aborts the run before anything is mutated.
	Discover(ctx context.Context, sink Sink) ([]string, error)

	// Prompt is the confirmation question asked before mutating.
	Prompt() string

	// Process performs the operation for one unit.
	Process(ctx context.Context, unit string, sink Sink) error
}

// Failure records one unit that failed.
type Failure struct {
	Unit  string `yaml:"unit"`
	Error string `yaml:"error"`
}

// Summary holds counts from a batch run.
type Summary struct {
	RunID     string        `yaml:"run_id"`
	Job       string        `yaml:"job"`
	Declined  bool          `yaml:"declined"`
	Processed int           `yaml:"processed"`
	Skipped   int           `yaml:"skipped"`
	Failed    int           `yaml:"failed"`
	Failures  []Failure     `yaml:"failures,omitempty"`
	Started   time.Time     `yaml:"started"`
	Duration  time.Duration `yaml:"duration"`
}

// Total returns the number of units attempted.
func (s Summary) Total() int {
	return s.Processed + s.Skipped + s.Failed
}

// HasFailures reports whether any unit failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Driver sequences units through a Job: discover, confirm, iterate with a
// delay before each unit, then summarize.
type Driver struct {
	// Delay is slept before every unit to keep load off the database.
	Delay time.Duration

	Sink    Sink
	Confirm Confirmer
	Metrics *Metrics
	Logger  *zap.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Run executes job. It returns an error only for pre-flight failures
// (discovery, confirmation I/O) or when ctx is cancelled between units;
// per-unit failures are counted in the Summary.
func (d *Driver) Run(ctx context.Context, job Job) (Summary, error) {
	sink := d.Sink
	if sink == nil {
		sink = Discard
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := d.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	summary := Summary{
		RunID:   uuid.NewString(),
		Job:     job.Name(),
		Started: time.Now().UTC(),
	}
	logger = logger.With(zap.String("job", summary.Job), zap.String("run_id", summary.RunID))

	units, err := job.Discover(ctx, sink)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", job.Name(), err)
	}
	sink.Printf("found %d crates", len(units))
	logger.Info("discovered units", zap.Int("units", len(units)))

	if len(units) > 0 {
		if d.Confirm == nil {
			return summary, fmt.Errorf("%s: no confirmation source configured", job.Name())
		}
		ok, err := d.Confirm.Confirm(job.Prompt())
		if err != nil {
			return summary, fmt.Errorf("reading confirmation: %w", err)
		}
		if !ok {
			summary.Declined = true
			logger.Info("declined by operator")
			return summary, nil
		}
	}

	sink.Start(len(units))
	for _, unit := range units {
		if err := sleep(ctx, d.Delay); err != nil {
			sink.Finish()
			d.finish(&summary)
			return summary, fmt.Errorf("interrupted after %d of %d units: %w", summary.Total(), len(units), err)
		}

		err := job.Process(ctx, unit, sink)
		switch {
		case err == nil:
			summary.Processed++
		case errors.Is(err, ErrSkipped):
			summary.Skipped++
		default:
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{Unit: unit, Error: err.Error()})
			logger.Debug("unit failed", zap.String("unit", unit), zap.Error(err))
		}
		sink.Advance(unit, err)
		d.Metrics.observeUnit(summary.Job, err)
	}
	sink.Finish()
	d.finish(&summary)

	sink.Printf("completed: %d processed, %d skipped, %d failed (total: %d)",
		summary.Processed, summary.Skipped, summary.Failed, summary.Total())
	return summary, nil
}

func (d *Driver) finish(summary *Summary) {
	summary.Duration = time.Since(summary.Started)
	d.Metrics.observeRun(*summary)
}

// sleepContext waits for d or until ctx is done. A cancelled context is
// reported even when d is zero, so a run stops between units.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

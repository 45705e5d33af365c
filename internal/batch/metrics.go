// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts unit outcomes and run durations for node-exporter's
// textfile collector. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry
	units    *prometheus.CounterVec
	duration *prometheus.GaugeVec
	lastRun  *prometheus.GaugeVec
}

// NewMetrics returns a Metrics with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crates_admin",
			Name:      "units_total",
			Help:      "Units handled by a batch run, by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "crates_admin",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last batch run.",
		}, []string{"job"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "crates_admin",
			Name:      "last_run_timestamp_seconds",
			Help:      "Start time of the last batch run.",
		}, []string{"job"}),
	}
	m.registry.MustRegister(m.units, m.duration, m.lastRun)
	return m
}

func (m *Metrics) observeUnit(job string, err error) {
	if m == nil {
		return
	}
	outcome := "processed"
	switch {
	case err == nil:
	case errors.Is(err, ErrSkipped):
		outcome = "skipped"
	default:
		outcome = "failed"
	}
	m.units.WithLabelValues(job, outcome).Inc()
}

func (m *Metrics) observeRun(s Summary) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(s.Job).Set(s.Duration.Seconds())
	m.lastRun.WithLabelValues(s.Job).Set(float64(s.Started.Unix()))
}

// WriteTextfile writes the current metrics to path in the text exposition
// format, replacing the file atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

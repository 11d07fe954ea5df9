// Package metrics holds the Prometheus metrics of forecaster runs.
//
// Exposed series:
//   - forecaster_runs_total{status}                 runs by outcome (succeeded|failed)
//   - forecaster_stage_duration_seconds{stage}      wall time per pipeline stage
//   - forecaster_partition_rows{partition}          rows scored per partition in the last run
//   - forecaster_partition_equity{partition}        final cumulative equity per partition in the last run
//
// The tools run once and exit, so metrics are written to a node-exporter
// textfile instead of being served over HTTP.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every forecaster metric. It is separate from the default
// registry so the textfile carries no Go runtime series.
var Registry = prometheus.NewRegistry()

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecaster_runs_total",
			Help: "Pipeline runs by outcome.",
		},
		[]string{"status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecaster_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"stage"},
	)

	PartitionRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecaster_partition_rows",
			Help: "Rows scored per partition in the last run.",
		},
		[]string{"partition"},
	)

	PartitionEquity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecaster_partition_equity",
			Help: "Final cumulative equity per partition in the last run.",
		},
		[]string{"partition"},
	)
)

func init() {
	Registry.MustRegister(RunsTotal, StageDuration, PartitionRows, PartitionEquity)
}

// ObserveStage records the duration of a stage that began at start.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes the current metrics in the Prometheus text format.
// The file is written atomically, as the node-exporter collector expects.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

package parser

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for file and batch parsing.
type Metrics struct {
	FilesTotal      *prometheus.CounterVec
	LinesTotal      prometheus.Counter
	LinesSkipped    *prometheus.CounterVec
	BlocksTotal     prometheus.Counter
	FileDuration    prometheus.Histogram
	BatchDuration   prometheus.Histogram
	FilesInFlight   prometheus.Gauge
	SlowParsesTotal prometheus.Counter
}

// NewMetrics creates and registers the parser metrics. Registration happens
// once per process; later calls return the same instance.
//
// Metrics:
//   - sessionparse_files_total{status} - files parsed, by "success" or "failure"
//   - sessionparse_lines_total - lines read
//   - sessionparse_lines_skipped_total{kind} - lines dropped by the recovery policy
//   - sessionparse_blocks_total - blocks produced
//   - sessionparse_file_duration_seconds - per-file parse time
//   - sessionparse_batch_duration_seconds - per-batch wall time
//   - sessionparse_files_in_flight - parses currently holding a permit
//   - sessionparse_slow_parses_total - parses over the performance threshold
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			FilesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sessionparse_files_total",
					Help: "Total number of files parsed",
				},
				[]string{"status"},
			),
			LinesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "sessionparse_lines_total",
					Help: "Total number of input lines read",
				},
			),
			LinesSkipped: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sessionparse_lines_skipped_total",
					Help: "Total number of lines skipped by the recovery policy",
				},
				[]string{"kind"},
			),
			BlocksTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "sessionparse_blocks_total",
					Help: "Total number of blocks produced",
				},
			),
			FileDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "sessionparse_file_duration_seconds",
					Help:    "Duration of single file parses in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
				},
			),
			BatchDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "sessionparse_batch_duration_seconds",
					Help:    "Duration of batch parses in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
				},
			),
			FilesInFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "sessionparse_files_in_flight",
					Help: "Number of file parses currently running",
				},
			),
			SlowParsesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "sessionparse_slow_parses_total",
					Help: "Total number of parses exceeding the performance threshold",
				},
			),
		}
	})

	return globalMetrics
}

// RecordFile records a finished file parse.
func (m *Metrics) RecordFile(success bool, lines, blocks int, durationSeconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.FilesTotal.WithLabelValues(status).Inc()
	m.LinesTotal.Add(float64(lines))
	m.BlocksTotal.Add(float64(blocks))
	m.FileDuration.Observe(durationSeconds)
}

// RecordSkip records a line dropped by the recovery policy.
func (m *Metrics) RecordSkip(kind Kind) {
	m.LinesSkipped.WithLabelValues(string(kind)).Inc()
}

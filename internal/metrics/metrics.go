// Package metrics provides Prometheus metrics for the build tools. The
// tools are short-lived, so metrics are written to a node-exporter textfile
// instead of being scraped.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the build tools.
type Metrics struct {
	BuildsTotal             *prometheus.CounterVec
	BuildDuration           *prometheus.HistogramVec
	ArtifactsTotal          prometheus.Counter
	ArtifactBytesTotal      prometheus.Counter
	ValidationFailuresTotal *prometheus.CounterVec
	TaskGroupsTotal         *prometheus.CounterVec
	ReleasesTotal           *prometheus.CounterVec
	HistorySizeBytes        prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xpi_builds_total",
				Help: "Total number of XPI builds by versioning policy and status.",
			},
			[]string{"policy", "status"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xpi_build_duration_seconds",
				Help:    "XPI build duration by versioning policy.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"policy"},
		),
		ArtifactsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "xpi_artifacts_total",
				Help: "Total number of artifacts collected.",
			},
		),
		ArtifactBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "xpi_artifact_bytes_total",
				Help: "Total size of collected artifacts in bytes.",
			},
		),
		ValidationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xpi_validation_failures_total",
				Help: "Total validation failures by reason.",
			},
			[]string{"reason"},
		),
		TaskGroupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xpi_task_groups_total",
				Help: "Total dependency groups emitted by kind.",
			},
			[]string{"kind"},
		),
		ReleasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xpi_releases_total",
				Help: "Total GitHub release attempts by status.",
			},
			[]string{"status"},
		),
		HistorySizeBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "xpi_db_size_bytes",
				Help: "Size of the build history database in bytes.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.BuildsTotal)
	reg.MustRegister(m.BuildDuration)
	reg.MustRegister(m.ArtifactsTotal)
	reg.MustRegister(m.ArtifactBytesTotal)
	reg.MustRegister(m.ValidationFailuresTotal)
	reg.MustRegister(m.TaskGroupsTotal)
	reg.MustRegister(m.ReleasesTotal)
	reg.MustRegister(m.HistorySizeBytes)

	return m
}

// Registry returns the private registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// RecordBuild increments the build counter and observes its duration.
func (m *Metrics) RecordBuild(policy, status string, seconds float64) {
	m.BuildsTotal.WithLabelValues(policy, status).Inc()
	m.BuildDuration.WithLabelValues(policy).Observe(seconds)
}

// RecordArtifact counts one collected artifact of the given size.
func (m *Metrics) RecordArtifact(bytes int64) {
	m.ArtifactsTotal.Inc()
	m.ArtifactBytesTotal.Add(float64(bytes))
}

// RecordValidationFailure increments the validation failure counter.
func (m *Metrics) RecordValidationFailure(reason string) {
	m.ValidationFailuresTotal.WithLabelValues(reason).Inc()
}

// TaskGroup counts one dependency group emitted for kind.
func (m *Metrics) TaskGroup(kind string) {
	m.TaskGroupsTotal.WithLabelValues(kind).Inc()
}

// RecordRelease increments the release counter.
func (m *Metrics) RecordRelease(status string) {
	m.ReleasesTotal.WithLabelValues(status).Inc()
}

// SetHistorySize records the size of the build history database.
func (m *Metrics) SetHistorySize(bytes int64) {
	m.HistorySizeBytes.Set(float64(bytes))
}

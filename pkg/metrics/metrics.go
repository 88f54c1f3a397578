// Package metrics exposes prometheus collectors describing plan executions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdejongh/syncplan/pkg/models"
)

const namespace = "syncplan"

// Metrics holds the execution collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Files    *prometheus.CounterVec
	Bytes    prometheus.Counter
	Retries  prometheus.Counter
	Duration prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry
func New() (*Metrics, error) {
	m := &Metrics{
		Files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed by outcome status.",
		}, []string{"status"}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes written to the destination.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Copy attempts retried after a transient error.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Time spent on a single file including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}),
		registry: prometheus.NewRegistry(),
	}

	for _, c := range m.Collectors() {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Collectors returns all prometheus metrics as collectors for registration
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{m.Files, m.Bytes, m.Retries, m.Duration}
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveOutcome records one per-file outcome
func (m *Metrics) ObserveOutcome(o models.TransferOutcome) {
	if m == nil {
		return
	}
	m.Files.WithLabelValues(string(o.Status)).Inc()
	if o.Status == models.StatusCopied {
		m.Bytes.Add(float64(o.Bytes))
	}
	m.Duration.Observe(o.Duration.Seconds())
}

// IncRetry counts a retried attempt
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// WriteTextfile dumps the registry in the node_exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

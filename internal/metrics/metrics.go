package metrics

// Counters only. One process handles one file, so the registry is meant to
// be flushed to a node_exporter textfile at exit rather than scraped.

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the xwrap counters on a private registry
type Recorder struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	payloadBytes *prometheus.CounterVec
	failures     *prometheus.CounterVec
}

// NewRecorder creates a recorder with all counters registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xwrap_operations_total",
				Help: "Operations run by xwrap, by operation and result",
			},
			[]string{"op", "result"},
		),
		payloadBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xwrap_payload_bytes_total",
				Help: "Payload bytes written by successful operations",
			},
			[]string{"op"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xwrap_failures_total",
				Help: "Failed operations by error kind",
			},
			[]string{"kind"},
		),
	}
	r.registry.MustRegister(r.operations, r.payloadBytes, r.failures)
	return r
}

// RecordSuccess counts a completed operation and its payload bytes
func (r *Recorder) RecordSuccess(op string, payloadBytes int64) {
	r.operations.WithLabelValues(op, "success").Inc()
	r.payloadBytes.WithLabelValues(op).Add(float64(payloadBytes))
}

// RecordFailure counts a failed operation under its error kind
func (r *Recorder) RecordFailure(op, kind string) {
	r.operations.WithLabelValues(op, "failure").Inc()
	r.failures.WithLabelValues(kind).Inc()
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the current counters to path in text exposition
// format. The write is atomic.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

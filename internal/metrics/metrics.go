// Package metrics records operational metrics for pipeline runs behind a
// small pluggable Backend.
//
// A no-op backend is installed by default, so every Record* helper is safe to
// call whether or not a real backend was configured. Concrete systems live in
// subpackages (prompush, datadog) and are installed once from main via
// SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by this package.
const (
	StepTotal        = "ufoetl_step_total"
	StepDuration     = "ufoetl_step_duration_seconds"
	RowsTotal        = "ufoetl_rows_total"
	BatchesTotal     = "ufoetl_batches_total"
	SinkFailureTotal = "ufoetl_sink_failures_total"
)

// Row kinds passed to RecordRow.
const (
	RowsLoaded      = "loaded"
	RowsCastNulls   = "cast_nulls"
	RowsExported    = "exported"
	RowsFilteredOut = "filtered_out"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration-style observation.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the current one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one pipeline step execution and observes its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow adds delta rows of the given kind (RowsLoaded, RowsCastNulls, ...).
// Non-positive deltas are ignored.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatches counts bulk-insert batches flushed to a SQL engine.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{"job": job})
}

// RecordSinkFailure counts a presentation a sink failed to accept.
func RecordSinkFailure(job, sink string) {
	current().IncCounter(SinkFailureTotal, 1, Labels{"job": job, "sink": sink})
}

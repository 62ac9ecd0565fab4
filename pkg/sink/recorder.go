// Package sink provides the destinations for metrics and service checks
// produced by a check cycle.
package sink

import (
	"sync"

	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

// Sink receives metrics and service checks
type Sink interface {
	SubmitMetric(m types.Metric)
	SubmitServiceCheck(sc types.ServiceCheck)
}

// Recorder buffers everything submitted to it
type Recorder struct {
	mu      sync.Mutex
	metrics []types.Metric
	checks  []types.ServiceCheck
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SubmitMetric records a metric
func (r *Recorder) SubmitMetric(m types.Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

// SubmitServiceCheck records a service check
func (r *Recorder) SubmitServiceCheck(sc types.ServiceCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, sc)
}

// Metrics returns a copy of the recorded metrics
func (r *Recorder) Metrics() []types.Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Metric(nil), r.metrics...)
}

// ServiceChecks returns a copy of the recorded service checks
func (r *Recorder) ServiceChecks() []types.ServiceCheck {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ServiceCheck(nil), r.checks...)
}

// ServiceCheck returns the last check submitted under name
func (r *Recorder) ServiceCheck(name string) (types.ServiceCheck, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.checks) - 1; i >= 0; i-- {
		if r.checks[i].Name == name {
			return r.checks[i], true
		}
	}
	return types.ServiceCheck{}, false
}

// Reset drops everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = nil
	r.checks = nil
}

// Drain returns everything recorded and resets the recorder
func (r *Recorder) Drain() ([]types.Metric, []types.ServiceCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	metrics, checks := r.metrics, r.checks
	r.metrics = nil
	r.checks = nil
	return metrics, checks
}

// multi fans out to several sinks
type multi []Sink

// Multi returns a sink that forwards to every given sink in order
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) SubmitMetric(metric types.Metric) {
	for _, s := range m {
		s.SubmitMetric(metric)
	}
}

func (m multi) SubmitServiceCheck(sc types.ServiceCheck) {
	for _, s := range m {
		s.SubmitServiceCheck(sc)
	}
}

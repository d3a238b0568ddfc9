// Package metrics records what the gateway does to traffic: per-stage
// rejection counters, limit-injection counts, and check/execution latency.
// Collector abstracts the backend so the pipeline runs identically whether
// metrics go to Prometheus or nowhere.
package metrics

import (
	"time"
)

// Collector receives counters, gauges, and timings from the pipeline and
// the HTTP layer. Labels are alternating name/value pairs.
type Collector interface {
	// IncrementCounter adds one to a counter such as
	// gateway_rejections_total{stage=...}.
	IncrementCounter(name string, labels ...string)

	// RecordHistogram records one observation, typically a latency in
	// seconds.
	RecordHistogram(name string, value float64, labels ...string)

	// RecordGauge sets a gauge to the given value.
	RecordGauge(name string, value float64, labels ...string)

	// StartTimer begins a duration measurement finished by Timer.Stop.
	StartTimer(name string) Timer
}

// Timer measures a single duration.
type Timer interface {
	// Stop ends the measurement and returns the elapsed seconds.
	Stop() float64
}

// NoOpCollector discards everything. It stands in whenever metrics are
// disabled so callers never check for a nil collector.
type NoOpCollector struct{}

// NewNoOpCollector creates a collector that discards all metrics.
func NewNoOpCollector() Collector {
	return &NoOpCollector{}
}

// IncrementCounter does nothing.
func (n *NoOpCollector) IncrementCounter(name string, labels ...string) {}

// RecordHistogram does nothing.
func (n *NoOpCollector) RecordHistogram(name string, value float64, labels ...string) {}

// RecordGauge does nothing.
func (n *NoOpCollector) RecordGauge(name string, value float64, labels ...string) {}

// StartTimer returns a timer that measures but records nowhere.
func (n *NoOpCollector) StartTimer(name string) Timer {
	return &noOpTimer{start: time.Now()}
}

type noOpTimer struct {
	start time.Time
}

// Stop returns the elapsed time in seconds.
func (t *noOpTimer) Stop() float64 {
	return time.Since(t.start).Seconds()
}

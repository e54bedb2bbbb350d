// Package metrics records step and sub-operation outcomes as Prometheus metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns a private registry. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	stepOutcomes *prometheus.CounterVec
	opOutcomes   *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	inFlight     prometheus.Gauge
}

// New creates a Collector with every metric registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		stepOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hvmigrate",
				Name:      "step_outcomes_total",
				Help:      "Hosts that finished a step, by step and outcome kind",
			},
			[]string{"step", "outcome"},
		),
		opOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hvmigrate",
				Name:      "operation_outcomes_total",
				Help:      "Sub-operations executed, by step, operation and outcome kind",
			},
			[]string{"step", "operation", "outcome"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hvmigrate",
				Name:      "operation_duration_seconds",
				Help:      "Duration of sub-operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
			},
			[]string{"step", "operation"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hvmigrate",
				Name:      "hosts_in_flight",
				Help:      "Hosts currently running a step",
			},
		),
	}
	c.registry.MustRegister(c.stepOutcomes, c.opOutcomes, c.opDuration, c.inFlight)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordOperation records one executed sub-operation.
func (c *Collector) RecordOperation(step, op, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.opOutcomes.WithLabelValues(step, op, outcome).Inc()
	c.opDuration.WithLabelValues(step, op).Observe(d.Seconds())
}

// RecordStep records the terminal outcome of a step on one host.
func (c *Collector) RecordStep(step, outcome string) {
	if c == nil {
		return
	}
	c.stepOutcomes.WithLabelValues(step, outcome).Inc()
}

// HostStarted marks a host as running.
func (c *Collector) HostStarted() {
	if c == nil {
		return
	}
	c.inFlight.Inc()
}

// HostFinished marks a host as done.
func (c *Collector) HostFinished() {
	if c == nil {
		return
	}
	c.inFlight.Dec()
}

// WriteTextfile writes every metric in the text exposition format, for the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

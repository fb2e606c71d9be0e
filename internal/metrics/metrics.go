// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package metrics describes the agent's own activity as prometheus metrics,
// written out for the node exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/canonical/prometheus-numa-exporter-operator/core/status"
)

const metricsNamespace = "numa_exporter_agent"

const (
	OutcomeOK       = "ok"
	OutcomeDeferred = "deferred"
	OutcomeError    = "error"
)

var workloadStatuses = []status.Status{
	status.Maintenance,
	status.Waiting,
	status.Blocked,
	status.Active,
}

// Collector is a prometheus.Collector that collects metrics about
// reconciliation passes.
type Collector struct {
	workloadStatus *prometheus.GaugeVec
	deferredEvents prometheus.Gauge
	lastReconcile  prometheus.Gauge
	eventsHandled  *prometheus.CounterVec
	commandsRun    *prometheus.CounterVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		workloadStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "workload_status",
				Help:      "The workload status last set by the agent, 1 for the current status.",
			}, []string{"status"},
		),
		deferredEvents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "deferred_events",
				Help:      "The number of events waiting to be redelivered.",
			},
		),
		lastReconcile: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_reconcile_timestamp_seconds",
				Help:      "The time the last reconciliation pass finished.",
			},
		),
		eventsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_handled_total",
				Help:      "The number of lifecycle events handled.",
			}, []string{"event", "outcome"},
		),
		commandsRun: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_total",
				Help:      "The number of external commands run.",
			}, []string{"command", "result"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.workloadStatus.Describe(ch)
	c.deferredEvents.Describe(ch)
	c.lastReconcile.Describe(ch)
	c.eventsHandled.Describe(ch)
	c.commandsRun.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.workloadStatus.Collect(ch)
	c.deferredEvents.Collect(ch)
	c.lastReconcile.Collect(ch)
	c.eventsHandled.Collect(ch)
	c.commandsRun.Collect(ch)
}

// SetStatus records the workload status.
// SetStatus is part of the status.StatusSetter interface.
func (c *Collector) SetStatus(info status.StatusInfo) error {
	if !info.Status.ValidWorkloadStatus() {
		return errors.NotValidf("workload status %q", info.Status)
	}
	for _, s := range workloadStatuses {
		value := 0.0
		if s == info.Status {
			value = 1
		}
		c.workloadStatus.WithLabelValues(s.String()).Set(value)
	}
	return nil
}

// SetDeferred records the length of the deferred event queue.
func (c *Collector) SetDeferred(n int) {
	c.deferredEvents.Set(float64(n))
}

// EventHandled counts a handled event.
func (c *Collector) EventHandled(event, outcome string) {
	c.eventsHandled.WithLabelValues(event, outcome).Inc()
}

// Reconciled records the end of a reconciliation pass.
func (c *Collector) Reconciled(at time.Time) {
	c.lastReconcile.Set(float64(at.UnixNano()) / float64(time.Second))
}

// CommandRun counts an external command.
// CommandRun is part of the cmdrunner.Observer interface.
func (c *Collector) CommandRun(name string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.commandsRun.WithLabelValues(name, result).Inc()
}

// WriteTextfile writes the collected metrics to path in the text
// exposition format. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		return errors.Annotate(err, "registering agent metrics")
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return errors.Annotatef(err, "writing metrics to %s", path)
	}
	return nil
}

// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package charm

import (
	"github.com/juju/collections/set"

	"github.com/canonical/prometheus-numa-exporter-operator/core/config"
	"github.com/canonical/prometheus-numa-exporter-operator/core/status"
)

// EventKind names a lifecycle event the agent reacts to.
type EventKind string

const (
	Install             EventKind = "install"
	Start               EventKind = "start"
	ConfigChanged       EventKind = "config-changed"
	PrometheusAvailable EventKind = "prometheus-available"
)

// HostSettings are the settings derived from the host's nova configuration.
// They are read afresh on every config-changed pass.
type HostSettings struct {
	CPUDedicatedSet   string
	NetworkInterfaces map[string]string
}

// Context carries everything a single reconciliation pass works with.
type Context struct {
	// Desired is the configuration requested by the operator.
	Desired config.Desired

	// Host is filled in by the config-changed pass.
	Host HostSettings

	// Deferred holds the kinds of the events currently waiting to be
	// redelivered.
	Deferred set.Strings
}

// NewContext returns a Context for a pass over desired.
func NewContext(desired config.Desired, deferred ...EventKind) *Context {
	kinds := set.NewStrings()
	for _, kind := range deferred {
		kinds.Add(string(kind))
	}
	return &Context{
		Desired:  desired,
		Deferred: kinds,
	}
}

// IsDeferred reports whether kind is waiting to be redelivered.
func (c *Context) IsDeferred(kind EventKind) bool {
	return c.Deferred.Contains(string(kind))
}

// Result is the outcome of a handler. A nil Status leaves the unit's
// status unchanged. Defer asks for the event to be delivered again.
type Result struct {
	Status *status.StatusInfo
	Defer  bool
}

// blocked returns a Result that blocks the unit and asks for redelivery.
func blocked(format string, args ...interface{}) Result {
	info := status.NewBlocked(format, args...)
	return Result{Status: &info, Defer: true}
}

// active returns a Result marking the unit active.
func active(message string) Result {
	info := status.NewActive(message)
	return Result{Status: &info}
}

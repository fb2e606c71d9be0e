// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package dispatch delivers lifecycle events to their handlers. Events a
// handler deferred are kept in a store and delivered again, oldest first,
// ahead of the next event.
package dispatch

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/canonical/prometheus-numa-exporter-operator/core/config"
	"github.com/canonical/prometheus-numa-exporter-operator/core/status"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/charm"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/metrics"
)

var logger = loggo.GetLogger("numaexporter.dispatch")

// hookEvents maps juju hook names to the events they deliver.
var hookEvents = map[string]charm.EventKind{
	"install":                            charm.Install,
	"start":                              charm.Start,
	"config-changed":                     charm.ConfigChanged,
	"prometheus-scrape-relation-joined":  charm.PrometheusAvailable,
	"prometheus-scrape-relation-changed": charm.PrometheusAvailable,
}

// EventForHook returns the event delivered by the named hook. False is
// returned for hooks the agent does not handle.
func EventForHook(hook string) (charm.EventKind, bool) {
	kind, ok := hookEvents[hook]
	return kind, ok
}

// Store holds deferred event kinds.
type Store interface {
	Defer(ctx context.Context, kind string) error
	Deferred(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, kind string) error
}

// ConfigSource supplies the configuration requested by the operator.
type ConfigSource interface {
	Desired() (config.Desired, error)
}

// Metrics records the outcome of dispatching.
type Metrics interface {
	SetDeferred(n int)
	EventHandled(event, outcome string)
	Reconciled(at time.Time)
}

// Config holds the dependencies of a Dispatcher.
type Config struct {
	Handlers map[charm.EventKind]charm.Handler
	Store    Store
	Config   ConfigSource
	Status   status.StatusSetter
	Clock    clock.Clock

	// Metrics is optional.
	Metrics Metrics
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if len(c.Handlers) == 0 {
		return errors.NotValidf("empty Handlers")
	}
	if c.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if c.Config == nil {
		return errors.NotValidf("nil Config")
	}
	if c.Status == nil {
		return errors.NotValidf("nil Status")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Dispatcher runs handlers for events, one at a time.
type Dispatcher struct {
	config Config
}

// NewDispatcher returns a Dispatcher using the given dependencies.
func NewDispatcher(config Config) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Dispatcher{config: config}, nil
}

// DispatchHook delivers the event for the named hook. Hooks the agent does
// not handle are ignored.
func (d *Dispatcher) DispatchHook(ctx context.Context, hook string) error {
	kind, ok := EventForHook(hook)
	if !ok {
		logger.Debugf("ignoring hook %q", hook)
		return nil
	}
	return d.Dispatch(ctx, kind)
}

// Dispatch delivers any deferred events followed by kind. An error is only
// returned for failures the handlers cannot turn into a status.
func (d *Dispatcher) Dispatch(ctx context.Context, kind charm.EventKind) error {
	if _, ok := d.config.Handlers[kind]; !ok {
		return errors.NotFoundf("handler for %q", kind)
	}
	return errors.Trace(d.run(ctx, &kind))
}

// Redeliver delivers the deferred events only.
func (d *Dispatcher) Redeliver(ctx context.Context) error {
	return errors.Trace(d.run(ctx, nil))
}

func (d *Dispatcher) run(ctx context.Context, current *charm.EventKind) error {
	stored, err := d.config.Store.Deferred(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	pending := make([]charm.EventKind, len(stored))
	for i, k := range stored {
		pending[i] = charm.EventKind(k)
	}
	if current == nil && len(pending) == 0 {
		return nil
	}

	desired, err := d.config.Config.Desired()
	if errors.IsNotValid(err) {
		logger.Errorf("invalid configuration: %v", err)
		if err := d.setStatus(status.NewBlocked("Invalid configuration: %v", err)); err != nil {
			return errors.Trace(err)
		}
		if current != nil {
			if err := d.config.Store.Defer(ctx, string(*current)); err != nil {
				return errors.Trace(err)
			}
		}
		return errors.Trace(d.finish(ctx))
	} else if err != nil {
		return errors.Annotate(err, "reading configuration")
	}

	for _, kind := range pending {
		if current != nil && kind == *current {
			// The current delivery supersedes the deferred one.
			continue
		}
		handler, ok := d.config.Handlers[kind]
		if !ok {
			logger.Warningf("dropping deferred event %q with no handler", kind)
			if err := d.config.Store.Remove(ctx, string(kind)); err != nil {
				return errors.Trace(err)
			}
			pending = remove(pending, kind)
			continue
		}
		logger.Debugf("redelivering deferred %s", kind)
		deferred, err := d.handle(ctx, kind, handler, desired, pending)
		if err != nil {
			return errors.Trace(err)
		}
		if !deferred {
			pending = remove(pending, kind)
		}
	}

	if current != nil {
		kind := *current
		if _, err := d.handle(ctx, kind, d.config.Handlers[kind], desired, remove(pending, kind)); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(d.finish(ctx))
}

// handle runs a handler and records whether its event was deferred.
func (d *Dispatcher) handle(
	ctx context.Context, kind charm.EventKind, handler charm.Handler,
	desired config.Desired, pending []charm.EventKind,
) (bool, error) {
	res, err := handler(charm.NewContext(desired, pending...))
	if err != nil {
		d.eventHandled(kind, metrics.OutcomeError)
		return false, errors.Annotatef(err, "handling %s", kind)
	}
	if res.Status != nil {
		if err := d.setStatus(*res.Status); err != nil {
			return false, errors.Trace(err)
		}
	}
	if res.Defer {
		logger.Infof("deferring %s", kind)
		d.eventHandled(kind, metrics.OutcomeDeferred)
		return true, errors.Trace(d.config.Store.Defer(ctx, string(kind)))
	}
	d.eventHandled(kind, metrics.OutcomeOK)
	return false, errors.Trace(d.config.Store.Remove(ctx, string(kind)))
}

func (d *Dispatcher) setStatus(info status.StatusInfo) error {
	if err := d.config.Status.SetStatus(info); err != nil {
		return errors.Annotatef(err, "setting status %q", info)
	}
	return nil
}

func (d *Dispatcher) eventHandled(kind charm.EventKind, outcome string) {
	if d.config.Metrics != nil {
		d.config.Metrics.EventHandled(string(kind), outcome)
	}
}

func (d *Dispatcher) finish(ctx context.Context) error {
	if d.config.Metrics == nil {
		return nil
	}
	stored, err := d.config.Store.Deferred(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	d.config.Metrics.SetDeferred(len(stored))
	d.config.Metrics.Reconciled(d.config.Clock.Now())
	return nil
}

func remove(kinds []charm.EventKind, kind charm.EventKind) []charm.EventKind {
	result := make([]charm.EventKind, 0, len(kinds))
	for _, k := range kinds {
		if k != kind {
			result = append(result, k)
		}
	}
	return result
}

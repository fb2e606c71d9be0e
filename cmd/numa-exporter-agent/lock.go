// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/mutex/v2"

	"github.com/canonical/prometheus-numa-exporter-operator/internal/charm"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/hostwatcher"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/metrics"
)

// lockName is the machine lock held for the length of a pass, so that a
// hook and a watching agent on the same host never reconcile at once.
const lockName = "numa-exporter-agent"

func acquireLock(ctx context.Context) (mutex.Releaser, error) {
	releaser, err := mutex.Acquire(mutex.Spec{
		Name:   lockName,
		Clock:  clock.WallClock,
		Delay:  250 * time.Millisecond,
		Cancel: ctx.Done(),
	})
	if err != nil {
		return nil, errors.Annotate(err, "acquiring machine lock")
	}
	return releaser, nil
}

// passDispatcher runs passes under the machine lock and writes the
// metrics textfile after each one.
type passDispatcher struct {
	dispatcher hostwatcher.Dispatcher
	collector  *metrics.Collector
	textfile   string
}

// Dispatch is part of the hostwatcher.Dispatcher interface.
func (d passDispatcher) Dispatch(ctx context.Context, kind charm.EventKind) error {
	return d.locked(ctx, func() error {
		return d.dispatcher.Dispatch(ctx, kind)
	})
}

// Redeliver is part of the hostwatcher.Dispatcher interface.
func (d passDispatcher) Redeliver(ctx context.Context) error {
	return d.locked(ctx, func() error {
		return d.dispatcher.Redeliver(ctx)
	})
}

func (d passDispatcher) locked(ctx context.Context, pass func() error) error {
	releaser, err := acquireLock(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer releaser.Release()

	err = pass()
	writeMetrics(d.collector, d.textfile)
	return errors.Trace(err)
}

// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"path/filepath"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/names/v5"

	"github.com/canonical/prometheus-numa-exporter-operator/core/config"
	"github.com/canonical/prometheus-numa-exporter-operator/core/status"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/charm"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/cmdrunner"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/dispatch"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/hooktools"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/metrics"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/scrape"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/snap"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/state"
)

// hookName returns the hook to handle: the explicit argument if given,
// otherwise the base name of the dispatch path juju ran.
func hookName(args []string, getenv func(string) string) string {
	if len(args) > 0 {
		return args[0]
	}
	path := getenv("JUJU_DISPATCH_PATH")
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// hookConfig reads the desired configuration with config-get.
type hookConfig struct {
	tools *hooktools.Tools
}

// Desired is part of the dispatch.ConfigSource interface.
func (h hookConfig) Desired() (config.Desired, error) {
	attrs, err := h.tools.ConfigGet()
	if err != nil {
		return config.Desired{}, errors.Trace(err)
	}
	desired, err := config.ParseDesired(attrs)
	return desired, errors.Trace(err)
}

// statusSetters sets a status on each of its members in turn.
type statusSetters []status.StatusSetter

// SetStatus is part of the status.StatusSetter interface.
func (s statusSetters) SetStatus(info status.StatusInfo) error {
	for _, setter := range s {
		if err := setter.SetStatus(info); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func runDispatch(ctx context.Context, flags agentFlags, hook string, getenv func(string) string) error {
	if _, ok := dispatch.EventForHook(hook); !ok {
		logger.Debugf("nothing to do for hook %q", hook)
		return nil
	}
	unitName, err := requireEnv(getenv, "JUJU_UNIT_NAME")
	if err != nil {
		return errors.Trace(err)
	}
	if !names.IsValidUnit(unitName) {
		return errors.NotValidf("unit name %q", unitName)
	}
	application, _ := names.UnitApplication(unitName)
	logger.Debugf("handling %s for %s of %s", hook, unitName, application)

	collector := metrics.NewMetricsCollector()
	runner := cmdrunner.NewRunner()
	runner.SetObserver(collector)
	tools := hooktools.New(runner)

	logWriter := hooktools.NewLogWriter(tools, loggo.INFO)
	if err := loggo.RegisterWriter("juju-log", logWriter); err != nil {
		return errors.Trace(err)
	}
	defer func() {
		_, _ = loggo.RemoveWriter("juju-log")
		if err := logWriter.Flush(); err != nil {
			logger.Warningf("%v", err)
		}
	}()

	if err := ensureDir(flags.stateDir); err != nil {
		return errors.Trace(err)
	}
	store, err := state.Open(ctx, flags.stateDir)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = store.Close() }()

	snapClient, err := snap.NewClient(flags.snapName, runner)
	if err != nil {
		return errors.Trace(err)
	}
	statusSetter := statusSetters{tools, collector}
	reconciler, err := charm.NewReconciler(charm.Config{
		Snap:           snapClient,
		Publisher:      scrape.NewPublisher(scrape.NewRelationExposer(tools)),
		HostConfigPath: flags.novaConf,
		Progress:       statusSetter,
		Versions:       tools,
	})
	if err != nil {
		return errors.Trace(err)
	}
	dispatcher, err := dispatch.NewDispatcher(dispatch.Config{
		Handlers: reconciler.Handlers(),
		Store:    store,
		Config:   hookConfig{tools: tools},
		Status:   statusSetter,
		Clock:    clock.WallClock,
		Metrics:  collector,
	})
	if err != nil {
		return errors.Trace(err)
	}

	releaser, err := acquireLock(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer releaser.Release()

	dispatchErr := dispatcher.DispatchHook(ctx, hook)
	writeMetrics(collector, flags.metricsTextfile)
	return errors.Trace(dispatchErr)
}

func writeMetrics(collector *metrics.Collector, path string) {
	if path == "" {
		return
	}
	if err := collector.WriteTextfile(path); err != nil {
		logger.Warningf("%v", err)
	}
}

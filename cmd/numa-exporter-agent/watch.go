// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"os"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/canonical/prometheus-numa-exporter-operator/internal/charm"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/cmdrunner"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/dispatch"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/hostwatcher"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/metrics"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/scrape"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/snap"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/standalone"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/state"
)

func runWatch(ctx context.Context, flags agentFlags) error {
	host := flags.targetHost
	if host == "" {
		var err error
		if host, err = os.Hostname(); err != nil {
			return errors.Annotate(err, "getting host name")
		}
	}

	collector := metrics.NewMetricsCollector()
	runner := cmdrunner.NewRunner()
	runner.SetObserver(collector)

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
	recorder := standalone.NewStatusRecorder(collector)
	reconciler, err := charm.NewReconciler(charm.Config{
		Snap:           snapClient,
		Publisher:      scrape.NewPublisher(standalone.NewTargetsFile(flags.targetsFile, host)),
		HostConfigPath: flags.novaConf,
		Progress:       recorder,
	})
	if err != nil {
		return errors.Trace(err)
	}
	configFile := standalone.NewConfigFile(flags.configFile)
	dispatcher, err := dispatch.NewDispatcher(dispatch.Config{
		Handlers: reconciler.Handlers(),
		Store:    store,
		Config:   configFile,
		Status:   recorder,
		Clock:    clock.WallClock,
		Metrics:  collector,
	})
	if err != nil {
		return errors.Trace(err)
	}

	w, err := hostwatcher.NewWorker(hostwatcher.Config{
		Paths:   []string{configFile.Path(), flags.novaConf},
		Initial: []charm.EventKind{charm.Install, charm.Start, charm.ConfigChanged},
		Dispatcher: passDispatcher{
			dispatcher: dispatcher,
			collector:  collector,
			textfile:   flags.metricsTextfile,
		},
		Clock:         clock.WallClock,
		NewWatcher:    hostwatcher.NewFSWatcher,
		RetryInterval: flags.retryInterval,
		SettleDelay:   hostwatcher.DefaultSettleDelay,
	})
	if err != nil {
		return errors.Trace(err)
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warningf("cannot notify systemd: %v", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.Kill()
		case <-done:
		}
	}()
	return errors.Trace(w.Wait())
}

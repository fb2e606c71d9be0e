// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hostwatcher runs the agent outside of juju. It watches the
// agent's configuration file and nova's configuration for changes and
// reconciles after each burst of changes, redelivering deferred events
// on a timer.
package hostwatcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/worker/v4/catacomb"

	"github.com/canonical/prometheus-numa-exporter-operator/internal/charm"
)

var logger = loggo.GetLogger("numaexporter.hostwatcher")

// DefaultSettleDelay is how long the watcher waits after a change for
// further changes before reconciling.
const DefaultSettleDelay = 2 * time.Second

// Dispatcher runs reconciliation passes.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind charm.EventKind) error
	Redeliver(ctx context.Context) error
}

// FileWatcher reports changes to watched directories.
type FileWatcher interface {
	Add(path string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

// Config holds the configuration of a host watcher.
type Config struct {
	// Paths are the files whose changes trigger a config-changed pass.
	Paths []string

	// Initial are the events delivered when the watcher starts.
	Initial []charm.EventKind

	Dispatcher    Dispatcher
	Clock         clock.Clock
	NewWatcher    func() (FileWatcher, error)
	RetryInterval time.Duration
	SettleDelay   time.Duration
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if len(c.Paths) == 0 {
		return errors.NotValidf("empty Paths")
	}
	if c.Dispatcher == nil {
		return errors.NotValidf("nil Dispatcher")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.NewWatcher == nil {
		return errors.NotValidf("nil NewWatcher")
	}
	if c.RetryInterval <= 0 {
		return errors.NotValidf("non-positive RetryInterval")
	}
	if c.SettleDelay < 0 {
		return errors.NotValidf("negative SettleDelay")
	}
	return nil
}

// Worker delivers events to the dispatcher, one pass at a time.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config
	watcher  FileWatcher
	files    set.Strings
}

// NewWorker starts a worker watching the configured paths.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	watcher, err := config.NewWatcher()
	if err != nil {
		return nil, errors.Annotate(err, "creating file watcher")
	}

	// Files are watched through their directory, so that replacing a file
	// by renaming another over it is seen.
	files := set.NewStrings()
	dirs := set.NewStrings()
	for _, path := range config.Paths {
		path = filepath.Clean(path)
		files.Add(path)
		dirs.Add(filepath.Dir(path))
	}
	for _, dir := range dirs.SortedValues() {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, errors.Annotatef(err, "watching %s", dir)
		}
	}

	w := &Worker{
		config:  config,
		watcher: watcher,
		files:   files,
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		_ = watcher.Close()
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

func (w *Worker) loop() error {
	defer func() { _ = w.watcher.Close() }()

	ctx, cancel := w.scopedContext()
	defer cancel()

	for _, kind := range w.config.Initial {
		if err := w.config.Dispatcher.Dispatch(ctx, kind); err != nil {
			return w.passError(err)
		}
	}

	var settle <-chan time.Time
	retry := w.config.Clock.After(w.config.RetryInterval)
	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()

		case event, ok := <-w.watcher.Events():
			if !ok {
				return errors.New("file watcher closed")
			}
			if !w.files.Contains(filepath.Clean(event.Name)) {
				continue
			}
			logger.Debugf("%s", event)
			if settle == nil {
				settle = w.config.Clock.After(w.config.SettleDelay)
			}

		case err, ok := <-w.watcher.Errors():
			if !ok {
				return errors.New("file watcher closed")
			}
			logger.Warningf("file watcher: %v", err)

		case <-settle:
			settle = nil
			logger.Infof("configuration changed, reconciling")
			if err := w.config.Dispatcher.Dispatch(ctx, charm.ConfigChanged); err != nil {
				return w.passError(err)
			}

		case <-retry:
			if err := w.config.Dispatcher.Redeliver(ctx); err != nil {
				return w.passError(err)
			}
			retry = w.config.Clock.After(w.config.RetryInterval)
		}
	}
}

// scopedContext returns a context that is cancelled when the worker is
// killed, so that a pass waiting on the machine lock or a command gives up.
func (w *Worker) scopedContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(w.catacomb.Context(context.Background()))
}

// passError returns the error the loop should stop with after a failed
// pass. A pass abandoned because the worker was killed is not a failure.
func (w *Worker) passError(err error) error {
	select {
	case <-w.catacomb.Dying():
		return w.catacomb.ErrDying()
	default:
		return errors.Trace(err)
	}
}

// fsWatcher adapts an fsnotify.Watcher to the FileWatcher interface.
type fsWatcher struct {
	*fsnotify.Watcher
}

// NewFSWatcher returns a FileWatcher backed by inotify.
func NewFSWatcher() (FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return fsWatcher{Watcher: watcher}, nil
}

func (w fsWatcher) Events() <-chan fsnotify.Event {
	return w.Watcher.Events
}

func (w fsWatcher) Errors() <-chan error {
	return w.Watcher.Errors
}

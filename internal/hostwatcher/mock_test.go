// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hostwatcher_test

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/canonical/prometheus-numa-exporter-operator/internal/charm"
)

type mockFileWatcher struct {
	mu     sync.Mutex
	added  []string
	closed bool

	events chan fsnotify.Event
	errors chan error
}

func newMockFileWatcher() *mockFileWatcher {
	return &mockFileWatcher{
		events: make(chan fsnotify.Event),
		errors: make(chan error),
	}
}

func (m *mockFileWatcher) Add(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, path)
	return nil
}

func (m *mockFileWatcher) Events() <-chan fsnotify.Event {
	return m.events
}

func (m *mockFileWatcher) Errors() <-chan error {
	return m.errors
}

func (m *mockFileWatcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockFileWatcher) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockDispatcher reports every pass on calls. When block is set, a pass
// does not return until its context is cancelled.
type mockDispatcher struct {
	calls chan string
	err   error
	block bool
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{calls: make(chan string, 10)}
}

func (m *mockDispatcher) Dispatch(ctx context.Context, kind charm.EventKind) error {
	m.calls <- string(kind)
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.err
}

func (m *mockDispatcher) Redeliver(context.Context) error {
	m.calls <- "redeliver"
	return m.err
}

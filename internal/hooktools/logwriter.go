// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hooktools

import (
	"fmt"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

// LogWriter is a loggo.Writer that collects log records so they can be
// forwarded to juju-log, and show up in `juju debug-log`. Records are
// buffered and sent by Flush, since sending one runs a command, which
// itself logs.
type LogWriter struct {
	tools    *Tools
	minLevel loggo.Level

	mu      sync.Mutex
	pending []loggo.Entry
}

// NewLogWriter returns a writer forwarding records at or above minLevel.
func NewLogWriter(tools *Tools, minLevel loggo.Level) *LogWriter {
	return &LogWriter{tools: tools, minLevel: minLevel}
}

// Write is part of the loggo.Writer interface.
func (w *LogWriter) Write(entry loggo.Entry) {
	if entry.Level < w.minLevel {
		return
	}
	// The command runner's records about running juju-log would otherwise
	// be fed back in.
	if strings.HasPrefix(entry.Module, "numaexporter.cmdrunner") {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, entry)
}

// Flush sends all buffered records to juju-log, in the order they were
// logged. The first failure stops the flush and is returned.
func (w *LogWriter) Flush() error {
	for {
		w.mu.Lock()
		entries := w.pending
		w.pending = nil
		w.mu.Unlock()
		if len(entries) == 0 {
			return nil
		}
		for _, entry := range entries {
			message := fmt.Sprintf("%s: %s", entry.Module, entry.Message)
			if err := w.tools.Log(entry.Level.String(), message); err != nil {
				return errors.Annotate(err, "writing to juju-log")
			}
		}
	}
}

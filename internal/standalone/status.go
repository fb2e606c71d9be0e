// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package standalone

import (
	"sync"

	"github.com/juju/errors"

	"github.com/canonical/prometheus-numa-exporter-operator/core/status"
)

// StatusRecorder keeps the last status set, logs every change and passes
// it on to any further setters.
type StatusRecorder struct {
	mu      sync.Mutex
	current status.StatusInfo
	setters []status.StatusSetter
}

// NewStatusRecorder returns a recorder starting in the unknown status.
func NewStatusRecorder(setters ...status.StatusSetter) *StatusRecorder {
	return &StatusRecorder{
		current: status.StatusInfo{Status: status.Unknown},
		setters: setters,
	}
}

// SetStatus is part of the status.StatusSetter interface.
func (r *StatusRecorder) SetStatus(info status.StatusInfo) error {
	if !info.Status.ValidWorkloadStatus() {
		return errors.NotValidf("workload status %q", info.Status)
	}
	r.mu.Lock()
	changed := r.current != info
	r.current = info
	r.mu.Unlock()

	if changed {
		if info.Status == status.Blocked {
			logger.Warningf("workload status %s", info)
		} else {
			logger.Infof("workload status %s", info)
		}
	}
	for _, setter := range r.setters {
		if err := setter.SetStatus(info); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Current returns the last status set.
func (r *StatusRecorder) Current() status.StatusInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

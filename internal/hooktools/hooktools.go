// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hooktools is a client for the juju hook tools available to a
// charm while it handles a hook: config-get, status-set, relation-ids,
// relation-set, unit-get, application-version-set and juju-log.
package hooktools

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/juju/errors"

	"github.com/canonical/prometheus-numa-exporter-operator/core/status"
)

// Runner runs a hook tool and returns its standard output.
type Runner interface {
	Output(args ...string) ([]byte, error)
}

// Tools invokes hook tools through a Runner.
type Tools struct {
	runner Runner
}

// New returns a Tools using runner.
func New(runner Runner) *Tools {
	return &Tools{runner: runner}
}

// ConfigGet returns the application config of the unit. Options without
// a value are not included.
func (t *Tools) ConfigGet() (map[string]interface{}, error) {
	out, err := t.runner.Output("config-get", "--format=json")
	if err != nil {
		return nil, errors.Annotate(err, "getting charm config")
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(out, &attrs); err != nil {
		return nil, errors.Annotate(err, "decoding charm config")
	}
	for k, v := range attrs {
		if v == nil {
			delete(attrs, k)
		}
	}
	return attrs, nil
}

// SetStatus sets the workload status of the unit.
// SetStatus is part of the status.StatusSetter interface.
func (t *Tools) SetStatus(info status.StatusInfo) error {
	if !info.Status.ValidWorkloadStatus() {
		return errors.NotValidf("workload status %q", info.Status)
	}
	if _, err := t.runner.Output("status-set", info.Status.String(), info.Message); err != nil {
		return errors.Annotatef(err, "setting status %s", info.Status)
	}
	return nil
}

// SetApplicationVersion records the version of the workload.
func (t *Tools) SetApplicationVersion(version string) error {
	if _, err := t.runner.Output("application-version-set", version); err != nil {
		return errors.Annotate(err, "setting application version")
	}
	return nil
}

// RelationIDs returns the ids of the relations established on the named
// endpoint, e.g. "prometheus-scrape:12".
func (t *Tools) RelationIDs(endpoint string) ([]string, error) {
	out, err := t.runner.Output("relation-ids", endpoint, "--format=json")
	if err != nil {
		return nil, errors.Annotatef(err, "listing %s relations", endpoint)
	}
	var ids []string
	if err := json.Unmarshal(out, &ids); err != nil {
		return nil, errors.Annotatef(err, "decoding %s relation ids", endpoint)
	}
	return ids, nil
}

// RelationSet writes settings to the local unit's data bag of the relation
// with the given id. Keys are written in sorted order.
func (t *Tools) RelationSet(relationID string, settings map[string]string) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []string{"relation-set", "-r", relationID}
	for _, k := range keys {
		args = append(args, fmt.Sprintf("%s=%s", k, settings[k]))
	}
	if _, err := t.runner.Output(args...); err != nil {
		return errors.Annotatef(err, "setting data on relation %s", relationID)
	}
	return nil
}

// UnitGet returns a unit setting such as "private-address".
func (t *Tools) UnitGet(key string) (string, error) {
	out, err := t.runner.Output("unit-get", key, "--format=json")
	if err != nil {
		return "", errors.Annotatef(err, "getting unit %s", key)
	}
	var value string
	if err := json.Unmarshal(out, &value); err != nil {
		return "", errors.Annotatef(err, "decoding unit %s", key)
	}
	return value, nil
}

// Log writes a message to the juju log at the given level.
func (t *Tools) Log(level, message string) error {
	_, err := t.runner.Output("juju-log", "-l", level, message)
	return errors.Trace(err)
}

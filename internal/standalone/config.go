// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package standalone provides the collaborators the reconciler uses when
// the agent runs outside a juju hook context: configuration from a local
// YAML file, status kept in memory and the log, and the scrape target
// written as a Prometheus file_sd target group.
package standalone

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"gopkg.in/yaml.v2"

	"github.com/canonical/prometheus-numa-exporter-operator/core/config"
)

var logger = loggo.GetLogger("numaexporter.standalone")

// ConfigFile reads the desired configuration from a YAML file holding the
// charm options as a flat mapping, e.g.
//
//	channel: edge
//	scrape-port: 9101
type ConfigFile struct {
	path string
}

// NewConfigFile returns a ConfigFile reading path.
func NewConfigFile(path string) *ConfigFile {
	return &ConfigFile{path: path}
}

// Path returns the path of the file.
func (f *ConfigFile) Path() string {
	return f.path
}

// Attributes returns the options set in the file. A missing file sets no
// options, so defaults apply.
func (f *ConfigFile) Attributes() (map[string]interface{}, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		logger.Infof("%s does not exist, using default configuration", f.path)
		return nil, nil
	} else if err != nil {
		return nil, errors.Annotatef(err, "reading %s", f.path)
	}
	var attrs map[string]interface{}
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, errors.NewNotValid(err, "parsing "+f.path)
	}
	for k, v := range attrs {
		if v == nil {
			delete(attrs, k)
		}
	}
	return attrs, nil
}

// Desired returns the typed configuration in the file.
func (f *ConfigFile) Desired() (config.Desired, error) {
	attrs, err := f.Attributes()
	if err != nil {
		return config.Desired{}, errors.Trace(err)
	}
	desired, err := config.ParseDesired(attrs)
	return desired, errors.Trace(err)
}

// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package standalone

import (
	"net"
	"strconv"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"gopkg.in/yaml.v2"

	"github.com/canonical/prometheus-numa-exporter-operator/internal/scrape"
)

// targetGroup is an entry of a Prometheus file_sd file.
type targetGroup struct {
	Targets []string          `yaml:"targets"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

// TargetsFile publishes the scrape target by writing a file_sd file that a
// Prometheus server on the host, or one reading it over a shared mount,
// picks up.
type TargetsFile struct {
	path string
	host string
}

// NewTargetsFile returns an exposer writing path. The target is advertised
// at host.
func NewTargetsFile(path, host string) *TargetsFile {
	return &TargetsFile{path: path, host: host}
}

// ExposeScrapeTarget is part of the scrape.Exposer interface.
func (f *TargetsFile) ExposeScrapeTarget(target scrape.Target) error {
	if err := target.Validate(); err != nil {
		return errors.Trace(err)
	}
	groups := []targetGroup{{
		Targets: []string{net.JoinHostPort(f.host, strconv.Itoa(target.Port))},
		Labels: map[string]string{
			"__metrics_path__":    target.Path,
			"__scrape_interval__": target.ScrapeInterval,
			"__scrape_timeout__":  target.ScrapeTimeout,
		},
	}}
	data, err := yaml.Marshal(groups)
	if err != nil {
		return errors.Annotate(err, "encoding scrape targets")
	}
	if err := utils.AtomicWriteFile(f.path, data, 0644); err != nil {
		return errors.Annotatef(err, "writing %s", f.path)
	}
	logger.Infof("wrote scrape target %s to %s", groups[0].Targets[0], f.path)
	return nil
}

// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package scrape

import (
	"strconv"

	"github.com/juju/errors"
	"github.com/juju/naturalsort"
)

// Endpoint is the relation endpoint the monitoring service joins.
const Endpoint = "prometheus-scrape"

// RelationTools is the subset of the hook tools used to publish the target
// over the relation.
type RelationTools interface {
	RelationIDs(endpoint string) ([]string, error)
	RelationSet(relationID string, settings map[string]string) error
	UnitGet(key string) (string, error)
}

// RelationExposer writes the scrape target to every prometheus-scrape
// relation of the unit, in relation id order.
type RelationExposer struct {
	tools RelationTools
}

// NewRelationExposer returns an exposer publishing through tools.
func NewRelationExposer(tools RelationTools) *RelationExposer {
	return &RelationExposer{tools: tools}
}

// ExposeScrapeTarget is part of the Exposer interface.
func (e *RelationExposer) ExposeScrapeTarget(target Target) error {
	if err := target.Validate(); err != nil {
		return errors.Trace(err)
	}
	ids, err := e.tools.RelationIDs(Endpoint)
	if err != nil {
		return errors.Trace(err)
	}
	if len(ids) == 0 {
		logger.Debugf("no %s relations, nothing to publish", Endpoint)
		return nil
	}
	hostname, err := e.tools.UnitGet("private-address")
	if err != nil {
		return errors.Trace(err)
	}
	settings := map[string]string{
		"hostname":        hostname,
		"port":            strconv.Itoa(target.Port),
		"metrics_path":    target.Path,
		"scrape_interval": target.ScrapeInterval,
		"scrape_timeout":  target.ScrapeTimeout,
	}
	for _, id := range naturalsort.Sort(ids) {
		if err := e.tools.RelationSet(id, settings); err != nil {
			return errors.Trace(err)
		}
	}
	logger.Infof("published scrape target %s:%d%s to %d relation(s)", hostname, target.Port, target.Path, len(ids))
	return nil
}

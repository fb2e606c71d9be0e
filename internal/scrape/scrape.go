// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package scrape advertises the exporter as a Prometheus scrape target.
package scrape

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/canonical/prometheus-numa-exporter-operator/internal/validate"
)

var logger = loggo.GetLogger("numaexporter.scrape")

// MetricsPath is the path the exporter serves metrics on.
const MetricsPath = "/metrics"

// durationRe matches the Prometheus duration form used for scrape settings.
var durationRe = regexp.MustCompile(`^[0-9]+[smhdwy]$`)

// Target describes how the monitoring service should scrape the exporter.
type Target struct {
	Port           int
	Path           string
	ScrapeInterval string
	ScrapeTimeout  string
}

// Validate checks that the target can be advertised.
func (t Target) Validate() error {
	if err := validate.Port(t.Port); err != nil {
		return &ConfigError{Reason: fmt.Sprintf("port %d not between %d and %d", t.Port, validate.MinPort, validate.MaxPort)}
	}
	if !strings.HasPrefix(t.Path, "/") {
		return &ConfigError{Reason: fmt.Sprintf("metrics path %q must begin with /", t.Path)}
	}
	if !durationRe.MatchString(t.ScrapeInterval) {
		return &ConfigError{Reason: fmt.Sprintf("scrape interval %q is not a duration", t.ScrapeInterval)}
	}
	if !durationRe.MatchString(t.ScrapeTimeout) {
		return &ConfigError{Reason: fmt.Sprintf("scrape timeout %q is not a duration", t.ScrapeTimeout)}
	}
	return nil
}

// ConfigError is returned when the scrape target is rejected by the
// exposer.
type ConfigError struct {
	Reason string
}

// Error is part of the error interface.
func (e *ConfigError) Error() string {
	return "invalid scrape target: " + e.Reason
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// Exposer makes a scrape target known to the monitoring service.
type Exposer interface {
	ExposeScrapeTarget(Target) error
}

// Publisher turns the exporter's settings into a scrape target.
type Publisher struct {
	exposer Exposer
}

// NewPublisher returns a Publisher advertising through exposer.
func NewPublisher(exposer Exposer) *Publisher {
	return &Publisher{exposer: exposer}
}

// Publish advertises the exporter on port. The interval is given in
// minutes and the timeout in seconds.
func (p *Publisher) Publish(port, intervalMinutes, timeoutSeconds int) error {
	target := Target{
		Port:           port,
		Path:           MetricsPath,
		ScrapeInterval: fmt.Sprintf("%ds", intervalMinutes*60),
		ScrapeTimeout:  fmt.Sprintf("%ds", timeoutSeconds),
	}
	err := p.exposer.ExposeScrapeTarget(target)
	if IsConfigError(err) {
		logger.Errorf("Failed to configure prometheus scrape target: %v", err)
		return errors.Trace(err)
	}
	return errors.Trace(err)
}

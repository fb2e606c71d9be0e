// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package validate holds the checks applied to operator supplied
// settings before they are handed to the exporter snap. Every check is a
// pure function returning a not-valid error that names the offending value.
package validate

import (
	"net/netip"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/canonical/prometheus-numa-exporter-operator/internal/snap"
)

const (
	// MinPort and MaxPort bound the scrape port.
	MinPort = 1
	MaxPort = 65535
)

// LogLevels holds the log levels understood by the exporter.
var LogLevels = set.NewStrings("debug", "info", "warning", "error", "critical")

// Channel checks that channel is one of the snap store risks.
func Channel(channel string) error {
	if _, err := snap.ParseRisk(channel); err != nil {
		return errors.NotValidf("channel %q", channel)
	}
	return nil
}

// Address checks that address is an IPv4 or IPv6 literal. An empty address
// means no override and is valid.
func Address(address string) error {
	if address == "" {
		return nil
	}
	if _, err := netip.ParseAddr(address); err != nil {
		return errors.NotValidf("address %q", address)
	}
	return nil
}

// Port checks that port lies in [MinPort, MaxPort].
func Port(port int) error {
	if port < MinPort || port > MaxPort {
		return errors.NotValidf("port %d", port)
	}
	return nil
}

// LogLevel checks that level is one of LogLevels.
func LogLevel(level string) error {
	if !LogLevels.Contains(level) {
		return errors.NotValidf("log-level %q", level)
	}
	return nil
}

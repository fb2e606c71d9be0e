// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status

import (
	"fmt"
)

// Status represents the workload status of the unit running the exporter
// agent, as reported to the operator through status-set.
type Status string

// String returns a string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// StatusInfo holds a Status and associated information.
type StatusInfo struct {
	Status  Status
	Message string
}

// String returns the status rendered the way the operator sees it,
// e.g. "blocked: Invalid channel configured.".
func (s StatusInfo) String() string {
	if s.Message == "" {
		return s.Status.String()
	}
	return fmt.Sprintf("%s: %s", s.Status, s.Message)
}

// StatusSetter represents a type whose status can be set.
type StatusSetter interface {
	SetStatus(StatusInfo) error
}

const (
	// Unknown is set when:
	// A unit-agent has finished calling install, config-changed, and start,
	// but the charm has not called status-set yet.
	Unknown Status = "unknown"

	// Maintenance is set when:
	// The unit is not yet providing services, but is actively doing stuff
	// in preparation for providing those services.
	// This is a "spinning" state, not an error state.
	// It reflects activity on the unit itself, not on peers or related units.
	Maintenance Status = "maintenance"

	// Waiting is set when:
	// The unit is unable to progress to an active state because an application to
	// which it is related is not running.
	Waiting Status = "waiting"

	// Blocked is set when:
	// The unit needs manual intervention to get back to the Running state.
	Blocked Status = "blocked"

	// Active is set when:
	// The unit believes it is correctly offering all the services it has
	// been asked to offer.
	Active Status = "active"
)

// ValidWorkloadStatus returns true if status has a value the agent is
// allowed to set on its unit.
func (s Status) ValidWorkloadStatus() bool {
	switch s {
	case
		Maintenance,
		Waiting,
		Blocked,
		Active:
		return true
	}
	return false
}

// NewMaintenance returns a maintenance StatusInfo with the given message.
func NewMaintenance(message string) StatusInfo {
	return StatusInfo{Status: Maintenance, Message: message}
}

// NewBlocked returns a blocked StatusInfo with the formatted reason.
func NewBlocked(format string, args ...interface{}) StatusInfo {
	return StatusInfo{Status: Blocked, Message: fmt.Sprintf(format, args...)}
}

// NewActive returns an active StatusInfo with the given message.
func NewActive(message string) StatusInfo {
	return StatusInfo{Status: Active, Message: message}
}

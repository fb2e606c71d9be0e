// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package snap

import (
	"github.com/juju/errors"
)

// Risk describes the risk level of a snap store channel.
type Risk string

const (
	Stable    Risk = "stable"
	Candidate Risk = "candidate"
	Beta      Risk = "beta"
	Edge      Risk = "edge"
)

// Risks is a list of the available channel risks.
var Risks = []Risk{
	Stable,
	Candidate,
	Beta,
	Edge,
}

// IsRisk reports whether potential names one of the channel risks.
func IsRisk(potential string) bool {
	for _, risk := range Risks {
		if potential == string(risk) {
			return true
		}
	}
	return false
}

// ParseRisk returns the Risk named by s.
func ParseRisk(s string) (Risk, error) {
	if !IsRisk(s) {
		return "", errors.NotValidf("risk %q", s)
	}
	return Risk(s), nil
}

// flag returns the command line flag selecting the risk, e.g. "--edge".
func (r Risk) flag() string {
	return "--" + string(r)
}

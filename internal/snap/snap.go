// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package snap drives the snap command for a single managed snap.
package snap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

const (
	// Command is a path to the snap binary, or to one that can be detected by os.Exec
	Command = "snap"
)

var (
	logger = loggo.GetLogger("numaexporter.snap")

	// snapNameRe is derived from https://github.com/snapcore/snapcraft/blob/a2ef08109d86259a0748446f41bce5205d00a922/schema/snapcraft.yaml#L81-106
	// but does not test for "--"
	snapNameRe = regexp.MustCompile("^[a-z0-9][a-z0-9-]{0,39}[^-]$")
)

// CommandRunner runs argument vectors. Run reports whether the command
// exited successfully, Output returns its standard output.
type CommandRunner interface {
	Run(args ...string) (bool, error)
	Output(args ...string) ([]byte, error)
}

// Client manages one snap through the snap command.
type Client struct {
	name       string
	executable string
	runner     CommandRunner
}

// NewClient returns a Client for the snap called name.
func NewClient(name string, runner CommandRunner) (*Client, error) {
	if !snapNameRe.MatchString(name) {
		return nil, errors.NotValidf("snap name %q", name)
	}
	if runner == nil {
		return nil, errors.NotValidf("nil runner")
	}
	return &Client{
		name:       name,
		executable: Command,
		runner:     runner,
	}, nil
}

// Install installs the snap from the channel with the given risk.
func (c *Client) Install(risk Risk) (bool, error) {
	return c.run("install", c.name, risk.flag())
}

// Refresh moves the installed snap to the channel with the given risk.
func (c *Client) Refresh(risk Risk) (bool, error) {
	return c.run("refresh", c.name, risk.flag())
}

// Connect connects the snap's plug to the matching system slot.
func (c *Client) Connect(plug string) (bool, error) {
	if plug == "" {
		return false, errors.NotValidf("empty plug")
	}
	return c.run("connect", fmt.Sprintf("%s:%s", c.name, plug))
}

// Set sets a snap's key to value.
func (c *Client) Set(key, value string) (bool, error) {
	if key == "" {
		return false, errors.NotValidf("key must not be empty")
	}
	return c.run("set", c.name, fmt.Sprintf("%s=%s", key, value))
}

// Version returns the version of the installed snap, as reported by
// `snap list`. For example, this output from `snap list prometheus-numa-exporter`
//
//	Name                      Version  Rev  Tracking       Publisher  Notes
//	prometheus-numa-exporter  0.3.1    42   latest/stable  canonical  -
//
// returns "0.3.1".
func (c *Client) Version() (string, error) {
	out, err := c.runner.Output(c.executable, "list", c.name)
	if err != nil {
		return "", errors.Annotatef(err, "listing snap %s", c.name)
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != c.name {
			continue
		}
		return fields[1], nil
	}
	return "", errors.NotFoundf("snap %s", c.name)
}

func (c *Client) run(args ...string) (bool, error) {
	ok, err := c.runner.Run(append([]string{c.executable}, args...)...)
	if err != nil {
		return false, errors.Trace(err)
	}
	if !ok {
		logger.Debugf("snap %s %s failed", args[0], c.name)
	}
	return ok, nil
}

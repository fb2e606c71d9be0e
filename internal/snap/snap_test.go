// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package snap

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/canonical/prometheus-numa-exporter-operator/internal/cmdrunner"
)

const snapName = "prometheus-numa-exporter"

type snapSuite struct {
	testing.IsolationSuite

	runner *MockCommandRunner
}

var _ = gc.Suite(&snapSuite{})

func (s *snapSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.runner = NewMockCommandRunner(ctrl)
	return ctrl
}

func (s *snapSuite) newClient(c *gc.C) *Client {
	client, err := NewClient(snapName, s.runner)
	c.Assert(err, jc.ErrorIsNil)
	return client
}

func (s *snapSuite) TestNewClientValidatesName(c *gc.C) {
	defer s.setupMocks(c).Finish()

	_, err := NewClient("Not_A_Snap", s.runner)
	c.Assert(err, jc.Satisfies, errors.IsNotValid)

	_, err = NewClient(snapName, nil)
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
}

func (s *snapSuite) TestInstall(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.runner.EXPECT().Run("snap", "install", snapName, "--edge").Return(true, nil)

	ok, err := s.newClient(c).Install(Edge)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ok, jc.IsTrue)
}

func (s *snapSuite) TestRefreshFailure(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.runner.EXPECT().Run("snap", "refresh", snapName, "--candidate").Return(false, nil)

	ok, err := s.newClient(c).Refresh(Candidate)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ok, jc.IsFalse)
}

func (s *snapSuite) TestConnect(c *gc.C) {
	defer s.setupMocks(c).Finish()

	gomock.InOrder(
		s.runner.EXPECT().Run("snap", "connect", snapName+":libvirt").Return(true, nil),
		s.runner.EXPECT().Run("snap", "connect", snapName+":hardware-observe").Return(true, nil),
	)

	client := s.newClient(c)
	for _, plug := range []string{"libvirt", "hardware-observe"} {
		ok, err := client.Connect(plug)
		c.Assert(err, jc.ErrorIsNil)
		c.Check(ok, jc.IsTrue)
	}
}

func (s *snapSuite) TestSet(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.runner.EXPECT().Run("snap", "set", snapName, "cpu-dedicated-set=3-5").Return(true, nil)

	ok, err := s.newClient(c).Set("cpu-dedicated-set", "3-5")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ok, jc.IsTrue)
}

func (s *snapSuite) TestSetEmptyKey(c *gc.C) {
	defer s.setupMocks(c).Finish()

	_, err := s.newClient(c).Set("", "3-5")
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
}

func (s *snapSuite) TestRunLaunchError(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.runner.EXPECT().Run("snap", "install", snapName, "--stable").Return(false, errors.NotFoundf(`executable "snap"`))

	_, err := s.newClient(c).Install(Stable)
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *snapSuite) TestVersion(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.runner.EXPECT().Output("snap", "list", snapName).Return([]byte(`
Name                      Version  Rev  Tracking       Publisher  Notes
prometheus-numa-exporter  0.3.1    42   latest/stable  canonical  -
`[1:]), nil)

	version, err := s.newClient(c).Version()
	c.Assert(err, jc.ErrorIsNil)
	c.Check(version, gc.Equals, "0.3.1")
}

func (s *snapSuite) TestVersionNotInstalled(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.runner.EXPECT().Output("snap", "list", snapName).Return(nil, &cmdrunner.CommandError{
		Args:   []string{"snap", "list", snapName},
		Code:   1,
		Stderr: "error: no matching snaps installed",
	})

	_, err := s.newClient(c).Version()
	c.Assert(err, gc.ErrorMatches, `listing snap prometheus-numa-exporter: command .* returned code 1: error: no matching snaps installed`)
}

func (s *snapSuite) TestVersionMissingLine(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.runner.EXPECT().Output("snap", "list", snapName).Return([]byte("Name  Version  Rev\n"), nil)

	_, err := s.newClient(c).Version()
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

type channelSuite struct{}

var _ = gc.Suite(&channelSuite{})

func (*channelSuite) TestParseRisk(c *gc.C) {
	for _, risk := range []string{"beta", "edge", "candidate", "stable"} {
		r, err := ParseRisk(risk)
		c.Check(err, jc.ErrorIsNil)
		c.Check(string(r), gc.Equals, risk)
	}
	for _, risk := range []string{"", "Stable", "bleeding edge", "latest/stable"} {
		_, err := ParseRisk(risk)
		c.Check(err, jc.Satisfies, errors.IsNotValid, gc.Commentf("%q", risk))
	}
}

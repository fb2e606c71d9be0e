// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dispatch_test

import (
	"context"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/prometheus-numa-exporter-operator/core/config"
	"github.com/canonical/prometheus-numa-exporter-operator/core/status"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/charm"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/dispatch"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/state"
)

type dispatcherSuite struct {
	testing.IsolationSuite

	clock       *testclock.Clock
	store       *memStore
	source      *mockConfigSource
	statusStub  *testing.Stub
	metricsStub *testing.Stub

	// handled records the handler invocations, with the events that were
	// deferred at the time.
	handled []string
	results map[charm.EventKind]charm.Result
	errs    map[charm.EventKind]error
}

var _ = gc.Suite(&dispatcherSuite{})

func (s *dispatcherSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s.store = &memStore{}
	s.source = &mockConfigSource{Stub: &testing.Stub{}, desired: config.Desired{Channel: "edge"}}
	s.statusStub = &testing.Stub{}
	s.metricsStub = &testing.Stub{}
	s.handled = nil
	s.results = make(map[charm.EventKind]charm.Result)
	s.errs = make(map[charm.EventKind]error)
}

func (s *dispatcherSuite) handler(kind charm.EventKind) charm.Handler {
	return func(ctx *charm.Context) (charm.Result, error) {
		entry := string(kind)
		if ctx.IsDeferred(charm.Install) {
			entry += " (install deferred)"
		}
		s.handled = append(s.handled, entry)
		return s.results[kind], s.errs[kind]
	}
}

func (s *dispatcherSuite) newDispatcher(c *gc.C) *dispatch.Dispatcher {
	handlers := make(map[charm.EventKind]charm.Handler)
	for _, kind := range []charm.EventKind{charm.Install, charm.Start, charm.ConfigChanged, charm.PrometheusAvailable} {
		handlers[kind] = s.handler(kind)
	}
	d, err := dispatch.NewDispatcher(dispatch.Config{
		Handlers: handlers,
		Store:    s.store,
		Config:   s.source,
		Status:   &mockStatusSetter{Stub: s.statusStub},
		Clock:    s.clock,
		Metrics:  &mockMetrics{Stub: s.metricsStub},
	})
	c.Assert(err, jc.ErrorIsNil)
	return d
}

func blocked(message string) charm.Result {
	info := status.NewBlocked(message)
	return charm.Result{Status: &info, Defer: true}
}

func active(message string) charm.Result {
	info := status.NewActive(message)
	return charm.Result{Status: &info}
}

func (s *dispatcherSuite) TestEventForHook(c *gc.C) {
	for hook, expected := range map[string]charm.EventKind{
		"install":                            charm.Install,
		"start":                              charm.Start,
		"config-changed":                     charm.ConfigChanged,
		"prometheus-scrape-relation-joined":  charm.PrometheusAvailable,
		"prometheus-scrape-relation-changed": charm.PrometheusAvailable,
	} {
		kind, ok := dispatch.EventForHook(hook)
		c.Check(ok, jc.IsTrue)
		c.Check(kind, gc.Equals, expected)
	}
	_, ok := dispatch.EventForHook("update-status")
	c.Check(ok, jc.IsFalse)
}

func (s *dispatcherSuite) TestValidate(c *gc.C) {
	_, err := dispatch.NewDispatcher(dispatch.Config{})
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
}

func (s *dispatcherSuite) TestUnknownHookIgnored(c *gc.C) {
	err := s.newDispatcher(c).DispatchHook(context.Background(), "update-status")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.handled, gc.HasLen, 0)
	s.source.CheckNoCalls(c)
}

func (s *dispatcherSuite) TestDispatchAppliesStatus(c *gc.C) {
	s.results[charm.ConfigChanged] = active("Ready at edge")

	err := s.newDispatcher(c).DispatchHook(context.Background(), "config-changed")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.handled, jc.DeepEquals, []string{"config-changed"})
	s.statusStub.CheckCalls(c, []testing.StubCall{
		{FuncName: "SetStatus", Args: []interface{}{status.NewActive("Ready at edge")}},
	})
	s.metricsStub.CheckCalls(c, []testing.StubCall{
		{FuncName: "EventHandled", Args: []interface{}{"config-changed", "ok"}},
		{FuncName: "SetDeferred", Args: []interface{}{0}},
		{FuncName: "Reconciled", Args: []interface{}{s.clock.Now()}},
	})
}

func (s *dispatcherSuite) TestNoStatusChange(c *gc.C) {
	err := s.newDispatcher(c).Dispatch(context.Background(), charm.PrometheusAvailable)
	c.Assert(err, jc.ErrorIsNil)
	s.statusStub.CheckNoCalls(c)
}

func (s *dispatcherSuite) TestDeferRecordsEvent(c *gc.C) {
	s.results[charm.Install] = blocked("could not install snap")

	err := s.newDispatcher(c).Dispatch(context.Background(), charm.Install)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.store.kinds, jc.DeepEquals, []string{"install"})
	s.metricsStub.CheckCall(c, 0, "EventHandled", "install", "deferred")
	s.metricsStub.CheckCall(c, 1, "SetDeferred", 1)
}

func (s *dispatcherSuite) TestDeferredReplayedBeforeCurrent(c *gc.C) {
	s.store.kinds = []string{"install", "config-changed"}
	s.results[charm.Start] = active("")

	err := s.newDispatcher(c).Dispatch(context.Background(), charm.Start)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.handled, jc.DeepEquals, []string{
		"install (install deferred)",
		"config-changed",
		"start",
	})
	c.Check(s.store.kinds, gc.HasLen, 0)
}

func (s *dispatcherSuite) TestRedeferredEventStays(c *gc.C) {
	s.store.kinds = []string{"install"}
	s.results[charm.Install] = blocked("could not install snap")
	s.results[charm.Start] = charm.Result{}

	err := s.newDispatcher(c).Dispatch(context.Background(), charm.Start)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.handled, jc.DeepEquals, []string{
		"install (install deferred)",
		"start (install deferred)",
	})
	c.Check(s.store.kinds, jc.DeepEquals, []string{"install"})
}

func (s *dispatcherSuite) TestCurrentSupersedesDeferred(c *gc.C) {
	s.store.kinds = []string{"config-changed"}
	s.results[charm.ConfigChanged] = active("Ready at edge")

	err := s.newDispatcher(c).Dispatch(context.Background(), charm.ConfigChanged)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.handled, jc.DeepEquals, []string{"config-changed"})
	c.Check(s.store.kinds, gc.HasLen, 0)
}

func (s *dispatcherSuite) TestRedeliver(c *gc.C) {
	s.store.kinds = []string{"config-changed"}
	s.results[charm.ConfigChanged] = active("Ready at edge")

	err := s.newDispatcher(c).Redeliver(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.handled, jc.DeepEquals, []string{"config-changed"})
	c.Check(s.store.kinds, gc.HasLen, 0)
}

func (s *dispatcherSuite) TestRedeliverNothingDeferred(c *gc.C) {
	err := s.newDispatcher(c).Redeliver(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	s.source.CheckNoCalls(c)
	s.metricsStub.CheckNoCalls(c)
}

func (s *dispatcherSuite) TestDeferredWithoutHandlerDropped(c *gc.C) {
	s.store.kinds = []string{"upgrade-charm", "config-changed"}

	err := s.newDispatcher(c).Redeliver(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.handled, jc.DeepEquals, []string{"config-changed"})
	c.Check(s.store.kinds, gc.HasLen, 0)
}

func (s *dispatcherSuite) TestHandlerErrorIsFatal(c *gc.C) {
	s.errs[charm.ConfigChanged] = errors.New("could not open/read file /etc/nova/nova.conf: permission denied")

	err := s.newDispatcher(c).Dispatch(context.Background(), charm.ConfigChanged)
	c.Assert(err, gc.ErrorMatches, `handling config-changed: could not open/read file /etc/nova/nova.conf: permission denied`)
	s.statusStub.CheckNoCalls(c)
	c.Check(s.store.kinds, gc.HasLen, 0)
}

func (s *dispatcherSuite) TestInvalidConfigBlocksAndDefers(c *gc.C) {
	s.source.SetErrors(errors.NewNotValid(nil, `unknown key "chanel" (value "edge")`))

	err := s.newDispatcher(c).Dispatch(context.Background(), charm.ConfigChanged)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.handled, gc.HasLen, 0)
	s.statusStub.CheckCalls(c, []testing.StubCall{{
		FuncName: "SetStatus",
		Args:     []interface{}{status.NewBlocked(`Invalid configuration: unknown key "chanel" (value "edge")`)},
	}})
	c.Check(s.store.kinds, jc.DeepEquals, []string{"config-changed"})
}

func (s *dispatcherSuite) TestConfigReadErrorIsFatal(c *gc.C) {
	s.source.SetErrors(errors.New("config-get: no hook context"))

	err := s.newDispatcher(c).Dispatch(context.Background(), charm.ConfigChanged)
	c.Assert(err, gc.ErrorMatches, `reading configuration: config-get: no hook context`)
}

func (s *dispatcherSuite) TestStatusErrorIsFatal(c *gc.C) {
	s.results[charm.Start] = active("")
	s.statusStub.SetErrors(errors.New("status-set failed"))

	err := s.newDispatcher(c).Dispatch(context.Background(), charm.Start)
	c.Assert(err, gc.ErrorMatches, `setting status "active": status-set failed`)
}

func (s *dispatcherSuite) TestWithStateStore(c *gc.C) {
	ctx := context.Background()
	store, err := state.Open(ctx, c.MkDir())
	c.Assert(err, jc.ErrorIsNil)
	defer func() { _ = store.Close() }()

	handlers := map[charm.EventKind]charm.Handler{
		charm.Install: s.handler(charm.Install),
		charm.Start:   s.handler(charm.Start),
	}
	d, err := dispatch.NewDispatcher(dispatch.Config{
		Handlers: handlers,
		Store:    store,
		Config:   s.source,
		Status:   &mockStatusSetter{Stub: s.statusStub},
		Clock:    s.clock,
	})
	c.Assert(err, jc.ErrorIsNil)

	s.results[charm.Install] = blocked("could not install snap")
	c.Assert(d.DispatchHook(ctx, "install"), jc.ErrorIsNil)
	c.Assert(d.DispatchHook(ctx, "start"), jc.ErrorIsNil)

	kinds, err := store.Deferred(ctx)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(kinds, jc.DeepEquals, []string{"install"})

	s.results[charm.Install] = active("Ready")
	c.Assert(d.DispatchHook(ctx, "start"), jc.ErrorIsNil)
	kinds, err = store.Deferred(ctx)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(kinds, gc.HasLen, 0)

	c.Check(s.handled, jc.DeepEquals, []string{
		"install",
		"install (install deferred)",
		"start (install deferred)",
		"install (install deferred)",
		"start",
	})
}

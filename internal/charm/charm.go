// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package charm reconciles the prometheus-numa-exporter snap with the
// configuration requested by the operator and the settings found on the
// host. Each lifecycle event has a handler returning the status the unit
// should report and whether the event must be delivered again.
package charm

import (
	"encoding/json"
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/canonical/prometheus-numa-exporter-operator/core/status"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/hostconfig"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/snap"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/validate"
)

var logger = loggo.GetLogger("numaexporter.charm")

const (
	// SnapName is the snap managed by the agent.
	SnapName = "prometheus-numa-exporter"

	// DefaultScrapePort is the port advertised when none is configured.
	DefaultScrapePort = 9101

	libvirtPlug         = "libvirt"
	hardwareObservePlug = "hardware-observe"
)

// Snap keys written by the config-changed pass.
const (
	addressSetting           = "address"
	portSetting              = "port"
	levelSetting             = "level"
	cpuDedicatedSetSetting   = "cpu-dedicated-set"
	networkInterfacesSetting = "network-interfaces"
)

// SnapClient manages the exporter snap.
type SnapClient interface {
	Install(snap.Risk) (bool, error)
	Refresh(snap.Risk) (bool, error)
	Connect(plug string) (bool, error)
	Set(key, value string) (bool, error)
	Version() (string, error)
}

// Publisher advertises the exporter as a scrape target.
type Publisher interface {
	Publish(port, intervalMinutes, timeoutSeconds int) error
}

// VersionSetter records the version of the installed workload.
type VersionSetter interface {
	SetApplicationVersion(version string) error
}

// Config holds the dependencies of a Reconciler.
type Config struct {
	Snap      SnapClient
	Publisher Publisher

	// HostConfigPath is the nova configuration file settings are derived
	// from.
	HostConfigPath string

	// Progress, if set, is told about statuses reached while a handler is
	// still running.
	Progress status.StatusSetter

	// Versions, if set, receives the snap's version after installation.
	Versions VersionSetter
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.Snap == nil {
		return errors.NotValidf("nil Snap")
	}
	if c.Publisher == nil {
		return errors.NotValidf("nil Publisher")
	}
	if c.HostConfigPath == "" {
		return errors.NotValidf("empty HostConfigPath")
	}
	return nil
}

// Reconciler handles lifecycle events.
type Reconciler struct {
	config Config
}

// NewReconciler returns a Reconciler using the given dependencies.
func NewReconciler(config Config) (*Reconciler, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Reconciler{config: config}, nil
}

// Handler handles one kind of event.
type Handler func(*Context) (Result, error)

// Handlers returns the dispatch table of the reconciler.
func (r *Reconciler) Handlers() map[EventKind]Handler {
	return map[EventKind]Handler{
		Install:             r.Install,
		Start:               r.Start,
		ConfigChanged:       r.ConfigChanged,
		PrometheusAvailable: r.PrometheusAvailable,
	}
}

func (r *Reconciler) progress(info status.StatusInfo) {
	if r.config.Progress == nil {
		return
	}
	if err := r.config.Progress.SetStatus(info); err != nil {
		logger.Warningf("cannot set status %q: %v", info, err)
	}
}

// Install installs the snap on the configured channel and connects its
// interfaces.
func (r *Reconciler) Install(ctx *Context) (Result, error) {
	r.progress(status.NewMaintenance("Installing prometheus-numa-exporter snap"))

	if err := validate.Channel(ctx.Desired.Channel); err != nil {
		logger.Errorf("Invalid channel configured: %s", ctx.Desired.Channel)
		return blocked("Invalid channel configured."), nil
	}
	risk := snap.Risk(ctx.Desired.Channel)

	if ok, err := r.config.Snap.Install(risk); err != nil {
		return Result{}, errors.Annotate(err, "installing snap")
	} else if !ok {
		return blocked("could not install snap"), nil
	}
	if ok, err := r.config.Snap.Connect(libvirtPlug); err != nil {
		return Result{}, errors.Annotatef(err, "connecting %s", libvirtPlug)
	} else if !ok {
		return blocked("Could not connect snap to libvirt"), nil
	}
	if ok, err := r.config.Snap.Connect(hardwareObservePlug); err != nil {
		return Result{}, errors.Annotatef(err, "connecting %s", hardwareObservePlug)
	} else if !ok {
		return blocked("Could not connect snap to hardware-observer"), nil
	}

	r.recordVersion()
	return active("Ready"), nil
}

func (r *Reconciler) recordVersion() {
	version, err := r.config.Snap.Version()
	if err != nil {
		logger.Warningf("cannot read %s version: %v", SnapName, err)
		return
	}
	logger.Infof("%s version %s installed", SnapName, version)
	if r.config.Versions == nil {
		return
	}
	if err := r.config.Versions.SetApplicationVersion(version); err != nil {
		logger.Warningf("cannot record workload version: %v", err)
	}
}

// Start marks the unit active, unless installation has yet to succeed.
func (r *Reconciler) Start(ctx *Context) (Result, error) {
	if ctx.IsDeferred(Install) {
		logger.Infof("install is deferred, leaving status unchanged")
		return Result{}, nil
	}
	return active(""), nil
}

// ConfigChanged applies the desired and host derived settings to the snap,
// in a fixed order. The pass stops at the first setting that cannot be
// applied.
func (r *Reconciler) ConfigChanged(ctx *Context) (Result, error) {
	desired := ctx.Desired
	logger.Debugf("reconciling %s", desired)

	// Channel.
	if err := validate.Channel(desired.Channel); err != nil {
		logger.Errorf("Invalid channel configured: %s", desired.Channel)
		return blocked("Invalid channel configured: %s", desired.Channel), nil
	}
	risk := snap.Risk(desired.Channel)
	if res, err := r.apply("refresh snap", func() (bool, error) {
		return r.config.Snap.Refresh(risk)
	}); err != nil || res != nil {
		return deref(res), errors.Trace(err)
	}

	// Address.
	if desired.Address != nil && *desired.Address != "" {
		address := *desired.Address
		if err := validate.Address(address); err != nil {
			logger.Errorf("Invalid address configured: %s", address)
			return blocked("Invalid address configured: %s", address), nil
		}
		if res, err := r.set(addressSetting, address); err != nil || res != nil {
			return deref(res), errors.Trace(err)
		}
	}

	// Scrape port.
	if desired.ScrapePort != nil {
		port := *desired.ScrapePort
		if err := validate.Port(port); err != nil {
			logger.Errorf("Port %d not between %d and %d", port, validate.MinPort, validate.MaxPort)
			return blocked("Port %d not between %d and %d", port, validate.MinPort, validate.MaxPort), nil
		}
		if res, err := r.set(portSetting, fmt.Sprint(port)); err != nil || res != nil {
			return deref(res), errors.Trace(err)
		}
	}

	// Log level.
	if desired.LogLevel != nil {
		level := *desired.LogLevel
		if err := validate.LogLevel(level); err != nil {
			logger.Errorf("Invalid log-level configured: %s", level)
			return blocked("Invalid log-level configured: %s", level), nil
		}
		if res, err := r.set(levelSetting, level); err != nil || res != nil {
			return deref(res), errors.Trace(err)
		}
	}

	// Host derived settings.
	cpus, err := hostconfig.ReadValue(r.config.HostConfigPath, hostconfig.CPUDedicatedSetKey)
	if err != nil {
		return Result{}, errors.Trace(err)
	}
	ctx.Host.CPUDedicatedSet = cpus
	if cpus != "" {
		if res, err := r.set(cpuDedicatedSetSetting, cpus); err != nil || res != nil {
			return deref(res), errors.Trace(err)
		}
	}

	nics, err := hostconfig.ReadNICs(r.config.HostConfigPath)
	if err != nil {
		return Result{}, errors.Trace(err)
	}
	ctx.Host.NetworkInterfaces = nics
	if len(nics) > 0 {
		data, err := json.Marshal(nics)
		if err != nil {
			return Result{}, errors.Annotate(err, "encoding network interfaces")
		}
		if res, err := r.set(networkInterfacesSetting, string(data)); err != nil || res != nil {
			return deref(res), errors.Trace(err)
		}
	}

	if err := r.publish(desired.ScrapePort, desired.ScrapeInterval, desired.ScrapeTimeout); err != nil {
		return Result{}, errors.Trace(err)
	}
	return active(fmt.Sprintf("Ready at %s", desired.Channel)), nil
}

// PrometheusAvailable publishes the scrape target to a newly related
// monitoring service. The unit's status is left alone.
func (r *Reconciler) PrometheusAvailable(ctx *Context) (Result, error) {
	desired := ctx.Desired
	if err := r.publish(desired.ScrapePort, desired.ScrapeInterval, desired.ScrapeTimeout); err != nil {
		return Result{}, errors.Trace(err)
	}
	return Result{}, nil
}

func (r *Reconciler) publish(port *int, intervalMinutes, timeoutSeconds int) error {
	scrapePort := DefaultScrapePort
	if port != nil {
		scrapePort = *port
	}
	return r.config.Publisher.Publish(scrapePort, intervalMinutes, timeoutSeconds)
}

// set writes one snap setting.
func (r *Reconciler) set(key, value string) (*Result, error) {
	return r.apply("set "+key, func() (bool, error) {
		return r.config.Snap.Set(key, value)
	})
}

// apply runs a snap command. It returns a blocking result when the command
// fails, and an error when it could not be run at all.
func (r *Reconciler) apply(what string, run func() (bool, error)) (*Result, error) {
	ok, err := run()
	if err != nil {
		return nil, errors.Annotatef(err, "cannot %s", what)
	}
	if !ok {
		res := blocked("could not %s", what)
		return &res, nil
	}
	return nil, nil
}

func deref(res *Result) Result {
	if res == nil {
		return Result{}
	}
	return *res
}

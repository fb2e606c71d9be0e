// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
	"github.com/juju/lumberjack/v2"

	"github.com/canonical/prometheus-numa-exporter-operator/internal/charm"
	"github.com/canonical/prometheus-numa-exporter-operator/internal/hostconfig"
)

var logger = loggo.GetLogger("numaexporter.cmd")

const (
	// exitFatal is returned when the agent could not complete a pass.
	exitFatal = 1
	// exitUsage is returned when the agent has been run in an invalid way.
	exitUsage = 2
)

const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 2
)

const usage = `usage: numa-exporter-agent [flags] dispatch [hook]
       numa-exporter-agent [flags] watch

dispatch handles a single juju hook. The hook name defaults to the base
name of $JUJU_DISPATCH_PATH.
watch reconciles whenever the agent's configuration or nova.conf change.

flags:
`

// agentFlags holds the command line settings of the agent.
type agentFlags struct {
	snapName        string
	novaConf        string
	stateDir        string
	metricsTextfile string
	loggingConfig   string
	logFile         string

	// watch only.
	configFile    string
	targetsFile   string
	targetHost    string
	retryInterval time.Duration
}

func (f *agentFlags) setFlags(fs *gnuflag.FlagSet) {
	fs.StringVar(&f.snapName, "snap", charm.SnapName, "name of the exporter snap")
	fs.StringVar(&f.novaConf, "nova-conf", hostconfig.NovaConfPath, "nova configuration file")
	fs.StringVar(&f.stateDir, "state-dir", "/var/lib/numa-exporter-agent", "directory holding the agent's state")
	fs.StringVar(&f.metricsTextfile, "metrics-textfile", "", "write agent metrics to this file for the node exporter textfile collector")
	fs.StringVar(&f.loggingConfig, "logging-config", "<root>=INFO", "loggo logging configuration")
	fs.StringVar(&f.logFile, "log-file", "", "also write logs to this file, rotated when it grows large")
	fs.StringVar(&f.configFile, "config", "/etc/numa-exporter-agent/config.yaml", "configuration file (watch)")
	fs.StringVar(&f.targetsFile, "targets-file", "/etc/prometheus/file_sd/numa-exporter.yaml", "Prometheus file_sd file to write the scrape target to (watch)")
	fs.StringVar(&f.targetHost, "target-host", "", "host advertised in the scrape target, defaults to the host name (watch)")
	fs.DurationVar(&f.retryInterval, "retry-interval", 5*time.Minute, "interval at which deferred events are retried (watch)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Main(ctx, os.Args[1:], os.Getenv, os.Stderr)
	stop()
	os.Exit(code)
}

// Main runs the agent with the given arguments and returns its exit code.
func Main(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) int {
	var flags agentFlags
	fs := gnuflag.NewFlagSet("numa-exporter-agent", gnuflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	flags.setFlags(fs)
	if err := fs.Parse(false, args); err != nil {
		return exitUsage
	}
	if err := loggo.ConfigureLoggers(flags.loggingConfig); err != nil {
		fmt.Fprintf(stderr, "invalid --logging-config: %v\n", err)
		return exitUsage
	}

	if flags.logFile != "" {
		writer := &lumberjack.Logger{
			Filename:   flags.logFile,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileMaxBackups,
			Compress:   true,
		}
		defer func() { _ = writer.Close() }()
		if err := loggo.RegisterWriter("file", loggo.NewSimpleWriter(writer, loggo.DefaultFormatter)); err != nil {
			fmt.Fprintf(stderr, "cannot log to %s: %v\n", flags.logFile, err)
			return exitFatal
		}
		defer func() { _, _ = loggo.RemoveWriter("file") }()
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitUsage
	}

	var err error
	switch rest[0] {
	case "dispatch":
		if len(rest) > 2 {
			fs.Usage()
			return exitUsage
		}
		hook := hookName(rest[1:], getenv)
		if hook == "" {
			fmt.Fprintln(stderr, "no hook given and JUJU_DISPATCH_PATH not set")
			return exitUsage
		}
		err = runDispatch(ctx, flags, hook, getenv)
	case "watch":
		if len(rest) > 1 {
			fs.Usage()
			return exitUsage
		}
		err = runWatch(ctx, flags)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		fs.Usage()
		return exitUsage
	}
	if err != nil {
		logger.Errorf("%v", err)
		fmt.Fprintf(stderr, "ERROR %v\n", err)
		return exitFatal
	}
	return 0
}

func requireEnv(getenv func(string) string, name string) (string, error) {
	value := getenv(name)
	if value == "" {
		return "", errors.Errorf("%s not set", name)
	}
	return value, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Annotatef(err, "creating %s", dir)
	}
	return nil
}

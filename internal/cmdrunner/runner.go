// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cmdrunner runs external commands on behalf of the agent. A command
// that runs and exits non-zero is a policy failure reported through the
// return value; a command that cannot be started at all is an error.
package cmdrunner

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4/exec"
	"github.com/kballard/go-shellquote"
)

var logger = loggo.GetLogger("numaexporter.cmdrunner")

const (
	// exitCannotExecute and exitNotFound are the shell's exit codes for a
	// command that exists but cannot be run, and one that does not exist.
	exitCannotExecute = 126
	exitNotFound      = 127
)

// Executor runs a shell command line and reports its exit code and output.
type Executor interface {
	RunCommands(run exec.RunParams) (*exec.ExecResponse, error)
}

// Observer is notified of every command that ran to completion.
type Observer interface {
	CommandRun(name string, ok bool)
}

type defaultExecutor struct{}

// RunCommands is part of the Executor interface.
func (defaultExecutor) RunCommands(run exec.RunParams) (*exec.ExecResponse, error) {
	return exec.RunCommands(run)
}

// CommandError is returned by Output when a command exits non-zero.
type CommandError struct {
	Args   []string
	Code   int
	Stderr string
}

// Error is part of the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q returned code %d", shellquote.Join(e.Args...), e.Code)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// IsCommandError reports whether err is, or wraps, a *CommandError.
func IsCommandError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}

// Runner executes argument vectors synchronously.
type Runner struct {
	executor Executor
	observer Observer
}

// NewRunner returns a Runner that executes commands on the local host.
func NewRunner() *Runner {
	return NewRunnerWithExecutor(defaultExecutor{})
}

// NewRunnerWithExecutor returns a Runner backed by the given executor.
func NewRunnerWithExecutor(executor Executor) *Runner {
	return &Runner{executor: executor}
}

// SetObserver registers an observer for completed commands.
func (r *Runner) SetObserver(observer Observer) {
	r.observer = observer
}

// Run executes the command described by args. It returns true iff the
// command exited with code zero; the output of a failed command is logged.
// An error is only returned when the command could not be launched.
func (r *Runner) Run(args ...string) (bool, error) {
	line := shellquote.Join(args...)
	logger.Infof("Running command: %s", line)
	resp, err := r.execute(args)
	if err != nil {
		return false, errors.Trace(err)
	}
	ok := resp.Code == 0
	if !ok {
		logger.Errorf("Command %s returned code %d, stdout: %q, stderr: %q",
			line, resp.Code, string(resp.Stdout), string(resp.Stderr))
	}
	r.notify(args, ok)
	return ok, nil
}

// Output executes the command described by args and returns its standard
// output. A non-zero exit is reported as a *CommandError.
func (r *Runner) Output(args ...string) ([]byte, error) {
	logger.Debugf("running command: %s", shellquote.Join(args...))
	resp, err := r.execute(args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r.notify(args, resp.Code == 0)
	if resp.Code != 0 {
		return resp.Stdout, &CommandError{
			Args:   args,
			Code:   resp.Code,
			Stderr: string(resp.Stderr),
		}
	}
	return resp.Stdout, nil
}

func (r *Runner) execute(args []string) (*exec.ExecResponse, error) {
	if len(args) == 0 {
		return nil, errors.NotValidf("empty command")
	}
	resp, err := r.executor.RunCommands(exec.RunParams{
		Commands: shellquote.Join(args...),
	})
	if err != nil {
		return nil, errors.Annotatef(err, "launching %q", args[0])
	}
	switch resp.Code {
	case exitNotFound:
		return nil, errors.NotFoundf("executable %q", args[0])
	case exitCannotExecute:
		return nil, errors.Errorf("cannot execute %q: %s", args[0], strings.TrimSpace(string(resp.Stderr)))
	}
	return resp, nil
}

func (r *Runner) notify(args []string, ok bool) {
	if r.observer == nil {
		return
	}
	name := args[0]
	if len(args) > 1 && !strings.HasPrefix(args[1], "-") {
		name += " " + args[1]
	}
	r.observer.CommandRun(name, ok)
}

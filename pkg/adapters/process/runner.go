// Package process turns local processes into external fences.
//
// A started command is exposed as a domain.Fence that signals when the process
// exits: success for exit status 0, error otherwise. Only allow-listed
// commands run; arguments from callers are passed as SYNX_ARG_* environment
// variables, never as flags.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/aretw0/synx/internal/logging"
	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/fence"
)

// ErrNotRegistered is returned for commands missing from the allow-list.
var ErrNotRegistered = fmt.Errorf("command not registered: %w", domain.ErrNoEnt)

// Runner starts allow-listed commands.
type Runner struct {
	registry map[string]CommandConfig
	baseDir  string
	logger   *slog.Logger
	seq      atomic.Uint64
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(cmds map[string]CommandConfig) RunnerOption {
	return func(r *Runner) {
		for name, c := range cmds {
			c.Name = name
			r.registry[name] = c
		}
	}
}

// WithBaseDir sets the working directory for started processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]CommandConfig),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name, command string, args ...string) {
	r.registry[name] = CommandConfig{Name: name, Command: command, Args: args}
}

// Commands lists the registered names in order.
func (r *Runner) Commands() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Job is a running command and the fence it signals on exit.
type Job struct {
	*fence.Fence
	cmd *exec.Cmd
}

// Pid returns the process ID.
func (j *Job) Pid() int {
	return j.cmd.Process.Pid
}

// Start launches the named command. Cancelling ctx kills the process, which
// then signals the fence with an error status.
func (r *Runner) Start(ctx context.Context, name string, args map[string]string) (*Job, error) {
	c, ok := r.registry[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotRegistered)
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = r.baseDir
	env := cmd.Environ()
	for k, v := range c.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, fmt.Sprintf("SYNX_ARG_%s=%s", strings.ToUpper(k), v))
	}
	cmd.Env = env

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	id := fmt.Sprintf("process:%s:%d:%d", name, cmd.Process.Pid, r.seq.Add(1))
	job := &Job{Fence: fence.New(id), cmd: cmd}
	r.logger.Debug("process started", "name", name, "pid", cmd.Process.Pid, "fence", id)

	go func() {
		err := cmd.Wait()
		status := domain.StatusSuccess
		if err != nil {
			status = domain.StatusError
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				r.logger.Debug("process failed", "name", name, "exit_code", exitErr.ExitCode())
			} else {
				r.logger.Warn("process wait failed", "name", name, "error", err)
			}
		}
		if serr := job.Signal(status); serr != nil {
			r.logger.Warn("process fence signal", "fence", id, "error", serr)
		}
	}()
	return job, nil
}

// Package shell runs external commands with captured output and
// context-based cancellation.
package shell

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/util"
	"github.com/stratum-ci/stratum/pkg/log"
)

// SignalForwardingDelay is how long a cancelled subprocess gets to exit
// gracefully after SIGINT before it is killed.
const SignalForwardingDelay = 15 * time.Second

// RunOptions configures subprocess execution.
type RunOptions struct {
	// Env is merged over the parent process environment.
	Env map[string]string

	// WorkingDir is the directory the command runs in.
	WorkingDir string

	// Stdout and Stderr receive the live command output in addition to the
	// captured buffers. Nil writers discard the stream.
	Stdout io.Writer
	Stderr io.Writer
}

// RunCommand runs the command and discards the captured output.
func RunCommand(ctx context.Context, l log.Logger, opts *RunOptions, command string, args ...string) error {
	_, err := RunCommandWithOutput(ctx, l, opts, command, args...)

	return err
}

// RunCommandWithOutput runs the command, streaming output to the configured
// writers while also capturing it for the caller. A non-zero exit is returned
// as a ProcessExecutionError carrying the captured stderr.
func RunCommandWithOutput(ctx context.Context, l log.Logger, opts *RunOptions, command string, args ...string) (*util.CmdOutput, error) {
	l.Debugf("Running command: %s %s", command, strings.Join(args, " "))

	output := &util.CmdOutput{}

	cmdStdout := io.Writer(&output.Stdout)
	if opts.Stdout != nil {
		cmdStdout = io.MultiWriter(opts.Stdout, &output.Stdout)
	}

	cmdStderr := io.Writer(&output.Stderr)
	if opts.Stderr != nil {
		cmdStderr = io.MultiWriter(opts.Stderr, &output.Stderr)
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = opts.WorkingDir
	cmd.Stdout = cmdStdout
	cmd.Stderr = cmdStderr
	cmd.Env = mergedEnv(opts.Env)

	// Give the subprocess a chance to release its locks and write partial
	// state before the hard kill.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = SignalForwardingDelay

	if err := cmd.Run(); err != nil {
		return output, errors.WithStackTrace(util.ProcessExecutionError{
			Err:        err,
			Command:    command,
			Args:       args,
			WorkingDir: opts.WorkingDir,
			Output:     *output,
		})
	}

	return output, nil
}

// mergedEnv overlays extra variables on the parent environment, keeping the
// result sorted for reproducible command invocations.
func mergedEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return os.Environ()
	}

	merged := map[string]string{}

	for _, entry := range os.Environ() {
		if name, value, ok := strings.Cut(entry, "="); ok {
			merged[name] = value
		}
	}

	for name, value := range extra {
		merged[name] = value
	}

	env := make([]string, 0, len(merged))
	for name, value := range merged {
		env = append(env, name+"="+value)
	}

	sort.Strings(env)

	return env
}

// Package util holds small helpers shared across packages: subprocess output
// capture, exit-code extraction, and file checks.
package util

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/stratum-ci/stratum/internal/errors"
)

// CmdOutput captures the stdout and stderr of a finished subprocess.
type CmdOutput struct {
	Stdout bytes.Buffer
	Stderr bytes.Buffer
}

// ExitStatuser is implemented by errors that know the process exit code they
// stand for.
type ExitStatuser interface {
	ExitStatus() (int, error)
}

// GetExitCode returns the exit code carried by err. It understands
// ExitStatuser implementations, exec.ExitError, and MultiError aggregates.
// If no exit code can be determined, the original error is returned.
func GetExitCode(err error) (int, error) {
	var exitStatus ExitStatuser
	if errors.As(err, &exitStatus) {
		return exitStatus.ExitStatus()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	var multiErr *errors.MultiError
	if errors.As(err, &multiErr) {
		for _, wrapped := range multiErr.WrappedErrors() {
			if code, codeErr := GetExitCode(wrapped); codeErr == nil {
				return code, nil
			}
		}
	}

	return 0, err
}

// ProcessExecutionError is returned when a subprocess fails. It keeps the
// captured output so callers can act on the underlying tool's error text.
type ProcessExecutionError struct {
	Err        error
	Command    string
	Args       []string
	WorkingDir string
	Output     CmdOutput
}

func (err ProcessExecutionError) Error() string {
	stderr := strings.TrimSpace(err.Output.Stderr.String())
	if stderr == "" {
		return fmt.Sprintf("failed to execute %q in %s: %v",
			err.Command+" "+strings.Join(err.Args, " "), err.WorkingDir, err.Err)
	}

	return fmt.Sprintf("failed to execute %q in %s\n%s\n%v",
		err.Command+" "+strings.Join(err.Args, " "), err.WorkingDir, stderr, err.Err)
}

func (err ProcessExecutionError) ExitStatus() (int, error) {
	return GetExitCode(err.Err)
}

func (err ProcessExecutionError) Unwrap() error {
	return err.Err
}

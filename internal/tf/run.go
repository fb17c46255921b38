package tf

import (
	"context"
	"io"
	"regexp"
	"slices"

	"github.com/hashicorp/go-version"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/shell"
	"github.com/stratum-ci/stratum/internal/util"
	"github.com/stratum-ci/stratum/pkg/log"
)

// RunOptions configures terraform invocations for one working directory.
type RunOptions struct {
	Env        map[string]string
	TFPath     string
	WorkingDir string
	Stdout     io.Writer
	Stderr     io.Writer
}

// RunCommand runs terraform and discards the captured output.
func RunCommand(ctx context.Context, l log.Logger, opts *RunOptions, args ...string) error {
	_, err := RunCommandWithOutput(ctx, l, opts, args...)

	return err
}

// RunCommandWithOutput runs terraform with the given arguments.
//
// When the arguments carry -detailed-exitcode, exit code 2 ("changes
// pending") is success, and whatever code the run produced is merged into the
// DetailedExitCode recorder on the context so the process can surface it.
// Failures come back classified by their stderr.
func RunCommandWithOutput(ctx context.Context, l log.Logger, opts *RunOptions, args ...string) (*util.CmdOutput, error) {
	shellOpts := &shell.RunOptions{
		Env:        opts.Env,
		WorkingDir: opts.WorkingDir,
		Stdout:     opts.Stdout,
		Stderr:     opts.Stderr,
	}

	output, err := shell.RunCommandWithOutput(ctx, l, shellOpts, opts.TFPath, args...)

	if slices.Contains(args, FlagNameDetailedExitCode) {
		code := ExitCodeNoChanges

		if err != nil {
			code, _ = util.GetExitCode(err)
		}

		if coder := DetailedExitCodeFromContext(ctx); coder != nil {
			coder.Merge(code)
		}

		if code == ExitCodeChanges {
			return output, nil
		}
	}

	return output, ClassifyError(err)
}

// versionRe matches both `Terraform v1.6.2` and `OpenTofu v1.7.0`.
var versionRe = regexp.MustCompile(`(?:Terraform|OpenTofu) v(\d+(?:\.\d+)*)`)

// Version runs `terraform version` and parses the tool version out of it.
func Version(ctx context.Context, l log.Logger, opts *RunOptions) (*version.Version, error) {
	// Version output goes to the caller's buffers only, not the terminal.
	versionOpts := &RunOptions{
		Env:        opts.Env,
		TFPath:     opts.TFPath,
		WorkingDir: opts.WorkingDir,
	}

	output, err := RunCommandWithOutput(ctx, l, versionOpts, CommandNameVersion)
	if err != nil {
		return nil, err
	}

	return ParseVersion(output.Stdout.String())
}

// ParseVersion extracts the semantic version from `terraform version` output.
func ParseVersion(output string) (*version.Version, error) {
	matches := versionRe.FindStringSubmatch(output)
	if len(matches) < 2 {
		return nil, errors.Errorf("could not parse tool version from output: %q", output)
	}

	v, err := version.NewVersion(matches[1])
	if err != nil {
		return nil, errors.WithStackTrace(err)
	}

	return v, nil
}

// CheckVersionConstraint verifies the tool version against a constraint
// string such as ">= 1.5.0". An empty constraint always passes.
func CheckVersionConstraint(v *version.Version, constraint string) error {
	if constraint == "" {
		return nil
	}

	constraints, err := version.NewConstraint(constraint)
	if err != nil {
		return errors.WithStackTraceAndPrefix(err, "invalid required_version constraint %q", constraint)
	}

	if !constraints.Check(v) {
		return errors.Errorf("tool version %s does not satisfy the required constraint %q", v, constraint)
	}

	return nil
}

// Package options holds the resolved invocation state shared by every
// command: flags, environment bindings, IO streams and the logger.
package options

import (
	"io"
	"os"
	"runtime"

	"github.com/stratum-ci/stratum/pkg/log"
)

const (
	// DefaultConfigPath is the deployment configuration file looked up
	// relative to the working directory.
	DefaultConfigPath = "stratum.hcl"

	// DefaultTFPath takes terraform from PATH.
	DefaultTFPath = "terraform"

	// DefaultBaseRef is diffed against when no base is given.
	DefaultBaseRef = "origin/main"

	// DefaultHeadRef is the working tree revision.
	DefaultHeadRef = "HEAD"
)

// DefaultParallelism bounds concurrent terraform processes by default.
var DefaultParallelism = runtime.NumCPU()

// StratumOptions carries everything one invocation needs. Commands copy the
// fields they care about instead of reaching back into the CLI context.
type StratumOptions struct {
	// WorkingDir is the repository root all relative paths resolve against.
	WorkingDir string

	// ConfigPath locates the deployment configuration file.
	ConfigPath string

	// TFPath is the terraform binary to invoke.
	TFPath string

	// Environment is a declared environment name or the "all" selector.
	Environment string

	// Layer is a declared layer name or the "all" selector.
	Layer string

	// BaseRef and HeadRef bound the git diff used for change detection.
	BaseRef string
	HeadRef string

	// Parallelism bounds concurrent terraform processes.
	Parallelism int

	// AutoApprove skips the interactive approval prompt on apply.
	AutoApprove bool

	// SkipPlan applies directly without the preceding informational plan.
	SkipPlan bool

	// SkipChangeDetection runs every layer instead of only changed ones.
	SkipChangeDetection bool

	// Reason is the operator-supplied justification for a destroy.
	Reason string

	// Confirmation is the typed destroy confirmation literal.
	Confirmation string

	// FailFast stops scheduling new work after the first failure.
	FailFast bool

	// ReportPath, when set, receives the JSON run report.
	ReportPath string

	// NoColor disables ANSI escapes in all output.
	NoColor bool

	// Env is the extra environment passed to terraform processes.
	Env map[string]string

	Logger    log.Logger
	Writer    io.Writer
	ErrWriter io.Writer
}

// NewStratumOptions returns options with every default applied.
func NewStratumOptions() *StratumOptions {
	return &StratumOptions{
		WorkingDir:  ".",
		ConfigPath:  DefaultConfigPath,
		TFPath:      DefaultTFPath,
		BaseRef:     DefaultBaseRef,
		HeadRef:     DefaultHeadRef,
		Parallelism: DefaultParallelism,
		Env:         map[string]string{},
		Logger:      log.New(),
		Writer:      os.Stdout,
		ErrWriter:   os.Stderr,
	}
}

// Clone returns a copy safe to mutate per work item.
func (opts *StratumOptions) Clone() *StratumOptions {
	clone := *opts

	clone.Env = make(map[string]string, len(opts.Env))
	for key, value := range opts.Env {
		clone.Env[key] = value
	}

	return &clone
}

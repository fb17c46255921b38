// Package cli defines the stratum command line interface.
package cli

import (
	"context"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/stratum-ci/stratum/internal/changeset"
	"github.com/stratum-ci/stratum/internal/config"
	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/matrix"
	"github.com/stratum-ci/stratum/options"
	"github.com/stratum-ci/stratum/pkg/log"
)

const (
	// AppName is the binary name shown in help output.
	AppName = "stratum"

	FlagNameWorkingDir  = "working-dir"
	FlagNameConfig      = "config"
	FlagNameTFPath      = "terraform-path"
	FlagNameLogLevel    = "log-level"
	FlagNameNoColor     = "no-color"
	FlagNameParallelism = "parallelism"

	FlagNameBase                = "base"
	FlagNameHead                = "head"
	FlagNameEnvironment         = "environment"
	FlagNameLayer               = "layer"
	FlagNameSkipChangeDetection = "skip-change-detection"
	FlagNameReport              = "report"
	FlagNameFailFast            = "fail-fast"
	FlagNameAutoApprove         = "auto-approve"
	FlagNameSkipPlan            = "skip-plan"
	FlagNameReason              = "reason"
	FlagNameConfirm             = "confirm"
)

// NewApp builds the CLI application around the given options. Flag values
// land directly in opts through destinations.
func NewApp(opts *options.StratumOptions, version string) *cli.App {
	app := cli.NewApp()
	app.Name = AppName
	app.Usage = "Layered Terraform deployments for Azure"
	app.Version = version
	app.Writer = opts.Writer
	app.ErrWriter = opts.ErrWriter

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        FlagNameWorkingDir,
			Usage:       "Repository root all relative paths resolve against",
			Value:       opts.WorkingDir,
			Destination: &opts.WorkingDir,
			EnvVars:     []string{"STRATUM_WORKING_DIR"},
		},
		&cli.StringFlag{
			Name:        FlagNameConfig,
			Usage:       "Path to the deployment configuration file",
			Value:       opts.ConfigPath,
			Destination: &opts.ConfigPath,
			EnvVars:     []string{"STRATUM_CONFIG"},
		},
		&cli.StringFlag{
			Name:        FlagNameTFPath,
			Usage:       "Terraform binary to invoke",
			Value:       opts.TFPath,
			Destination: &opts.TFPath,
			EnvVars:     []string{"STRATUM_TF_PATH"},
		},
		&cli.StringFlag{
			Name:    FlagNameLogLevel,
			Usage:   "Log level: trace, debug, info, warn, error",
			Value:   "info",
			EnvVars: []string{"STRATUM_LOG_LEVEL"},
		},
		&cli.BoolFlag{
			Name:        FlagNameNoColor,
			Usage:       "Disable colored output",
			Destination: &opts.NoColor,
			EnvVars:     []string{"STRATUM_NO_COLOR", "NO_COLOR"},
		},
		&cli.IntFlag{
			Name:        FlagNameParallelism,
			Usage:       "Maximum concurrent terraform processes",
			Value:       opts.Parallelism,
			Destination: &opts.Parallelism,
			EnvVars:     []string{"STRATUM_PARALLELISM"},
		},
	}

	app.Before = func(cliCtx *cli.Context) error {
		if err := opts.Logger.SetLevel(cliCtx.String(FlagNameLogLevel)); err != nil {
			return err
		}

		workingDir, err := filepath.Abs(opts.WorkingDir)
		if err != nil {
			return errors.WithStackTrace(err)
		}

		opts.WorkingDir = workingDir

		return nil
	}

	app.Commands = []*cli.Command{
		newChangesCommand(opts),
		newMatrixCommand(opts),
		newRunCommand(opts, matrix.OperationPlan),
		newRunCommand(opts, matrix.OperationApply),
		newRunCommand(opts, matrix.OperationDestroy),
		newValidateCommand(opts),
		newGraphCommand(opts),
	}

	return app
}

// loadConfig reads the deployment configuration relative to the working dir.
func loadConfig(opts *options.StratumOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(opts.WorkingDir, path)
	}

	return config.Load(path)
}

// resolveChanges diffs the configured revisions and attributes the result.
func resolveChanges(ctx context.Context, l log.Logger, opts *options.StratumOptions, cfg *config.Config) (*changeset.ChangeSet, error) {
	git, err := changeset.NewGitRunner(opts.WorkingDir)
	if err != nil {
		return nil, err
	}

	resolver := changeset.NewResolver(git, cfg.Graph, cfg.Changes)

	return resolver.Resolve(ctx, l, opts.BaseRef, opts.HeadRef)
}

func baseFlag(opts *options.StratumOptions) cli.Flag {
	return &cli.StringFlag{
		Name:        FlagNameBase,
		Usage:       "Base git revision for change detection",
		Value:       opts.BaseRef,
		Destination: &opts.BaseRef,
		EnvVars:     []string{"STRATUM_BASE_REF"},
	}
}

func headFlag(opts *options.StratumOptions) cli.Flag {
	return &cli.StringFlag{
		Name:        FlagNameHead,
		Usage:       "Head git revision for change detection",
		Value:       opts.HeadRef,
		Destination: &opts.HeadRef,
		EnvVars:     []string{"STRATUM_HEAD_REF"},
	}
}

func environmentFlag(opts *options.StratumOptions) cli.Flag {
	return &cli.StringFlag{
		Name:        FlagNameEnvironment,
		Aliases:     []string{"e"},
		Usage:       "Target environment, or \"all\"",
		Value:       matrix.SelectorAll,
		Destination: &opts.Environment,
		EnvVars:     []string{"STRATUM_ENVIRONMENT"},
	}
}

func layerFlag(opts *options.StratumOptions) cli.Flag {
	return &cli.StringFlag{
		Name:        FlagNameLayer,
		Aliases:     []string{"l"},
		Usage:       "Target layer, or \"all\"",
		Value:       matrix.SelectorAll,
		Destination: &opts.Layer,
		EnvVars:     []string{"STRATUM_LAYER"},
	}
}

func skipChangeDetectionFlag(opts *options.StratumOptions) cli.Flag {
	return &cli.BoolFlag{
		Name:        FlagNameSkipChangeDetection,
		Usage:       "Run every layer instead of only changed ones",
		Destination: &opts.SkipChangeDetection,
		EnvVars:     []string{"STRATUM_SKIP_CHANGE_DETECTION"},
	}
}

package cli

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/stratum-ci/stratum/internal/changeset"
	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/matrix"
	"github.com/stratum-ci/stratum/internal/runner"
	"github.com/stratum-ci/stratum/options"
)

var runUsage = map[matrix.Operation]string{
	matrix.OperationPlan:    "Plan changed layers in dependency order",
	matrix.OperationApply:   "Apply changed layers in dependency order",
	matrix.OperationDestroy: "Destroy layers in reverse dependency order",
}

func newRunCommand(opts *options.StratumOptions, op matrix.Operation) *cli.Command {
	flags := []cli.Flag{
		baseFlag(opts),
		headFlag(opts),
		environmentFlag(opts),
		layerFlag(opts),
		skipChangeDetectionFlag(opts),
		&cli.BoolFlag{
			Name:        FlagNameFailFast,
			Usage:       "Stop scheduling new layers after the first failure",
			Destination: &opts.FailFast,
			EnvVars:     []string{"STRATUM_FAIL_FAST"},
		},
		&cli.StringFlag{
			Name:        FlagNameReport,
			Usage:       "Write the JSON run report to this file",
			Destination: &opts.ReportPath,
			EnvVars:     []string{"STRATUM_REPORT"},
		},
	}

	switch op {
	case matrix.OperationApply:
		flags = append(flags, &cli.BoolFlag{
			Name:        FlagNameAutoApprove,
			Usage:       "Skip the interactive approval prompt",
			Destination: &opts.AutoApprove,
			EnvVars:     []string{"STRATUM_AUTO_APPROVE"},
		}, &cli.BoolFlag{
			Name:        FlagNameSkipPlan,
			Usage:       "Apply directly without the preceding plan",
			Destination: &opts.SkipPlan,
			EnvVars:     []string{"STRATUM_SKIP_PLAN"},
		})
	case matrix.OperationDestroy:
		flags = append(flags, &cli.StringFlag{
			Name:        FlagNameReason,
			Usage:       "Why this destroy is happening (required)",
			Destination: &opts.Reason,
			EnvVars:     []string{"STRATUM_DESTROY_REASON"},
		}, &cli.StringFlag{
			Name:        FlagNameConfirm,
			Usage:       "Confirmation literal, must be destroy-<environment>",
			Destination: &opts.Confirmation,
			EnvVars:     []string{"STRATUM_DESTROY_CONFIRM"},
		})
	}

	return &cli.Command{
		Name:  string(op),
		Usage: runUsage[op],
		Flags: flags,
		Action: func(cliCtx *cli.Context) error {
			return runAction(cliCtx, opts, op)
		},
	}
}

func runAction(cliCtx *cli.Context, opts *options.StratumOptions, op matrix.Operation) error {
	l := opts.Logger

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if op == matrix.OperationDestroy {
		if opts.Environment == matrix.SelectorAll {
			return errors.New("destroy requires a specific environment, not \"all\"")
		}

		if err := matrix.CheckDestroyConfirmed(opts.Environment, opts.Reason, opts.Confirmation); err != nil {
			return err
		}

		l.Warnf("Destroying environment %s: %s", opts.Environment, opts.Reason)
	}

	var cs *changeset.ChangeSet

	// Destroys tear down everything selected; change detection only narrows
	// plans and applies.
	if op != matrix.OperationDestroy && !opts.SkipChangeDetection && opts.Layer == matrix.SelectorAll {
		if cs, err = resolveChanges(cliCtx.Context, l, opts, cfg); err != nil {
			return err
		}
	}

	items, err := matrix.NewBuilder(cfg).Build(matrix.Request{
		Changes:     cs,
		Environment: opts.Environment,
		Layer:       opts.Layer,
		Operation:   op,
	})
	if err != nil {
		return err
	}

	if len(items) == 0 {
		l.Infof("No layers to %s", op)
		return nil
	}

	l.Infof("Running %s for %d work items", op, len(items))

	r := runner.New(cfg, opts)
	runErr := r.Run(cliCtx.Context, items)

	if err := r.Report().WriteSummary(opts.ErrWriter); err != nil {
		l.Warnf("Could not write run summary: %v", err)
	}

	if opts.ReportPath != "" {
		if err := writeReportFile(r, opts.ReportPath); err != nil {
			l.Warnf("Could not write run report to %s: %v", opts.ReportPath, err)
		}
	}

	return runErr
}

func writeReportFile(r *runner.Runner, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.WithStackTrace(err)
	}
	defer file.Close()

	return r.Report().WriteJSON(file)
}

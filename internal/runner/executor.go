package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/stratum-ci/stratum/internal/backend"
	"github.com/stratum-ci/stratum/internal/config"
	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/locks"
	"github.com/stratum-ci/stratum/internal/matrix"
	"github.com/stratum-ci/stratum/internal/report"
	"github.com/stratum-ci/stratum/internal/telemetry"
	"github.com/stratum-ci/stratum/internal/tf"
	"github.com/stratum-ci/stratum/internal/util"
	"github.com/stratum-ci/stratum/options"
	"github.com/stratum-ci/stratum/pkg/log"
)

// Executor runs single work items: lock the layer directory, pin the backend,
// init, then run the operation.
type Executor struct {
	cfg    *config.Config
	opts   *options.StratumOptions
	report *report.Report
}

// NewExecutor wires an executor to its configuration and report.
func NewExecutor(cfg *config.Config, opts *options.StratumOptions, rep *report.Report) *Executor {
	return &Executor{
		cfg:    cfg,
		opts:   opts,
		report: rep,
	}
}

// Execute runs one work item and records its outcome in the report.
func (e *Executor) Execute(ctx context.Context, item matrix.WorkItem) error {
	l := e.opts.Logger.WithFields(log.Fields{
		"layer":       item.Layer,
		"environment": item.Environment,
	})

	return telemetry.TelemeterFromContext(ctx).Collect(ctx, "run_"+string(item.Operation), map[string]any{
		"layer":       item.Layer,
		"environment": item.Environment,
	}, func(childCtx context.Context) error {
		if err := e.report.StartRun(item); err != nil {
			return err
		}

		changed, err := e.execute(childCtx, l, item)
		if err != nil {
			var classified *tf.ClassifiedError
			if errors.As(err, &classified) && classified.Kind == tf.ErrorKindDrift {
				return e.endDrifted(ctx, l, item, classified)
			}

			endErr := e.report.EndRun(item,
				report.WithResult(report.ResultFailed),
				report.WithReason(report.ReasonRunError),
				report.WithError(err),
			)
			if endErr != nil {
				l.Warnf("Could not record failure for %s: %v", item, endErr)
			}

			return err
		}

		result := report.ResultSucceeded
		if changed {
			result = report.ResultChangesPending
		}

		return e.report.EndRun(item, report.WithResult(result))
	})
}

// endDrifted records a drifted run without failing it. Drift means the live
// environment moved away from the saved plan, so the remedy is a fresh plan,
// not a broken layer; dependents keep running and the run-wide exit code is
// raised to "changes pending" so CI knows a re-plan is due.
func (e *Executor) endDrifted(ctx context.Context, l log.Logger, item matrix.WorkItem, classified *tf.ClassifiedError) error {
	l.Warnf("Drift detected for %s: %s", item, classified.Remedy)

	if coder := tf.DetailedExitCodeFromContext(ctx); coder != nil {
		coder.Merge(tf.ExitCodeChanges)
	}

	return e.report.EndRun(item,
		report.WithResult(report.ResultDrift),
		report.WithReason(report.ReasonDriftDetected),
		report.WithError(classified),
	)
}

// execute reports whether a plan found pending changes.
func (e *Executor) execute(ctx context.Context, l log.Logger, item matrix.WorkItem) (bool, error) {
	lyr, err := e.cfg.Graph.Layer(item.Layer)
	if err != nil {
		return false, err
	}

	workingDir := filepath.Join(e.opts.WorkingDir, lyr.Path)

	if !util.DirExists(workingDir) {
		return false, errors.Errorf("layer directory %s for layer %q does not exist", workingDir, item.Layer)
	}

	varFile, err := filepath.Abs(filepath.Join(e.opts.WorkingDir, backend.VarFile(item.Environment, item.Layer)))
	if err != nil {
		return false, errors.WithStackTrace(err)
	}

	if !util.FileExists(varFile) {
		return false, errors.Errorf("missing var file %s for layer %q in environment %q", varFile, item.Layer, item.Environment)
	}

	runLock, err := locks.Acquire(ctx, l, workingDir)
	if err != nil {
		return false, err
	}
	defer runLock.Release(l)

	runOpts := &tf.RunOptions{
		Env:        e.opts.Env,
		TFPath:     e.opts.TFPath,
		WorkingDir: workingDir,
		Stdout:     e.opts.Writer,
		Stderr:     e.opts.ErrWriter,
	}

	settings := backend.Resolve(e.cfg.Backend, item.Layer, item.Environment)

	if err := e.init(ctx, l, runOpts, settings); err != nil {
		return false, err
	}

	switch item.Operation {
	case matrix.OperationPlan:
		return e.plan(ctx, l, runOpts, varFile)
	case matrix.OperationApply:
		return false, e.apply(ctx, l, runOpts, varFile)
	case matrix.OperationDestroy:
		return false, e.destroy(ctx, l, runOpts, varFile)
	default:
		return false, errors.Errorf("unknown operation %q", item.Operation)
	}
}

func (e *Executor) init(ctx context.Context, l log.Logger, runOpts *tf.RunOptions, settings *backend.Settings) error {
	args := []string{tf.CommandNameInit, tf.FlagNameInput, tf.FlagNameReconfigure}
	args = append(args, settings.InitArgs()...)
	args = e.appendCommonFlags(args)

	l.Debugf("Initializing %s against container %s key %s", runOpts.WorkingDir, settings.ContainerName, settings.Key)

	return tf.RunCommand(ctx, l, runOpts, args...)
}

func (e *Executor) plan(ctx context.Context, l log.Logger, runOpts *tf.RunOptions, varFile string) (bool, error) {
	// The item gets its own recorder so the result can be attributed to it;
	// the run-wide recorder still sees every code.
	itemCoder := new(tf.DetailedExitCode)
	itemCtx := tf.ContextWithDetailedExitCode(ctx, itemCoder)

	args := []string{tf.CommandNamePlan, tf.FlagNameInput, tf.FlagNameDetailedExitCode, varFileArg(varFile)}
	args = e.appendCommonFlags(args)

	err := tf.RunCommand(itemCtx, l, runOpts, args...)

	code := itemCoder.Get()
	if runCoder := tf.DetailedExitCodeFromContext(ctx); runCoder != nil {
		runCoder.Merge(code)
	}

	return code == tf.ExitCodeChanges, err
}

func (e *Executor) apply(ctx context.Context, l log.Logger, runOpts *tf.RunOptions, varFile string) error {
	// The preceding plan shows the diff in the run output; it does not gate
	// the apply beyond failing the work item when it errors.
	if !e.opts.SkipPlan {
		planArgs := e.appendCommonFlags([]string{tf.CommandNamePlan, tf.FlagNameInput, varFileArg(varFile)})
		if err := tf.RunCommand(ctx, l, runOpts, planArgs...); err != nil {
			return err
		}
	}

	args := []string{tf.CommandNameApply, tf.FlagNameInput, varFileArg(varFile)}

	if e.opts.AutoApprove {
		args = append(args, tf.FlagNameAutoApprove)
	}

	args = e.appendCommonFlags(args)

	return tf.RunCommand(ctx, l, runOpts, args...)
}

func (e *Executor) destroy(ctx context.Context, l log.Logger, runOpts *tf.RunOptions, varFile string) error {
	// Destroys only reach this point confirmed, so auto-approve is implied;
	// an interactive prompt inside CI would hang the run.
	args := []string{tf.CommandNameDestroy, tf.FlagNameInput, tf.FlagNameAutoApprove, varFileArg(varFile)}
	args = e.appendCommonFlags(args)

	return tf.RunCommand(ctx, l, runOpts, args...)
}

func (e *Executor) appendCommonFlags(args []string) []string {
	if e.opts.NoColor {
		args = append(args, tf.FlagNameNoColor)
	}

	return args
}

func varFileArg(varFile string) string {
	return fmt.Sprintf(tf.FlagNameVarFileFmt, varFile)
}

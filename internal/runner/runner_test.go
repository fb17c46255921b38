//go:build !windows

package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-ci/stratum/internal/config"
	"github.com/stratum-ci/stratum/internal/matrix"
	"github.com/stratum-ci/stratum/internal/report"
	"github.com/stratum-ci/stratum/internal/runner"
	"github.com/stratum-ci/stratum/internal/tf"
	"github.com/stratum-ci/stratum/options"
	"github.com/stratum-ci/stratum/pkg/log"
)

const runnerTestConfig = `
backend {
  storage_account_name = "stratumstate"
  resource_group_name  = "stratum-state-rg"
}

environment "dev" {}

layer "networking" {}

layer "security" {
  depends_on = ["networking"]
}
`

// fakeTF writes a terraform stand-in that logs "<layer> <command>" lines and
// exits with the code its behavior dictates.
func fakeTF(t *testing.T, behavior string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "terraform")
	script := "#!/bin/sh\n" +
		"echo \"$(basename \"$PWD\") $1\" >> \"$STRATUM_TEST_LOG\"\n" +
		behavior + "\n" +
		"exit 0\n"

	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}

func setupRun(t *testing.T, behavior string) (*config.Config, *options.StratumOptions, string) {
	t.Helper()

	cfg, err := config.Parse([]byte(runnerTestConfig), "stratum.hcl")
	require.NoError(t, err)

	workingDir := t.TempDir()

	for _, name := range []string{"networking", "security"} {
		require.NoError(t, os.MkdirAll(filepath.Join(workingDir, "layers", name), 0o755))

		varFile := filepath.Join(workingDir, "environments", "dev", name+".tfvars")
		require.NoError(t, os.MkdirAll(filepath.Dir(varFile), 0o755))
		require.NoError(t, os.WriteFile(varFile, nil, 0o644))
	}

	logFile := filepath.Join(t.TempDir(), "invocations.log")

	opts := options.NewStratumOptions()
	opts.WorkingDir = workingDir
	opts.TFPath = fakeTF(t, behavior)
	opts.Parallelism = 2
	opts.AutoApprove = true
	opts.SkipPlan = true
	opts.Logger = log.New(log.WithOutput(os.Stderr))
	opts.Env = map[string]string{"STRATUM_TEST_LOG": logFile}

	return cfg, opts, logFile
}

func invocations(t *testing.T, logFile string) []string {
	t.Helper()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRunApplyInDependencyOrder(t *testing.T) {
	t.Parallel()

	cfg, opts, logFile := setupRun(t, ":")

	r := runner.New(cfg, opts)

	err := r.Run(context.Background(), []matrix.WorkItem{
		{Layer: "networking", Environment: "dev", Operation: matrix.OperationApply},
		{Layer: "security", Environment: "dev", Operation: matrix.OperationApply},
	})
	require.NoError(t, err)

	lines := invocations(t, logFile)
	assert.Equal(t, []string{
		"networking init",
		"networking apply",
		"security init",
		"security apply",
	}, lines)

	runs := r.Report().Runs()
	require.Len(t, runs, 2)

	for _, run := range runs {
		assert.Equal(t, report.ResultSucceeded, run.Result)
	}
}

func TestRunPlanRecordsPendingChanges(t *testing.T) {
	t.Parallel()

	cfg, opts, _ := setupRun(t, `case "$1" in plan) exit 2;; esac`)

	coder := new(tf.DetailedExitCode)
	ctx := tf.ContextWithDetailedExitCode(context.Background(), coder)

	r := runner.New(cfg, opts)

	err := r.Run(ctx, []matrix.WorkItem{
		{Layer: "networking", Environment: "dev", Operation: matrix.OperationPlan},
		{Layer: "security", Environment: "dev", Operation: matrix.OperationPlan},
	})
	require.NoError(t, err)

	for _, run := range r.Report().Runs() {
		assert.Equal(t, report.ResultChangesPending, run.Result)
	}

	assert.Equal(t, tf.ExitCodeChanges, coder.Get())
}

func TestRunFailureSkipsDependents(t *testing.T) {
	t.Parallel()

	cfg, opts, logFile := setupRun(t, `case "$(basename "$PWD") $1" in "networking apply") exit 1;; esac`)

	r := runner.New(cfg, opts)

	err := r.Run(context.Background(), []matrix.WorkItem{
		{Layer: "networking", Environment: "dev", Operation: matrix.OperationApply},
		{Layer: "security", Environment: "dev", Operation: matrix.OperationApply},
	})
	require.Error(t, err)

	// Security never ran.
	for _, line := range invocations(t, logFile) {
		assert.NotContains(t, line, "security")
	}

	runs := r.Report().Runs()
	require.Len(t, runs, 2)

	byLayer := map[string]*report.Run{}
	for _, run := range runs {
		byLayer[run.Item.Layer] = run
	}

	assert.Equal(t, report.ResultFailed, byLayer["networking"].Result)
	assert.Equal(t, report.ResultSkipped, byLayer["security"].Result)
	assert.Equal(t, report.ReasonAncestorFailed, byLayer["security"].Reason)
}

func TestRunApplyPlansFirst(t *testing.T) {
	t.Parallel()

	cfg, opts, logFile := setupRun(t, ":")
	opts.SkipPlan = false

	r := runner.New(cfg, opts)

	err := r.Run(context.Background(), []matrix.WorkItem{
		{Layer: "networking", Environment: "dev", Operation: matrix.OperationApply},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"networking init",
		"networking plan",
		"networking apply",
	}, invocations(t, logFile))
}

func TestRunDriftIsNotFatal(t *testing.T) {
	t.Parallel()

	cfg, opts, logFile := setupRun(t, `case "$1" in apply) echo "Error: Saved plan is stale" >&2; exit 1;; esac`)

	coder := new(tf.DetailedExitCode)
	ctx := tf.ContextWithDetailedExitCode(context.Background(), coder)

	r := runner.New(cfg, opts)

	err := r.Run(ctx, []matrix.WorkItem{
		{Layer: "networking", Environment: "dev", Operation: matrix.OperationApply},
		{Layer: "security", Environment: "dev", Operation: matrix.OperationApply},
	})
	require.NoError(t, err)

	// Security still ran; drift upstream does not block dependents.
	assert.Contains(t, invocations(t, logFile), "security apply")

	for _, run := range r.Report().Runs() {
		assert.Equal(t, report.ResultDrift, run.Result)
		assert.Equal(t, report.ReasonDriftDetected, run.Reason)
	}

	// The process exit code signals that a re-plan is due.
	assert.Equal(t, tf.ExitCodeChanges, coder.Get())
}

func TestRunMissingLayerDirFails(t *testing.T) {
	t.Parallel()

	cfg, opts, _ := setupRun(t, ":")

	layerDir := filepath.Join(opts.WorkingDir, "layers", "security")
	require.NoError(t, os.RemoveAll(layerDir))

	r := runner.New(cfg, opts)

	err := r.Run(context.Background(), []matrix.WorkItem{
		{Layer: "security", Environment: "dev", Operation: matrix.OperationApply},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	// The run must not conjure the directory and report success against it.
	assert.NoDirExists(t, layerDir)

	runs := r.Report().Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, report.ResultFailed, runs[0].Result)
}

func TestRunMissingVarFileFailsBeforeInit(t *testing.T) {
	t.Parallel()

	cfg, opts, logFile := setupRun(t, ":")

	require.NoError(t, os.Remove(filepath.Join(opts.WorkingDir, "environments", "dev", "networking.tfvars")))

	r := runner.New(cfg, opts)

	err := r.Run(context.Background(), []matrix.WorkItem{
		{Layer: "networking", Environment: "dev", Operation: matrix.OperationApply},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing var file")

	// Terraform was never invoked, not even for init.
	assert.NoFileExists(t, logFile)
}

func TestRunDestroyReversesOrder(t *testing.T) {
	t.Parallel()

	cfg, opts, logFile := setupRun(t, ":")

	r := runner.New(cfg, opts)

	err := r.Run(context.Background(), []matrix.WorkItem{
		{Layer: "security", Environment: "dev", Operation: matrix.OperationDestroy},
		{Layer: "networking", Environment: "dev", Operation: matrix.OperationDestroy},
	})
	require.NoError(t, err)

	lines := invocations(t, logFile)
	assert.Equal(t, []string{
		"security init",
		"security destroy",
		"networking init",
		"networking destroy",
	}, lines)
}

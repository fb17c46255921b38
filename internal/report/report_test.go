package report_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/matrix"
	"github.com/stratum-ci/stratum/internal/report"
)

func workItem(layer string) matrix.WorkItem {
	return matrix.WorkItem{
		Layer:       layer,
		Environment: "dev",
		Operation:   matrix.OperationApply,
	}
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	r := report.NewReport()
	assert.NotEmpty(t, r.RunID)

	item := workItem("networking")

	require.NoError(t, r.StartRun(item))
	require.ErrorIs(t, r.StartRun(item), report.ErrRunAlreadyExists)

	require.NoError(t, r.EndRun(item))

	runs := r.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, report.ResultSucceeded, runs[0].Result)
	assert.False(t, runs[0].Ended.IsZero())

	require.ErrorIs(t, r.EndRun(workItem("never-started")), report.ErrRunNotFound)
}

func TestEndRunOptions(t *testing.T) {
	t.Parallel()

	r := report.NewReport()
	item := workItem("compute")

	require.NoError(t, r.StartRun(item))
	require.NoError(t, r.EndRun(item,
		report.WithResult(report.ResultFailed),
		report.WithReason(report.ReasonRunError),
		report.WithError(errors.New("exit status 1")),
	))

	runs := r.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, report.ResultFailed, runs[0].Result)
	assert.Equal(t, report.ReasonRunError, runs[0].Reason)
	assert.Equal(t, "exit status 1", runs[0].Error)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	r := report.NewReport()

	ok := workItem("networking")
	require.NoError(t, r.StartRun(ok))
	require.NoError(t, r.EndRun(ok))

	pending := workItem("security")
	require.NoError(t, r.StartRun(pending))
	require.NoError(t, r.EndRun(pending, report.WithResult(report.ResultChangesPending)))

	failed := workItem("database")
	require.NoError(t, r.StartRun(failed))
	require.NoError(t, r.EndRun(failed, report.WithResult(report.ResultFailed), report.WithReason(report.ReasonRunError)))

	drifted := workItem("storage")
	require.NoError(t, r.StartRun(drifted))
	require.NoError(t, r.EndRun(drifted, report.WithResult(report.ResultDrift), report.WithReason(report.ReasonDriftDetected)))

	r.RecordSkipped(workItem("compute"), report.ReasonAncestorFailed)

	summary := r.Summarize()
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.ChangesPending)
	assert.Equal(t, 1, summary.Drifted)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)

	var buf bytes.Buffer
	require.NoError(t, r.WriteSummary(&buf))
	assert.Contains(t, buf.String(), "Drifted:         1")
	assert.Contains(t, buf.String(), "Failed:          1")
	assert.Contains(t, buf.String(), "Skipped:         1")
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	r := report.NewReport()
	item := workItem("dns")

	require.NoError(t, r.StartRun(item))
	require.NoError(t, r.EndRun(item))

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var decoded struct {
		RunID string `json:"run_id"`
		Runs  []struct {
			Item   matrix.WorkItem `json:"item"`
			Result report.Result   `json:"result"`
		} `json:"runs"`
	}

	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.RunID, decoded.RunID)
	require.Len(t, decoded.Runs, 1)
	assert.Equal(t, "dns", decoded.Runs[0].Item.Layer)
	assert.Equal(t, report.ResultSucceeded, decoded.Runs[0].Result)
}

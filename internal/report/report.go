// Package report collects the outcome of every work item in a run and renders
// the machine-readable record and the operator summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/matrix"
)

// Result captures the outcome of one work item.
type Result string

const (
	ResultSucceeded      Result = "succeeded"
	ResultChangesPending Result = "changes-pending"
	ResultDrift          Result = "drift"
	ResultFailed         Result = "failed"
	ResultSkipped        Result = "skipped"
)

// Reason explains a non-success result.
type Reason string

const (
	ReasonRunError       Reason = "run error"
	ReasonDriftDetected  Reason = "drift detected"
	ReasonAncestorFailed Reason = "ancestor failed"
	ReasonFailFast       Reason = "fail fast"
)

// Run captures the outcome of one work item.
type Run struct {
	Item    matrix.WorkItem `json:"item"`
	Started time.Time       `json:"started"`
	Ended   time.Time       `json:"ended"`
	Result  Result          `json:"result"`
	Reason  Reason          `json:"reason,omitempty"`
	Error   string          `json:"error,omitempty"`

	mu sync.RWMutex
}

// Report accumulates runs from concurrently executing work items.
type Report struct {
	RunID string `json:"run_id"`

	mu   sync.RWMutex
	runs []*Run
}

// NewReport creates an empty report with a fresh run ID.
func NewReport() *Report {
	return &Report{RunID: uuid.NewString()}
}

// ErrRunAlreadyExists is returned when a work item is started twice.
var ErrRunAlreadyExists = errors.New("run already exists")

// ErrRunNotFound is returned when ending a work item that never started.
var ErrRunNotFound = errors.New("run not found")

// StartRun records that a work item began executing.
func (r *Report) StartRun(item matrix.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(item) != nil {
		return fmt.Errorf("%w: %s", ErrRunAlreadyExists, item)
	}

	r.runs = append(r.runs, &Run{
		Item:    item,
		Started: time.Now(),
	})

	return nil
}

// EndOption adjusts a run as it ends.
type EndOption func(*Run)

// WithResult overrides the default succeeded result.
func WithResult(result Result) EndOption {
	return func(run *Run) {
		run.Result = result
	}
}

// WithReason records why a run did not succeed.
func WithReason(reason Reason) EndOption {
	return func(run *Run) {
		run.Reason = reason
	}
}

// WithError records the failure message alongside the result.
func WithError(err error) EndOption {
	return func(run *Run) {
		run.Error = err.Error()
	}
}

// EndRun marks a work item finished. Without options the run succeeded.
func (r *Report) EndRun(item matrix.WorkItem, opts ...EndOption) error {
	r.mu.RLock()
	run := r.find(item)
	r.mu.RUnlock()

	if run == nil {
		return fmt.Errorf("%w: %s", ErrRunNotFound, item)
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	run.Ended = time.Now()
	run.Result = ResultSucceeded

	for _, opt := range opts {
		opt(run)
	}

	return nil
}

// RecordSkipped adds a work item that never ran, such as one blocked by a
// failed dependency.
func (r *Report) RecordSkipped(item matrix.WorkItem, reason Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	r.runs = append(r.runs, &Run{
		Item:    item,
		Started: now,
		Ended:   now,
		Result:  ResultSkipped,
		Reason:  reason,
	})
}

func (r *Report) find(item matrix.WorkItem) *Run {
	for _, run := range r.runs {
		if run.Item == item {
			return run
		}
	}

	return nil
}

// Runs returns a snapshot of the recorded runs in start order.
func (r *Report) Runs() []*Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Run, len(r.runs))
	copy(out, r.runs)

	return out
}

// WriteJSON writes the full report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payload := struct {
		RunID string `json:"run_id"`
		Runs  []*Run `json:"runs"`
	}{
		RunID: r.RunID,
		Runs:  r.runs,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(payload); err != nil {
		return errors.WithStackTrace(err)
	}

	return nil
}

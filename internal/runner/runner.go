// Package runner executes a built matrix: it turns the ordered work items
// into a dependency queue and drains it with bounded concurrency, one
// terraform process per work item.
package runner

import (
	"context"

	"github.com/stratum-ci/stratum/internal/config"
	"github.com/stratum-ci/stratum/internal/matrix"
	"github.com/stratum-ci/stratum/internal/report"
	"github.com/stratum-ci/stratum/options"
)

// Runner drives one run end to end.
type Runner struct {
	cfg    *config.Config
	opts   *options.StratumOptions
	report *report.Report
}

// New creates a runner with a fresh report.
func New(cfg *config.Config, opts *options.StratumOptions) *Runner {
	return &Runner{
		cfg:    cfg,
		opts:   opts,
		report: report.NewReport(),
	}
}

// Report exposes the accumulated run report.
func (r *Runner) Report() *report.Report {
	return r.report
}

// Run executes all work items and returns the collected failures. The report
// is complete afterwards either way, including entries that never ran.
func (r *Runner) Run(ctx context.Context, items []matrix.WorkItem) error {
	queue, err := NewQueue(items, r.cfg.Graph, r.opts.FailFast)
	if err != nil {
		return err
	}

	executor := NewExecutor(r.cfg, r.opts, r.report)

	controller := NewController(queue,
		WithRunner(executor.Execute),
		WithMaxConcurrency(r.opts.Parallelism),
	)

	runErr := controller.Run(ctx, r.opts.Logger)

	for _, entry := range queue.Skipped() {
		reason := report.ReasonAncestorFailed
		if entry.Status == StatusFailFast {
			reason = report.ReasonFailFast
		}

		r.report.RecordSkipped(entry.Item, reason)
	}

	return runErr
}

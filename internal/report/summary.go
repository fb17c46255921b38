package report

import (
	"fmt"
	"io"
	"time"

	"github.com/stratum-ci/stratum/internal/errors"
)

// Summary aggregates a report for the end-of-run output.
type Summary struct {
	Total          int
	Succeeded      int
	ChangesPending int
	Drifted        int
	Failed         int
	Skipped        int

	firstStart time.Time
	lastEnd    time.Time
}

// Summarize folds all recorded runs into a summary.
func (r *Report) Summarize() *Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := &Summary{Total: len(r.runs)}

	for _, run := range r.runs {
		summary.update(run)
	}

	return summary
}

func (s *Summary) update(run *Run) {
	run.mu.RLock()
	defer run.mu.RUnlock()

	switch run.Result {
	case ResultSucceeded:
		s.Succeeded++
	case ResultChangesPending:
		s.ChangesPending++
	case ResultDrift:
		s.Drifted++
	case ResultFailed:
		s.Failed++
	case ResultSkipped:
		s.Skipped++
	}

	if s.firstStart.IsZero() || run.Started.Before(s.firstStart) {
		s.firstStart = run.Started
	}

	if run.Ended.After(s.lastEnd) {
		s.lastEnd = run.Ended
	}
}

// Duration is the wall time between the first start and the last end.
func (s *Summary) Duration() time.Duration {
	if s.firstStart.IsZero() {
		return 0
	}

	return s.lastEnd.Sub(s.firstStart).Round(time.Millisecond)
}

// WriteSummary renders the human-readable end-of-run summary.
func (r *Report) WriteSummary(w io.Writer) error {
	summary := r.Summarize()

	lines := []string{
		"",
		fmt.Sprintf("Run %s finished in %s", r.RunID, summary.Duration()),
		fmt.Sprintf("  Units:           %d", summary.Total),
		fmt.Sprintf("  Succeeded:       %d", summary.Succeeded),
	}

	if summary.ChangesPending > 0 {
		lines = append(lines, fmt.Sprintf("  Changes pending: %d", summary.ChangesPending))
	}

	if summary.Drifted > 0 {
		lines = append(lines, fmt.Sprintf("  Drifted:         %d", summary.Drifted))
	}

	if summary.Failed > 0 {
		lines = append(lines, fmt.Sprintf("  Failed:          %d", summary.Failed))
	}

	if summary.Skipped > 0 {
		lines = append(lines, fmt.Sprintf("  Skipped:         %d", summary.Skipped))
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return errors.WithStackTrace(err)
		}
	}

	return nil
}

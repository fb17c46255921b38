package runner

import (
	"slices"
	"sync"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/layer"
	"github.com/stratum-ci/stratum/internal/matrix"
)

// Status tracks an entry through its lifecycle.
type Status int

const (
	// StatusPending means the entry is waiting on unfinished dependencies.
	StatusPending Status = iota

	// StatusRunning means the entry is executing.
	StatusRunning

	// StatusSucceeded means the entry finished without error.
	StatusSucceeded

	// StatusFailed means the entry ran and failed.
	StatusFailed

	// StatusAncestorFailed means the entry never ran because something it
	// depends on failed.
	StatusAncestorFailed

	// StatusFailFast means the entry never ran because an unrelated entry
	// failed while fail-fast was on.
	StatusFailFast
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusAncestorFailed:
		return "ancestor failed"
	case StatusFailFast:
		return "fail fast"
	default:
		return "unknown"
	}
}

// Entry is one work item with its scheduling state.
type Entry struct {
	Item   matrix.WorkItem
	Status Status

	dependencies []*Entry
	dependents   []*Entry
}

// Queue schedules work items against their dependency edges. Items for
// different environments never depend on each other; within one environment
// the edges follow the layer graph, reversed for destroy.
type Queue struct {
	Entries []*Entry

	FailFast bool

	mu sync.Mutex
}

// NewQueue builds a queue from an ordered list of work items. The items must
// already be in execution order; the queue only adds the blocking edges.
func NewQueue(items []matrix.WorkItem, graph *layer.Graph, failFast bool) (*Queue, error) {
	q := &Queue{
		Entries:  make([]*Entry, 0, len(items)),
		FailFast: failFast,
	}

	byKey := make(map[matrix.WorkItem]*Entry, len(items))

	for _, item := range items {
		entry := &Entry{Item: item}
		q.Entries = append(q.Entries, entry)
		byKey[item] = entry
	}

	for _, entry := range q.Entries {
		blockers, err := blockerLayers(entry.Item, graph)
		if err != nil {
			return nil, err
		}

		for _, blocker := range blockers {
			key := matrix.WorkItem{
				Layer:       blocker,
				Environment: entry.Item.Environment,
				Operation:   entry.Item.Operation,
			}

			if dep, ok := byKey[key]; ok {
				entry.dependencies = append(entry.dependencies, dep)
				dep.dependents = append(dep.dependents, entry)
			}
		}
	}

	return q, nil
}

// blockerLayers returns the layers whose items must finish before this one
// may start. Destroys invert the graph: dependents come down first.
func blockerLayers(item matrix.WorkItem, graph *layer.Graph) ([]string, error) {
	lyr, err := graph.Layer(item.Layer)
	if err != nil {
		return nil, err
	}

	if item.Operation != matrix.OperationDestroy {
		return lyr.Dependencies, nil
	}

	var blockers []string

	for _, name := range graph.Names() {
		other, err := graph.Layer(name)
		if err != nil {
			return nil, err
		}

		if slices.Contains(other.Dependencies, item.Layer) {
			blockers = append(blockers, name)
		}
	}

	return blockers, nil
}

// Ready returns the pending entries whose dependencies have all succeeded,
// marking them running so a second call never returns them again.
func (q *Queue) Ready() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []*Entry

	for _, entry := range q.Entries {
		if entry.Status != StatusPending {
			continue
		}

		blocked := false

		for _, dep := range entry.dependencies {
			if dep.Status != StatusSucceeded {
				blocked = true
				break
			}
		}

		if !blocked {
			entry.Status = StatusRunning
			ready = append(ready, entry)
		}
	}

	return ready
}

// Succeed marks a running entry finished.
func (q *Queue) Succeed(entry *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry.Status = StatusSucceeded
}

// Fail marks an entry failed and cascades: every transitive dependent that
// has not started is marked ancestor-failed, and with fail-fast on every
// other pending entry is cancelled too.
func (q *Queue) Fail(entry *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry.Status = StatusFailed

	q.cascade(entry)

	if q.FailFast {
		for _, other := range q.Entries {
			if other.Status == StatusPending {
				other.Status = StatusFailFast
			}
		}
	}
}

func (q *Queue) cascade(entry *Entry) {
	for _, dependent := range entry.dependents {
		if dependent.Status != StatusPending {
			continue
		}

		dependent.Status = StatusAncestorFailed
		q.cascade(dependent)
	}
}

// Finished reports whether no entry can make further progress.
func (q *Queue) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, entry := range q.Entries {
		if entry.Status == StatusPending || entry.Status == StatusRunning {
			return false
		}
	}

	return true
}

// Skipped returns the entries that never ran.
func (q *Queue) Skipped() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var skipped []*Entry

	for _, entry := range q.Entries {
		if entry.Status == StatusAncestorFailed || entry.Status == StatusFailFast {
			skipped = append(skipped, entry)
		}
	}

	return skipped
}

// ErrQueueStalled reports a scheduling deadlock; with a validated layer graph
// it indicates a queue bug, not bad input.
var ErrQueueStalled = errors.New("queue stalled with pending entries")

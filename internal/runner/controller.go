package runner

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/matrix"
	"github.com/stratum-ci/stratum/internal/telemetry"
	"github.com/stratum-ci/stratum/pkg/log"
)

// ItemRunner executes one work item.
type ItemRunner func(ctx context.Context, item matrix.WorkItem) error

// Controller drains a queue with bounded concurrency, starting entries as
// their dependencies finish.
type Controller struct {
	queue       *Queue
	runner      ItemRunner
	readyCh     chan struct{}
	concurrency int
}

// ControllerOption modifies a Controller.
type ControllerOption func(*Controller)

// WithRunner sets the function invoked per work item.
func WithRunner(runner ItemRunner) ControllerOption {
	return func(c *Controller) {
		c.runner = runner
	}
}

// WithMaxConcurrency bounds the number of work items running at once.
func WithMaxConcurrency(concurrency int) ControllerOption {
	return func(c *Controller) {
		if concurrency <= 0 {
			concurrency = 1
		}

		c.concurrency = concurrency
	}
}

// NewController creates a controller over a pre-built queue.
func NewController(queue *Queue, opts ...ControllerOption) *Controller {
	c := &Controller{
		queue:       queue,
		readyCh:     make(chan struct{}, 1),
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run drains the queue and returns every run error collected on the way.
// Cancelling the context stops new entries from starting; running entries
// are waited for.
func (c *Controller) Run(ctx context.Context, l log.Logger) error {
	return telemetry.TelemeterFromContext(ctx).Collect(ctx, "runner_controller", map[string]any{
		"total_items": len(c.queue.Entries),
		"concurrency": c.concurrency,
		"fail_fast":   c.queue.FailFast,
	}, func(childCtx context.Context) error {
		return c.run(childCtx, l)
	})
}

func (c *Controller) run(ctx context.Context, l log.Logger) error {
	if c.runner == nil {
		return errors.New("runner is not set")
	}

	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, c.concurrency)
		results = xsync.NewMapOf[matrix.WorkItem, error]()
	)

	l.Debugf("Controller starting with %d items, concurrency %d", len(c.queue.Entries), c.concurrency)

	c.signal()

	for {
		if ctx.Err() != nil {
			wg.Wait()
			return errors.WithStackTrace(ctx.Err())
		}

		ready := c.queue.Ready()

		if len(ready) == 0 && len(sem) == 0 {
			// A worker drains sem before it signals, so its completion can
			// land between the Ready snapshot and the sem read. Look once
			// more before treating the queue as drained.
			if ready = c.queue.Ready(); len(ready) == 0 {
				break
			}
		}

		for _, entry := range ready {
			l.Debugf("Controller starting %s", entry.Item)

			sem <- struct{}{}

			wg.Add(1)

			go func(entry *Entry) {
				defer func() {
					<-sem
					wg.Done()
					c.signal()
				}()

				err := c.runner(ctx, entry.Item)
				results.Store(entry.Item, err)

				if err != nil {
					l.Debugf("Controller: %s failed: %v", entry.Item, err)
					c.queue.Fail(entry)

					return
				}

				l.Debugf("Controller: %s succeeded", entry.Item)
				c.queue.Succeed(entry)
			}(entry)
		}

		select {
		case <-c.readyCh:
		case <-ctx.Done():
			wg.Wait()
			return errors.WithStackTrace(ctx.Err())
		}
	}

	wg.Wait()

	if !c.queue.Finished() {
		return ErrQueueStalled
	}

	errs := new(errors.MultiError)

	for _, entry := range c.queue.Entries {
		if err, ok := results.Load(entry.Item); ok && err != nil {
			errs = errs.Append(errors.Errorf("%s: %w", entry.Item, err))
		}
	}

	return errs.ErrorOrNil()
}

func (c *Controller) signal() {
	select {
	case c.readyCh <- struct{}{}:
	default:
	}
}

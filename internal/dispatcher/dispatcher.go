// Package dispatcher fans tasks out over a bounded worker pool.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
	"github.com/Jester6136/google-lens-crawl/internal/worker"
)

// Dispatcher owns a fixed set of workers. Pool size equals the
// configured concurrency; each worker pulls the next unassigned task,
// so every task is scheduled exactly once.
type Dispatcher struct {
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{workers: workers, logger: logger}
}

// Run processes all tasks and returns exactly one outcome per task.
// Output order is not related to input order. Workers append to
// per-worker buffers merged after the pool drains; tasks never handed
// to a worker before cancellation resolve to canceled failures.
func (d *Dispatcher) Run(ctx context.Context, tasks []lens.Task) []lens.Outcome {
	taskCh := make(chan lens.Task)
	buffers := make([][]lens.Outcome, len(d.workers))

	var wg sync.WaitGroup
	for i, w := range d.workers {
		wg.Add(1)
		go func(slot int, wk *worker.Worker) {
			defer wg.Done()
			local := make([]lens.Outcome, 0, len(tasks)/max(len(d.workers), 1)+1)
			for task := range taskCh {
				local = append(local, wk.Process(ctx, task))
			}
			buffers[slot] = local
		}(i, w)
	}

	var unscheduled []lens.Task
feed:
	for i, task := range tasks {
		select {
		case taskCh <- task:
		case <-ctx.Done():
			unscheduled = tasks[i:]
			d.logger.Warn("run canceled before all tasks were scheduled",
				zap.Int("remaining", len(unscheduled)),
			)
			break feed
		}
	}
	close(taskCh)
	wg.Wait()

	outcomes := make([]lens.Outcome, 0, len(tasks))
	for _, buf := range buffers {
		outcomes = append(outcomes, buf...)
	}
	for _, task := range unscheduled {
		outcomes = append(outcomes, lens.Outcome{
			Task: task,
			Failure: &lens.FailureRecord{
				TaskID: task.ID,
				URL:    task.URL,
				Reason: "run canceled before task was scheduled",
			},
		})
	}
	return outcomes
}

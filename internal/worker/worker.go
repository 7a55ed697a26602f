// Package worker implements the retry-wrapped scrape loop for a single
// task.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
	"github.com/Jester6136/google-lens-crawl/internal/progress"
)

// Worker processes one task at a time: acquire a session, attempt the
// scrape, classify the error, back off and retry within the budget.
type Worker struct {
	sessions lens.SessionFactory
	scraper  lens.Scraper
	prober   lens.Prober
	policy   lens.RetryPolicy
	clock    lens.Clock
	hub      *progress.Hub
	runID    string
	logger   *zap.Logger
}

// New constructs a Worker. prober and hub may be nil.
func New(
	sessions lens.SessionFactory,
	scraper lens.Scraper,
	prober lens.Prober,
	policy lens.RetryPolicy,
	clock lens.Clock,
	hub *progress.Hub,
	runID string,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		sessions: sessions,
		scraper:  scraper,
		prober:   prober,
		policy:   policy,
		clock:    clock,
		hub:      hub,
		runID:    runID,
		logger:   logger,
	}
}

// Process runs the attempt sequence for task and returns its terminal
// outcome. Attempts are strictly sequential; each owns a fresh session
// which is released on every exit path. Errors never escape: they
// resolve to a FailureRecord for this task only.
func (w *Worker) Process(ctx context.Context, task lens.Task) lens.Outcome {
	var lastErr error
	for attempt := 1; ; attempt++ {
		start := w.clock.Now()
		rows, err := w.attemptOnce(ctx, task)
		dur := w.clock.Now().Sub(start)

		if err == nil {
			w.emitAttempt(task, attempt, progress.OutcomeSucceeded, lens.KindNone, nil, len(rows), dur)
			w.logger.Info("task succeeded",
				zap.String("task_id", task.ID),
				zap.Int("attempt", attempt),
				zap.Int("rows", len(rows)),
			)
			w.emitDone(task, attempt, progress.OutcomeSucceeded, len(rows))
			return lens.Outcome{Task: task, Rows: rows, Attempts: attempt}
		}

		lastErr = err
		kind := lens.Classify(err)
		retry := ctx.Err() == nil && w.policy.ShouldRetry(kind, attempt)

		outcome := attemptOutcome(ctx, kind, retry)
		w.emitAttempt(task, attempt, outcome, kind, err, 0, dur)
		w.logger.Warn("scrape attempt failed",
			zap.String("task_id", task.ID),
			zap.String("url", task.URL),
			zap.Int("attempt", attempt),
			zap.String("kind", kind.String()),
			zap.Bool("will_retry", retry),
			zap.Error(err),
		)

		if !retry {
			w.emitDone(task, attempt, outcome, 0)
			return w.fail(task, attempt, lastErr)
		}
		if sleepErr := w.clock.Sleep(ctx, w.policy.Backoff(attempt)); sleepErr != nil {
			w.emitDone(task, attempt, progress.OutcomeCanceled, 0)
			return w.fail(task, attempt, fmt.Errorf("backoff wait: %w", sleepErr))
		}
	}
}

// attemptOnce performs a single probe+scrape with a session scoped to
// this attempt, so a crashed browser never leaks into the next try.
func (w *Worker) attemptOnce(ctx context.Context, task lens.Task) ([]lens.ResultRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.prober != nil {
		if err := w.prober.Probe(ctx, task.URL); err != nil {
			return nil, err
		}
	}

	sess, err := w.sessions.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			w.logger.Warn("session close failed", zap.String("task_id", task.ID), zap.Error(cerr))
		}
	}()

	return w.scraper.Scrape(ctx, sess, task)
}

func (w *Worker) fail(task lens.Task, attempts int, err error) lens.Outcome {
	return lens.Outcome{
		Task:     task,
		Attempts: attempts,
		Failure: &lens.FailureRecord{
			TaskID:   task.ID,
			URL:      task.URL,
			Attempts: attempts,
			Reason:   err.Error(),
		},
	}
}

func attemptOutcome(ctx context.Context, kind lens.Kind, retry bool) progress.AttemptOutcome {
	switch {
	case retry:
		return progress.OutcomeRetrying
	case ctx.Err() != nil:
		return progress.OutcomeCanceled
	case kind == lens.KindPermanent:
		return progress.OutcomePermanent
	default:
		return progress.OutcomeExhausted
	}
}

func (w *Worker) emitAttempt(task lens.Task, attempt int, outcome progress.AttemptOutcome, kind lens.Kind, err error, rows int, dur time.Duration) {
	if w.hub == nil {
		return
	}
	evt := progress.Event{
		RunID:   w.runID,
		TS:      w.clock.Now(),
		Stage:   progress.StageAttempt,
		TaskID:  task.ID,
		URL:     task.URL,
		Attempt: attempt,
		Rows:    rows,
		Outcome: outcome,
		Dur:     dur,
	}
	if err != nil {
		evt.ErrKind = kind.String()
		evt.Note = err.Error()
	}
	w.hub.Emit(evt)
}

func (w *Worker) emitDone(task lens.Task, attempts int, outcome progress.AttemptOutcome, rows int) {
	if w.hub == nil {
		return
	}
	w.hub.Emit(progress.Event{
		RunID:   w.runID,
		TS:      w.clock.Now(),
		Stage:   progress.StageTaskDone,
		TaskID:  task.ID,
		URL:     task.URL,
		Attempt: attempts,
		Rows:    rows,
		Outcome: outcome,
	})
}

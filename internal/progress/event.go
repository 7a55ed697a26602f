// Package progress defines the attempt-level events emitted by scrape
// workers and fans them out to logging/metrics sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageRunDone  Stage = "RUN_DONE"
	StageAttempt  Stage = "ATTEMPT"
	StageTaskDone Stage = "TASK_DONE"
)

// AttemptOutcome labels how a single attempt or task resolved.
type AttemptOutcome string

// Supported outcomes.
const (
	OutcomeSucceeded AttemptOutcome = "succeeded"
	OutcomeRetrying  AttemptOutcome = "retrying"
	OutcomeExhausted AttemptOutcome = "exhausted"
	OutcomePermanent AttemptOutcome = "permanent"
	OutcomeCanceled  AttemptOutcome = "canceled"
)

// Event captures one milestone of a batch run.
type Event struct {
	// RunID identifies the batch invocation.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// TaskID scopes attempt/task events to one input id.
	TaskID string
	// URL is the task's image URL.
	URL string
	// Attempt is 1-based for attempt events.
	Attempt int
	// Rows is the number of result rows produced, where applicable.
	Rows int
	// Outcome labels attempt/task resolution.
	Outcome AttemptOutcome
	// ErrKind is the classified error bucket for failed attempts.
	ErrKind string
	// Note carries low-volume error detail.
	Note string
	// Dur captures attempt or run latency.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
		if e.RunID == "" {
			return errors.New("run events require run id")
		}
	case StageAttempt:
		if e.TaskID == "" {
			return errors.New("attempt events require task id")
		}
		if e.Attempt < 1 {
			return errors.New("attempt number must be >= 1")
		}
	case StageTaskDone:
		if e.TaskID == "" {
			return errors.New("task done requires task id")
		}
		if e.Outcome == "" {
			return errors.New("task done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

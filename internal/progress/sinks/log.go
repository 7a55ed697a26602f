// Package sinks contains progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/Jester6136/google-lens-crawl/internal/progress"
)

// LogSink emits one structured log line per event. This is the
// externally consumable attempt log: task id, attempt number, outcome,
// error detail.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("task_id", evt.TaskID),
			zap.String("url", evt.URL),
			zap.Int("attempt", evt.Attempt),
			zap.Int("rows", evt.Rows),
			zap.String("outcome", string(evt.Outcome)),
			zap.Duration("dur", evt.Dur),
		}
		if evt.ErrKind != "" {
			fields = append(fields,
				zap.String("err_kind", evt.ErrKind),
				zap.String("error", evt.Note),
			)
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

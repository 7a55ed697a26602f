package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
)

// FailureWriter persists exhausted tasks as an id -> URL JSON mapping,
// the same shape the loader accepts, so the failed subset can be fed
// straight back in for a re-run.
type FailureWriter struct {
	path   string
	logger *zap.Logger
}

// NewFailures returns a writer targeting path.
func NewFailures(path string, logger *zap.Logger) *FailureWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureWriter{path: path, logger: logger}
}

// WriteFailures writes the mapping and logs each failure with its last
// error so the reason survives even though the rerun file omits it.
// Writing is skipped entirely when there are no failures.
func (w *FailureWriter) WriteFailures(failures []lens.FailureRecord) error {
	if len(failures) == 0 {
		return nil
	}

	sorted := append([]lens.FailureRecord(nil), failures...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TaskID < sorted[j].TaskID
	})

	mapping := make(map[string]string, len(sorted))
	for _, f := range sorted {
		mapping[f.TaskID] = f.URL
		w.logger.Error("task failed",
			zap.String("task_id", f.TaskID),
			zap.String("url", f.URL),
			zap.Int("attempts", f.Attempts),
			zap.String("reason", f.Reason),
		)
	}

	payload, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}
	if err := os.WriteFile(w.path, payload, 0o600); err != nil {
		return fmt.Errorf("write failures %s: %w", w.path, err)
	}
	w.logger.Info("failed subset written for re-run",
		zap.String("path", w.path),
		zap.Int("tasks", len(sorted)),
	)
	return nil
}

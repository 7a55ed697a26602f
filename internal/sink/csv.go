// Package sink persists run output to disk.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
)

var csvHeader = []string{"id", "url", "position", "title", "source", "link"}

// CSVWriter serializes result rows to one CSV file per run.
type CSVWriter struct {
	path   string
	logger *zap.Logger
}

// NewCSV returns a writer targeting path.
func NewCSV(path string, logger *zap.Logger) *CSVWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVWriter{path: path, logger: logger}
}

// WriteRows writes the header plus all rows, sorted by (id, position)
// so output is stable regardless of worker completion order.
func (w *CSVWriter) WriteRows(rows []lens.ResultRow) error {
	sorted := append([]lens.ResultRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TaskID != sorted[j].TaskID {
			return sorted[i].TaskID < sorted[j].TaskID
		}
		return sorted[i].Position < sorted[j].Position
	})

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create csv %s: %w", w.path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			w.logger.Warn("csv close failed", zap.String("path", w.path), zap.Error(cerr))
		}
	}()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range sorted {
		record := []string{
			row.TaskID,
			row.URL,
			strconv.Itoa(row.Position),
			row.Title,
			row.Source,
			row.Link,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row for %s: %w", row.TaskID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv %s: %w", w.path, err)
	}
	w.logger.Info("results written",
		zap.String("path", w.path),
		zap.Int("rows", len(sorted)),
	)
	return nil
}

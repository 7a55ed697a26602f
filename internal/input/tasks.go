// Package input loads the id -> URL task mapping from disk.
package input

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
)

// Load reads a JSON object mapping opaque ids to image URLs and
// returns the tasks sorted by id so scheduling order is deterministic.
// Entries with a blank id get a generated UUID.
func Load(path string) ([]lens.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes the id -> URL mapping from raw JSON.
func Parse(data []byte) ([]lens.Task, error) {
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("decode tasks json: %w", err)
	}

	tasks := make([]lens.Task, 0, len(mapping))
	for id, url := range mapping {
		id = strings.TrimSpace(id)
		if id == "" {
			id = uuid.NewString()
		}
		tasks = append(tasks, lens.Task{ID: id, URL: strings.TrimSpace(url)})
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

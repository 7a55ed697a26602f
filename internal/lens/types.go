// Package lens defines core types shared across the scrape pipeline.
package lens

// Task is one (id, image URL) pair to resolve into visual-match rows.
// Tasks are immutable once loaded; each is consumed by exactly one
// dispatch attempt sequence.
type Task struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ResultRow is one visual match scraped from the Lens results page.
type ResultRow struct {
	TaskID   string `json:"id"`
	URL      string `json:"url"`
	Position int    `json:"position"`
	Title    string `json:"title"`
	Source   string `json:"source"`
	Link     string `json:"link"`
}

// FailureRecord marks a task whose retry budget was exhausted or that
// failed permanently. Attempts counts every scrape attempt made.
type FailureRecord struct {
	TaskID   string `json:"id"`
	URL      string `json:"url"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// Outcome is the terminal result of processing one task: either a row
// set (possibly empty, meaning Lens found nothing) or a failure record.
type Outcome struct {
	Task     Task
	Rows     []ResultRow
	Failure  *FailureRecord
	Attempts int
}

// Failed reports whether the task resolved to a failure record.
func (o Outcome) Failed() bool {
	return o.Failure != nil
}

// RunSummary aggregates counters for a completed batch.
type RunSummary struct {
	Tasks     int
	Succeeded int
	Failed    int
	Rows      int
}

// Summarize tallies outcomes into a RunSummary.
func Summarize(outcomes []Outcome) RunSummary {
	s := RunSummary{Tasks: len(outcomes)}
	for _, o := range outcomes {
		if o.Failed() {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.Rows += len(o.Rows)
	}
	return s
}

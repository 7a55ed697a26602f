package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
)

// parseResults extracts up to MaxResults match rows from rendered HTML.
// A page without the result list at all is unparseable; a present but
// empty list is a zero-row success.
func parseResults(html string, task lens.Task, cfg Config) ([]lens.ResultRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, lens.Unparseable(fmt.Errorf("parse rendered page: %w", err))
	}

	items := doc.Find(cfg.Selectors.ResultList)
	if items.Length() == 0 {
		return nil, lens.Unparseable(fmt.Errorf("%w: no %q nodes", lens.ErrMissingResults, cfg.Selectors.ResultList))
	}

	rows := make([]lens.ResultRow, 0, cfg.MaxResults)
	items.EachWithBreak(func(_ int, item *goquery.Selection) bool {
		anchor := item.Find(cfg.Selectors.ResultAnchor).First()
		if anchor.Length() == 0 {
			return true
		}
		link, _ := anchor.Attr("href")
		rows = append(rows, lens.ResultRow{
			TaskID:   task.ID,
			URL:      task.URL,
			Position: len(rows) + 1,
			Title:    cleanText(anchor.Find(cfg.Selectors.Title).First().Text()),
			Source:   cleanText(anchor.Find(cfg.Selectors.Source).First().Text()),
			Link:     link,
		})
		return len(rows) < cfg.MaxResults
	})
	return rows, nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

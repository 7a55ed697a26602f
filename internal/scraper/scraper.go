// Package scraper drives Google Lens's reverse-image-search UI and
// parses visual-match rows from the rendered page.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
)

// Selectors locates the pieces of the Lens results page. Google churns
// these class names, so they are config-overridable and live in one
// place.
type Selectors struct {
	NoImageMarker string
	SourceButton  string
	ResultList    string
	ResultAnchor  string
	Title         string
	Source        string
}

// DefaultSelectors returns the selector set current as of the last
// manual verification against lens.google.com.
func DefaultSelectors() Selectors {
	return Selectors{
		NoImageMarker: "No image at that URL",
		SourceButton:  "button.VfPpkd-LgbsSe.VfPpkd-LgbsSe-OWXEXe-INsAgc",
		ResultList:    "li.anSuc",
		ResultAnchor:  "a.GZrdsf",
		Title:         ".iJmjmd",
		Source:        ".ShWW9",
	}
}

// Config controls the Lens endpoint and result extraction.
type Config struct {
	Endpoint   string
	MaxResults int
	Selectors  Selectors
}

// LensScraper implements lens.Scraper against the uploadbyurl endpoint.
type LensScraper struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a LensScraper, filling zero-value config with defaults.
func New(cfg Config, logger *zap.Logger) *LensScraper {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://lens.google.com/uploadbyurl"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	if cfg.Selectors == (Selectors{}) {
		cfg.Selectors = DefaultSelectors()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LensScraper{cfg: cfg, logger: logger}
}

// Scrape navigates to the Lens search for the task's image and parses
// the top-N match rows. A zero-row return with nil error means Lens
// rendered its result list but found nothing.
func (s *LensScraper) Scrape(ctx context.Context, sess lens.Session, task lens.Task) ([]lens.ResultRow, error) {
	searchURL, err := s.searchURL(task.URL)
	if err != nil {
		return nil, err
	}

	if err := sess.Navigate(ctx, searchURL); err != nil {
		return nil, err
	}

	landing, err := sess.OuterHTML(ctx, "html")
	if err != nil {
		return nil, err
	}
	if strings.Contains(landing, s.cfg.Selectors.NoImageMarker) {
		return nil, lens.Permanent(fmt.Errorf("%w: %s", lens.ErrNoImage, task.URL))
	}

	if err := sess.WaitVisible(ctx, s.cfg.Selectors.SourceButton); err != nil {
		return nil, err
	}
	if err := sess.Click(ctx, s.cfg.Selectors.SourceButton); err != nil {
		return nil, err
	}
	if err := sess.WaitVisible(ctx, s.cfg.Selectors.ResultList); err != nil {
		return nil, err
	}

	html, err := sess.OuterHTML(ctx, "html")
	if err != nil {
		return nil, err
	}

	rows, err := parseResults(html, task, s.cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("scraped lens results",
		zap.String("task_id", task.ID),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// searchURL validates the image URL and builds the uploadbyurl link.
// Bad input is permanent: no retry will fix a malformed URL.
func (s *LensScraper) searchURL(imageURL string) (string, error) {
	parsed, err := url.ParseRequestURI(imageURL)
	if err != nil {
		return "", lens.Permanent(fmt.Errorf("parse image url %q: %w", imageURL, err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", lens.Permanent(fmt.Errorf("unsupported scheme %q in image url %q", parsed.Scheme, imageURL))
	}
	if parsed.Host == "" {
		return "", lens.Permanent(fmt.Errorf("image url %q has no host", imageURL))
	}
	return s.cfg.Endpoint + "?url=" + url.QueryEscape(imageURL), nil
}

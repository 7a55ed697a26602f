// Package probe pre-checks image URLs with a plain HTTP fetch so a
// browser session is not spent on inputs Lens will reject anyway.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
)

// Config controls probe fetch behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// ImageProbe implements lens.Prober using a Colly collector.
type ImageProbe struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds an ImageProbe.
func New(cfg Config, logger *zap.Logger) *ImageProbe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// colly v2.1.0's Async option ignores its argument and always turns
	// async on, so rely on the synchronous default instead.
	c := colly.NewCollector()
	c.IgnoreRobotsTxt = true
	// Retried tasks probe the same URL again; the visit dedup store is
	// shared across clones, so revisits must be allowed.
	c.AllowURLRevisit = true
	return &ImageProbe{cfg: cfg, base: c, logger: logger}
}

// Probe fetches imageURL and reports whether it plausibly serves an
// image. Unfixable inputs come back permanent; everything else that
// fails is transient and worth a retry.
func (p *ImageProbe) Probe(ctx context.Context, imageURL string) error {
	parsed, err := url.ParseRequestURI(imageURL)
	if err != nil {
		return lens.Permanent(fmt.Errorf("parse image url %q: %w", imageURL, err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return lens.Permanent(fmt.Errorf("unsupported scheme %q for image url", parsed.Scheme))
	}

	collector := p.base.Clone()
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}
	collector.SetRequestTimeout(p.cfg.Timeout)

	result := newProbeResult()
	collector.OnResponse(func(r *colly.Response) {
		result.record(r.StatusCode, r.Headers.Get("Content-Type"), nil)
	})
	collector.OnError(func(r *colly.Response, visitErr error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		result.record(status, "", visitErr)
	})

	if err := p.visit(ctx, collector, imageURL); err != nil {
		return err
	}
	return result.classify(imageURL)
}

// visit runs the blocking collector fetch while still honoring ctx.
func (p *ImageProbe) visit(ctx context.Context, collector *colly.Collector, imageURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(imageURL)
	}()
	select {
	case err := <-done:
		if err != nil {
			// Visit itself only fails before any request is made
			// (scheme, dedupe, URL shape), so nothing a retry fixes.
			return lens.Permanent(fmt.Errorf("probe visit %s: %w", imageURL, err))
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("probe wait: %w", ctx.Err())
	}
}

type probeResult struct {
	mu          sync.Mutex
	status      int
	contentType string
	err         error
	seen        bool
}

func newProbeResult() *probeResult {
	return &probeResult{}
}

func (r *probeResult) record(status int, contentType string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen {
		return
	}
	r.seen = true
	r.status = status
	r.contentType = contentType
	r.err = err
}

func (r *probeResult) classify(imageURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case !r.seen:
		return lens.Transient(fmt.Errorf("probe %s: no response observed", imageURL))
	case r.err != nil && permanentStatus(r.status):
		return lens.Permanent(fmt.Errorf("probe %s: status %d: %w", imageURL, r.status, r.err))
	case r.err != nil && r.status >= 500:
		return lens.Transient(fmt.Errorf("probe %s: status %d: %w", imageURL, r.status, r.err))
	case r.err != nil:
		return lens.Transient(fmt.Errorf("probe %s: %w", imageURL, r.err))
	case !imageContentType(r.contentType):
		return lens.Permanent(fmt.Errorf("probe %s: content type %q is not an image", imageURL, r.contentType))
	default:
		return nil
	}
}

func permanentStatus(status int) bool {
	switch status {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusGone,
		http.StatusRequestURITooLong:
		return true
	default:
		return false
	}
}

// imageContentType accepts image/* plus the vague types CDNs use.
func imageContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case ct == "":
		return true
	case strings.HasPrefix(ct, "image/"):
		return true
	case ct == "application/octet-stream":
		return true
	default:
		return false
	}
}

// Package session provides chromedp-backed browser sessions. Each
// session is one tab owned by a single worker for one scrape attempt.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
)

// Config controls browser allocation and per-operation deadlines.
type Config struct {
	UserAgent      string
	Headless       bool
	NavTimeout     time.Duration
	InitRetries    int
	InitRetryDelay time.Duration
	QPS            float64
}

// Provider implements lens.SessionFactory on top of a shared chromedp
// exec allocator. Safe for concurrent use; sessions are not.
type Provider struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewProvider builds the exec allocator. The browser process itself is
// launched lazily by the first session.
func NewProvider(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	if cfg.InitRetries <= 0 {
		cfg.InitRetries = 3
	}
	if cfg.InitRetryDelay <= 0 {
		cfg.InitRetryDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	var limiter *rate.Limiter
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}

	return &Provider{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		limiter:     limiter,
		logger:      logger,
	}, nil
}

// Close tears down the allocator and any remaining browser processes.
func (p *Provider) Close() {
	p.allocCancel()
}

// NewSession opens a fresh tab context, retrying allocation a few times
// since headless Chrome startup is flaky under load.
func (p *Provider) NewSession(ctx context.Context) (lens.Session, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.InitRetries; attempt++ {
		tabCtx, tabCancel := chromedp.NewContext(p.allocator)
		warmCtx, warmCancel := context.WithTimeout(tabCtx, p.cfg.NavTimeout)
		err := chromedp.Run(warmCtx, p.setupActions()...)
		warmCancel()
		if err == nil {
			return &tabSession{
				ctx:     tabCtx,
				cancel:  tabCancel,
				timeout: p.cfg.NavTimeout,
				limiter: p.limiter,
			}, nil
		}
		tabCancel()
		lastErr = err
		p.logger.Warn("browser session init failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.cfg.InitRetries),
			zap.Error(err),
		)
		if attempt < p.cfg.InitRetries {
			select {
			case <-time.After(p.cfg.InitRetryDelay):
			case <-ctx.Done():
				return nil, fmt.Errorf("session init wait: %w", ctx.Err())
			}
		}
	}
	return nil, lens.DriverCrash(fmt.Errorf("init browser session after %d attempts: %w", p.cfg.InitRetries, lastErr))
}

func (p *Provider) setupActions() chromedp.Tasks {
	tasks := chromedp.Tasks{network.Enable()}
	if p.cfg.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(p.cfg.UserAgent))
	}
	return tasks
}

// tabSession wraps one chromedp tab context.
type tabSession struct {
	ctx       context.Context
	cancel    context.CancelFunc
	timeout   time.Duration
	limiter   *rate.Limiter
	closeOnce sync.Once
}

// Navigate loads url and waits for the body to be ready. Navigation is
// rate limited so a large batch stays polite toward the Lens endpoint.
func (s *tabSession) Navigate(ctx context.Context, url string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return lens.Transient(fmt.Errorf("navigation rate limit: %w", err))
		}
	}
	err := s.run(ctx, chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	})
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// WaitVisible blocks until the selector matches a visible node.
func (s *tabSession) WaitVisible(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Tasks{chromedp.WaitVisible(selector, chromedp.ByQuery)}); err != nil {
		return fmt.Errorf("wait visible %q: %w", selector, err)
	}
	return nil
}

// Click clicks the first node matching selector.
func (s *tabSession) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Tasks{chromedp.Click(selector, chromedp.ByQuery)}); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// OuterHTML returns the rendered markup for the first matching node.
func (s *tabSession) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := s.run(ctx, chromedp.Tasks{chromedp.OuterHTML(selector, &html, chromedp.ByQuery)})
	if err != nil {
		return "", fmt.Errorf("outer html %q: %w", selector, err)
	}
	return html, nil
}

// Close releases the tab. Safe to call more than once.
func (s *tabSession) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

func (s *tabSession) run(ctx context.Context, tasks chromedp.Tasks) error {
	opCtx, opCancel := context.WithTimeout(s.ctx, s.timeout)
	defer opCancel()

	stop := forwardCancel(ctx, opCancel)
	defer stop()

	if err := chromedp.Run(opCtx, tasks); err != nil {
		return s.mapError(ctx, opCtx, err)
	}
	return nil
}

// mapError tags chromedp failures by mechanism: the operation deadline
// means a slow page (transient); everything else means the tab or
// browser died underneath us.
func (s *tabSession) mapError(callerCtx, opCtx context.Context, err error) error {
	switch {
	case callerCtx.Err() != nil:
		return callerCtx.Err()
	case errors.Is(opCtx.Err(), context.DeadlineExceeded):
		return lens.Transient(err)
	case errors.Is(err, context.DeadlineExceeded):
		return lens.Transient(err)
	default:
		return lens.DriverCrash(err)
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

package lens

import (
	"context"
	"time"
)

// Session is one browser tab owned by a single worker for the duration
// of one scrape attempt. Close must be safe to call on every exit path.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	OuterHTML(ctx context.Context, selector string) (string, error)
	Close() error
}

// SessionFactory creates sessions. Implementations must be safe for
// concurrent use; sessions themselves are not shared across workers.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Scraper resolves one task into result rows using the supplied session.
type Scraper interface {
	Scrape(ctx context.Context, sess Session, task Task) ([]ResultRow, error)
}

// Prober cheaply checks an image URL before a browser session is spent.
type Prober interface {
	Probe(ctx context.Context, imageURL string) error
}

// Clock returns the current time and provides cancellable sleeps so
// backoff behavior is testable.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RetryPolicy decides retry eligibility and the delay between attempts.
// The attempt argument is the number of attempts already made.
type RetryPolicy interface {
	ShouldRetry(kind Kind, attempt int) bool
	Backoff(attempt int) time.Duration
}

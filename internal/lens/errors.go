package lens

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind buckets scrape errors by retry eligibility.
type Kind int

// Error kinds, ordered roughly by severity.
const (
	// KindNone means no error occurred.
	KindNone Kind = iota
	// KindTransient covers network and navigation timeouts; retryable.
	KindTransient
	// KindDriverCrash covers browser/driver failures; retryable after
	// the session is recreated.
	KindDriverCrash
	// KindUnparseable means the page rendered but the expected result
	// markup was absent; retryable within the normal budget.
	KindUnparseable
	// KindPermanent covers malformed URLs and Lens rejecting the image;
	// never retried.
	KindPermanent
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindDriverCrash:
		return "driver_crash"
	case KindUnparseable:
		return "unparseable"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Sentinel causes surfaced by the scraper.
var (
	// ErrNoImage is returned when Lens reports no image at the URL.
	ErrNoImage = errors.New("no image at that URL")
	// ErrMissingResults is returned when the rendered page lacks the
	// visual-match list entirely.
	ErrMissingResults = errors.New("results markup not found")
)

// ScrapeError attaches a Kind to an underlying cause.
type ScrapeError struct {
	Kind Kind
	Err  error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Transient tags err as retryable.
func Transient(err error) error {
	return &ScrapeError{Kind: KindTransient, Err: err}
}

// DriverCrash tags err as a browser failure needing a fresh session.
func DriverCrash(err error) error {
	return &ScrapeError{Kind: KindDriverCrash, Err: err}
}

// Unparseable tags err as a page-structure failure.
func Unparseable(err error) error {
	return &ScrapeError{Kind: KindUnparseable, Err: err}
}

// Permanent tags err as not worth retrying.
func Permanent(err error) error {
	return &ScrapeError{Kind: KindPermanent, Err: err}
}

// Classify maps an error to its retry bucket. Untagged errors default
// to transient so flaky driver plumbing still gets the retry budget;
// context cancellation is permanent because the caller is going away.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	return KindTransient
}

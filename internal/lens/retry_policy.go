package lens

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// ExponentialBackoff implements RetryPolicy with jittered backoff.
// MaxRetries counts retries after the initial attempt, so a budget of
// R allows 1+R attempts total.
type ExponentialBackoff struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewExponentialBackoff builds a policy. Non-positive delays fall back
// to defaults; a negative retry budget is treated as zero.
func NewExponentialBackoff(maxRetries int, base, max time.Duration) *ExponentialBackoff {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Second
	}
	return &ExponentialBackoff{
		maxRetries: maxRetries,
		baseDelay:  base,
		maxDelay:   max,
	}
}

// ShouldRetry reports whether another attempt is allowed after the
// given number of completed attempts ended with an error of kind.
func (p *ExponentialBackoff) ShouldRetry(kind Kind, attempt int) bool {
	if attempt > p.maxRetries {
		return false
	}
	switch kind {
	case KindTransient, KindDriverCrash, KindUnparseable:
		return true
	default:
		return false
	}
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialBackoff) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialBackoff) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
)

// fakeClock records sleeps without actually waiting.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

// fakeFactory hands out fakeSessions and counts them.
type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error
}

func (f *fakeFactory) NewSession(context.Context) (lens.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSession{}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeFactory) allClosedOnce(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.sessions {
		require.Equalf(t, 1, s.closed, "session %d close count", i)
	}
}

type fakeSession struct {
	closed int
}

func (s *fakeSession) Navigate(context.Context, string) error       { return nil }
func (s *fakeSession) WaitVisible(context.Context, string) error    { return nil }
func (s *fakeSession) Click(context.Context, string) error          { return nil }
func (s *fakeSession) OuterHTML(context.Context, string) (string, error) {
	return "", nil
}
func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

// scriptedScraper fails the first `fails` attempts with err, then
// returns rows.
type scriptedScraper struct {
	mu       sync.Mutex
	attempts int
	fails    int
	err      error
	rows     []lens.ResultRow
}

func (s *scriptedScraper) Scrape(_ context.Context, _ lens.Session, _ lens.Task) ([]lens.ResultRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.fails {
		return nil, s.err
	}
	return s.rows, nil
}

func (s *scriptedScraper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func newWorker(factory *fakeFactory, scraper lens.Scraper, maxRetries int, clock *fakeClock) *Worker {
	policy := lens.NewExponentialBackoff(maxRetries, time.Millisecond, 10*time.Millisecond)
	return New(factory, scraper, nil, policy, clock, nil, "run-test", zap.NewNop())
}

func rowsFor(id string, n int) []lens.ResultRow {
	rows := make([]lens.ResultRow, n)
	for i := range rows {
		rows[i] = lens.ResultRow{TaskID: id, Position: i + 1}
	}
	return rows
}

func TestProcessFirstAttemptSuccess(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	scraper := &scriptedScraper{rows: rowsFor("A", 3)}
	w := newWorker(factory, scraper, 5, newFakeClock())

	out := w.Process(context.Background(), lens.Task{ID: "A", URL: "http://x/1.jpg"})
	require.False(t, out.Failed())
	require.Len(t, out.Rows, 3)
	require.Equal(t, 1, out.Attempts)
	require.Equal(t, []int{1, 2, 3}, []int{out.Rows[0].Position, out.Rows[1].Position, out.Rows[2].Position})
	factory.allClosedOnce(t)
}

func TestProcessRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	scraper := &scriptedScraper{
		fails: 3,
		err:   lens.Transient(errors.New("network timeout")),
		rows:  rowsFor("B", 1),
	}
	clock := newFakeClock()
	w := newWorker(factory, scraper, 5, clock)

	out := w.Process(context.Background(), lens.Task{ID: "B", URL: "http://x/2.jpg"})
	require.False(t, out.Failed())
	require.Len(t, out.Rows, 1)
	require.Equal(t, 4, out.Attempts)
	require.Equal(t, 4, scraper.count())
	require.Equal(t, 3, clock.sleepCount())
	require.Equal(t, 4, factory.created())
	factory.allClosedOnce(t)
}

func TestProcessExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	scraper := &scriptedScraper{
		fails: 100,
		err:   lens.Transient(errors.New("network timeout")),
	}
	w := newWorker(factory, scraper, 2, newFakeClock())

	out := w.Process(context.Background(), lens.Task{ID: "B", URL: "http://x/2.jpg"})
	require.True(t, out.Failed())
	// initial attempt + 2 retries
	require.Equal(t, 3, scraper.count())
	require.Equal(t, 3, out.Failure.Attempts)
	require.Equal(t, "B", out.Failure.TaskID)
	require.Contains(t, out.Failure.Reason, "network timeout")
	factory.allClosedOnce(t)
}

func TestProcessZeroRetriesMakesOneAttempt(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	scraper := &scriptedScraper{fails: 100, err: lens.Transient(errors.New("boom"))}
	clock := newFakeClock()
	w := newWorker(factory, scraper, 0, clock)

	out := w.Process(context.Background(), lens.Task{ID: "C", URL: "http://x/3.jpg"})
	require.True(t, out.Failed())
	require.Equal(t, 1, scraper.count())
	require.Zero(t, clock.sleepCount())
}

func TestProcessPermanentFailsImmediately(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	scraper := &scriptedScraper{
		fails: 100,
		err:   lens.Permanent(lens.ErrNoImage),
	}
	clock := newFakeClock()
	w := newWorker(factory, scraper, 10, clock)

	out := w.Process(context.Background(), lens.Task{ID: "D", URL: "http://x/4.jpg"})
	require.True(t, out.Failed())
	require.Equal(t, 1, scraper.count())
	require.Zero(t, clock.sleepCount())
	require.Equal(t, 1, out.Failure.Attempts)
}

func TestProcessDriverCrashGetsFreshSession(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	scraper := &scriptedScraper{
		fails: 2,
		err:   lens.DriverCrash(errors.New("tab gone")),
		rows:  rowsFor("E", 1),
	}
	w := newWorker(factory, scraper, 5, newFakeClock())

	out := w.Process(context.Background(), lens.Task{ID: "E", URL: "http://x/5.jpg"})
	require.False(t, out.Failed())
	// one session per attempt: crashes never leak into the next try
	require.Equal(t, 3, factory.created())
	factory.allClosedOnce(t)
}

func TestProcessZeroRowSuccessIsNotFailure(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	scraper := &scriptedScraper{rows: nil}
	w := newWorker(factory, scraper, 2, newFakeClock())

	out := w.Process(context.Background(), lens.Task{ID: "F", URL: "http://x/6.jpg"})
	require.False(t, out.Failed())
	require.Empty(t, out.Rows)
	require.Equal(t, 1, out.Attempts)
}

func TestProcessCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	factory := &fakeFactory{}
	scraper := &scriptedScraper{rows: rowsFor("G", 1)}
	w := newWorker(factory, scraper, 5, newFakeClock())

	out := w.Process(ctx, lens.Task{ID: "G", URL: "http://x/7.jpg"})
	require.True(t, out.Failed())
	require.Zero(t, factory.created())
}

func TestProcessSessionInitFailureIsRetried(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{err: lens.DriverCrash(errors.New("chrome refused to start"))}
	scraper := &scriptedScraper{rows: rowsFor("H", 1)}
	w := newWorker(factory, scraper, 1, newFakeClock())

	out := w.Process(context.Background(), lens.Task{ID: "H", URL: "http://x/8.jpg"})
	require.True(t, out.Failed())
	require.Equal(t, 2, out.Failure.Attempts)
	require.Zero(t, scraper.count())
}

type probeFunc func(ctx context.Context, imageURL string) error

func (f probeFunc) Probe(ctx context.Context, imageURL string) error {
	return f(ctx, imageURL)
}

func TestProcessProbeShortCircuitsPermanentInput(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	scraper := &scriptedScraper{rows: rowsFor("I", 1)}
	policy := lens.NewExponentialBackoff(5, time.Millisecond, 10*time.Millisecond)
	prober := probeFunc(func(context.Context, string) error {
		return lens.Permanent(errors.New("content type text/html is not an image"))
	})
	w := New(factory, scraper, prober, policy, newFakeClock(), nil, "run-test", zap.NewNop())

	out := w.Process(context.Background(), lens.Task{ID: "I", URL: "http://x/9.jpg"})
	require.True(t, out.Failed())
	require.Zero(t, factory.created())
	require.Zero(t, scraper.count())
}

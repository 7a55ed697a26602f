package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func attemptEvent(taskID string, attempt int) Event {
	return Event{
		TS:      time.Now().UTC(),
		Stage:   StageAttempt,
		TaskID:  taskID,
		Attempt: attempt,
		Outcome: OutcomeRetrying,
	}
}

func TestHubDeliversEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(attemptEvent("a", 1))
	hub.Emit(attemptEvent("a", 2))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close(context.Background()))
	require.True(t, sink.closed)
}

func TestHubFlushesOnClose(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: time.Hour}, sink)

	hub.Emit(attemptEvent("a", 1))
	require.NoError(t, hub.Close(context.Background()))

	require.Len(t, sink.snapshot(), 1)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 5 * time.Millisecond}, sink)

	hub.Emit(Event{Stage: StageAttempt}) // missing TS and task id
	hub.Emit(attemptEvent("ok", 1))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Close(context.Background()))
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(attemptEvent("late", 1))
	require.Empty(t, sink.snapshot())
}

func TestHubDropsUnderBackpressure(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	slow := &blockingSink{release: block}
	hub := NewHub(Config{BufferSize: 1, MaxBatchEvents: 1, MaxBatchWait: time.Millisecond}, slow)

	for i := 0; i < 100; i++ {
		hub.Emit(attemptEvent("x", 1))
	}
	require.Positive(t, hub.Dropped())

	close(block)
	require.NoError(t, hub.Close(context.Background()))
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(attemptEvent("a", 1))
	require.Zero(t, hub.Dropped())
	require.NoError(t, hub.Close(context.Background()))
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Consume(ctx context.Context, _ []Event) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func (s *blockingSink) Close(context.Context) error {
	return nil
}

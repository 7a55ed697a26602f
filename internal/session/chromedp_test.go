package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jester6136/google-lens-crawl/internal/lens"
)

func TestNewProviderAppliesDefaults(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(Config{}, nil)
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, 60*time.Second, p.cfg.NavTimeout)
	require.Equal(t, 3, p.cfg.InitRetries)
	require.Equal(t, 2*time.Second, p.cfg.InitRetryDelay)
	require.Nil(t, p.limiter)
}

func TestNewProviderEnablesLimiter(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(Config{QPS: 2}, nil)
	require.NoError(t, err)
	defer p.Close()
	require.NotNil(t, p.limiter)
}

func TestMapErrorCallerCancelWins(t *testing.T) {
	t.Parallel()

	s := &tabSession{}
	caller, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.mapError(caller, context.Background(), errors.New("chromedp run: boom"))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, lens.KindPermanent, lens.Classify(err))
}

func TestMapErrorDeadlineIsTransient(t *testing.T) {
	t.Parallel()

	s := &tabSession{}
	op, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	err := s.mapError(context.Background(), op, errors.New("chromedp run: timeout"))
	require.Equal(t, lens.KindTransient, lens.Classify(err))
}

func TestMapErrorDefaultIsDriverCrash(t *testing.T) {
	t.Parallel()

	s := &tabSession{}
	err := s.mapError(context.Background(), context.Background(), errors.New("browser gone"))
	require.Equal(t, lens.KindDriverCrash, lens.Classify(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	canceled := false
	s := &tabSession{cancel: func() { canceled = true }}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.True(t, canceled)
}

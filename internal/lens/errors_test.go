package lens

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyTaggedErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	require.Equal(t, KindTransient, Classify(Transient(cause)))
	require.Equal(t, KindDriverCrash, Classify(DriverCrash(cause)))
	require.Equal(t, KindUnparseable, Classify(Unparseable(cause)))
	require.Equal(t, KindPermanent, Classify(Permanent(cause)))
}

func TestClassifyWrappedTag(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("scrape attempt: %w", Permanent(ErrNoImage))
	require.Equal(t, KindPermanent, Classify(err))
	require.ErrorIs(t, err, ErrNoImage)
}

func TestClassifyUntaggedDefaultsToTransient(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindTransient, Classify(errors.New("weird driver noise")))
}

func TestClassifyContextCanceledIsPermanent(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindPermanent, Classify(context.Canceled))
	require.Equal(t, KindPermanent, Classify(fmt.Errorf("navigate: %w", context.Canceled)))
}

func TestClassifyNil(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindNone, Classify(nil))
}

func TestKindString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "transient", KindTransient.String())
	require.Equal(t, "driver_crash", KindDriverCrash.String())
	require.Equal(t, "unparseable", KindUnparseable.String())
	require.Equal(t, "permanent", KindPermanent.String())
	require.Equal(t, "unknown", Kind(42).String())
}

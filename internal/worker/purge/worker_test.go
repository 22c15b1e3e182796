package purge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePurger struct {
	cutoff time.Time
	err    error
}

func (p *fakePurger) Purge(_ context.Context, cutoff time.Time) (int64, int64, error) {
	p.cutoff = cutoff
	if p.err != nil {
		return 0, 0, p.err
	}

	return 3, 5, nil
}

func TestSweepUsesHorizon(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	purger := &fakePurger{}

	w := newWorker(purger, 72*time.Hour, zaptest.NewLogger(t))
	w.now = func() time.Time { return now }

	result, err := w.Sweep(t.Context())
	require.NoError(t, err)

	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, want, purger.cutoff)
	assert.Equal(t, &Result{Cutoff: want, Precision: 3, Ranking: 5}, result)
}

func TestSweepReturnsErrors(t *testing.T) {
	t.Parallel()

	failure := errors.New("connection reset")
	w := newWorker(&fakePurger{err: failure}, time.Hour, zaptest.NewLogger(t))

	_, err := w.Sweep(t.Context())
	require.ErrorIs(t, err, failure)
}

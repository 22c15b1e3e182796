package vacation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/discord"
	"github.com/fourmitrack/fourmitrack/internal/fourmizzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeFetcher map[string]*fourmizzz.Profile

func (f fakeFetcher) FetchProfile(_ context.Context, _ *types.Server, name string) (*fourmizzz.Profile, error) {
	profile, ok := f[name]
	if !ok {
		return nil, fourmizzz.ErrPlayerNotFound
	}

	return profile, nil
}

type fakeStore struct {
	mu      sync.Mutex
	targets []*types.Target
	cleared []int64
}

func (s *fakeStore) ListOnVacation(context.Context) ([]*types.Target, error) {
	return s.targets, nil
}

func (s *fakeStore) SetVacation(_ context.Context, targetID int64, onVacation bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !onVacation {
		s.cleared = append(s.cleared, targetID)
	}

	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*discord.Message
}

func (n *fakeNotifier) Send(_ context.Context, msg *discord.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, msg)

	return nil
}

func TestCheckClearsReturningTargets(t *testing.T) {
	t.Parallel()

	server := &types.Server{ID: 1, Name: "s2"}
	away := &types.Target{ID: 1, Name: "away", Server: server, OnVacation: true}
	back := &types.Target{ID: 2, Name: "back", Server: server, OnVacation: true}

	store := &fakeStore{targets: []*types.Target{away, back}}
	notifier := &fakeNotifier{}
	fetcher := fakeFetcher{
		"away": {OnVacation: true},
		"back": {OnVacation: false},
	}

	w := newWorker(store, fetcher, notifier, time.UTC, zaptest.NewLogger(t))
	w.now = func() time.Time { return time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC) }

	require.NoError(t, w.Check(t.Context()))

	assert.Equal(t, []int64{2}, store.cleared)
	assert.True(t, away.OnVacation)
	assert.False(t, back.OnVacation)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "back is no longer on vacation!", notifier.sent[0].Title)
	assert.Equal(t, "s2", notifier.sent[0].Category)
	assert.Equal(t, "02/03/2026 08:30:00", notifier.sent[0].Description)
}

func TestCheckReportsFetchFailures(t *testing.T) {
	t.Parallel()

	server := &types.Server{ID: 1, Name: "s2"}
	gone := &types.Target{ID: 3, Name: "gone", Server: server, OnVacation: true}

	store := &fakeStore{targets: []*types.Target{gone}}
	w := newWorker(store, fakeFetcher{}, &fakeNotifier{}, time.UTC, zaptest.NewLogger(t))

	err := w.Check(t.Context())
	require.ErrorIs(t, err, fourmizzz.ErrPlayerNotFound)
	assert.Empty(t, store.cleared)
}

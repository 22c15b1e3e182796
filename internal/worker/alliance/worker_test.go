package alliance

import (
	"context"
	"sync"
	"testing"

	"github.com/fourmitrack/fourmitrack/internal/database/service"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/fourmizzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeFetcher map[string][]string

func (f fakeFetcher) FetchAllianceMembers(_ context.Context, _ *types.Server, alliance string) ([]string, error) {
	members, ok := f[alliance]
	if !ok {
		return nil, fourmizzz.ErrAllianceNotFound
	}

	return members, nil
}

type fakeStore struct {
	mu        sync.Mutex
	alliances []*types.Alliance
	synced    map[string][]string
}

func (s *fakeStore) ListAlliances(context.Context) ([]*types.Alliance, error) {
	return s.alliances, nil
}

func (s *fakeStore) SyncMembers(
	_ context.Context, alliance *types.Alliance, members []string,
) (*service.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.synced[alliance.Name] = members

	return &service.SyncResult{Added: members}, nil
}

func TestSyncAll(t *testing.T) {
	t.Parallel()

	server := &types.Server{ID: 1, Name: "s1"}
	store := &fakeStore{
		alliances: []*types.Alliance{
			{ID: 1, Name: "FOO", Server: server},
			{ID: 2, Name: "BAR", Server: server},
			{ID: 3, Name: "GONE", Server: server},
		},
		synced: make(map[string][]string),
	}
	fetcher := fakeFetcher{
		"FOO": {"alice", "bob"},
		"BAR": {"carol"},
	}

	syncer := NewSyncer(store, fetcher, zaptest.NewLogger(t))

	err := syncer.SyncAll(t.Context())
	require.ErrorIs(t, err, fourmizzz.ErrAllianceNotFound)

	assert.Equal(t, map[string][]string{
		"FOO": {"alice", "bob"},
		"BAR": {"carol"},
	}, store.synced)
}

func TestSyncRequiresServer(t *testing.T) {
	t.Parallel()

	syncer := NewSyncer(&fakeStore{synced: map[string][]string{}}, fakeFetcher{}, zaptest.NewLogger(t))

	_, err := syncer.Sync(t.Context(), &types.Alliance{Name: "FOO"})
	require.Error(t, err)
}

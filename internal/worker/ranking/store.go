package ranking

import (
	"context"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
)

// Fetcher reads ranking pages from the game site.
type Fetcher interface {
	FetchRankingPage(ctx context.Context, server *types.Server, page int) ([]*types.RankingEntry, error)
}

// Store is the persistence used by the ranking worker.
type Store interface {
	ListServers(ctx context.Context) ([]*types.Server, error)
	Floor(ctx context.Context, serverID int64) (int64, bool, error)
	RecordRankingPage(
		ctx context.Context, serverID int64, observedAt time.Time, entries []*types.RankingEntry,
	) ([]*types.RankingSnapshot, error)
	SaveScanDepth(ctx context.Context, state types.ScanState, depth int) error
}

type dbStore struct {
	db database.Client
}

// NewStore adapts a database client to the Store interface.
func NewStore(db database.Client) Store {
	return &dbStore{db: db}
}

func (s *dbStore) ListServers(ctx context.Context) ([]*types.Server, error) {
	return s.db.Model().Server().List(ctx)
}

func (s *dbStore) Floor(ctx context.Context, serverID int64) (int64, bool, error) {
	return s.db.Model().Precision().FloorByServer(ctx, serverID)
}

func (s *dbStore) RecordRankingPage(
	ctx context.Context, serverID int64, observedAt time.Time, entries []*types.RankingEntry,
) ([]*types.RankingSnapshot, error) {
	return s.db.Service().Snapshot().RecordRankingPage(ctx, serverID, observedAt, entries)
}

func (s *dbStore) SaveScanDepth(ctx context.Context, state types.ScanState, depth int) error {
	return s.db.Model().Server().SaveScanDepth(ctx, state, depth)
}

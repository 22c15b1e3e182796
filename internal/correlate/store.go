package correlate

import (
	"context"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
)

// Store is the snapshot access needed by the engine.
type Store interface {
	LatestRanking(ctx context.Context, serverID int64, name string) (*types.RankingSnapshot, error)
	RankingWindow(
		ctx context.Context, serverID int64, start, end time.Time, excludeName string,
	) ([]*types.RankingSnapshot, error)
	MarkProcessed(ctx context.Context, ids []int64) error
}

type dbStore struct {
	repo *database.Repository
}

// NewStore returns a Store backed by the database models.
func NewStore(repo *database.Repository) Store {
	return &dbStore{repo: repo}
}

func (s *dbStore) LatestRanking(ctx context.Context, serverID int64, name string) (*types.RankingSnapshot, error) {
	return s.repo.Ranking().Latest(ctx, serverID, name)
}

func (s *dbStore) RankingWindow(
	ctx context.Context, serverID int64, start, end time.Time, excludeName string,
) ([]*types.RankingSnapshot, error) {
	return s.repo.Ranking().Window(ctx, serverID, start, end, excludeName)
}

func (s *dbStore) MarkProcessed(ctx context.Context, ids []int64) error {
	return s.repo.Precision().MarkProcessed(ctx, ids)
}

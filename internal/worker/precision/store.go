package precision

import (
	"context"

	"github.com/fourmitrack/fourmitrack/internal/database"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/discord"
	"github.com/fourmitrack/fourmitrack/internal/fourmizzz"
)

// Fetcher reads player profiles from the game site.
type Fetcher interface {
	FetchProfile(ctx context.Context, server *types.Server, name string) (*fourmizzz.Profile, error)
}

// Notifier delivers vacation notifications.
type Notifier interface {
	Send(ctx context.Context, msg *discord.Message) error
}

// Store is the persistence used by the precision worker.
type Store interface {
	ListTargets(ctx context.Context) ([]*types.Target, error)
	RecordPrecision(ctx context.Context, targetID int64, obs types.Observation) (*types.PrecisionSnapshot, error)
	SetVacation(ctx context.Context, targetID int64, onVacation bool) error
}

type dbStore struct {
	db database.Client
}

// NewStore adapts a database client to the Store interface.
func NewStore(db database.Client) Store {
	return &dbStore{db: db}
}

func (s *dbStore) ListTargets(ctx context.Context) ([]*types.Target, error) {
	return s.db.Model().Target().List(ctx)
}

func (s *dbStore) RecordPrecision(
	ctx context.Context, targetID int64, obs types.Observation,
) (*types.PrecisionSnapshot, error) {
	return s.db.Service().Snapshot().RecordPrecision(ctx, targetID, obs)
}

func (s *dbStore) SetVacation(ctx context.Context, targetID int64, onVacation bool) error {
	return s.db.Model().Target().SetVacation(ctx, targetID, onVacation)
}

// Package alliance keeps the targets of tracked alliances in sync with their
// member lists.
package alliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database"
	"github.com/fourmitrack/fourmitrack/internal/database/service"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/progress"
	"github.com/fourmitrack/fourmitrack/internal/setup"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry"
	"github.com/fourmitrack/fourmitrack/internal/task"
	"github.com/fourmitrack/fourmitrack/internal/worker/core"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"go.uber.org/zap"
)

// WorkerType identifies the worker in status reports.
const WorkerType = "alliance"

// syncConcurrency bounds alliances synced at once.
const syncConcurrency = 4

// Fetcher reads alliance member lists from the game site.
type Fetcher interface {
	FetchAllianceMembers(ctx context.Context, server *types.Server, alliance string) ([]string, error)
}

// Store is the persistence used by the alliance sync.
type Store interface {
	ListAlliances(ctx context.Context) ([]*types.Alliance, error)
	SyncMembers(ctx context.Context, alliance *types.Alliance, members []string) (*service.SyncResult, error)
}

type dbStore struct {
	db database.Client
}

// NewStore adapts a database client to the Store interface.
func NewStore(db database.Client) Store {
	return &dbStore{db: db}
}

func (s *dbStore) ListAlliances(ctx context.Context) ([]*types.Alliance, error) {
	return s.db.Model().Alliance().List(ctx)
}

func (s *dbStore) SyncMembers(
	ctx context.Context, alliance *types.Alliance, members []string,
) (*service.SyncResult, error) {
	return s.db.Service().Alliance().SyncMembers(ctx, alliance, members)
}

// Syncer applies fetched member lists to the database.
type Syncer struct {
	store   Store
	fetcher Fetcher
	logger  *zap.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(store Store, fetcher Fetcher, logger *zap.Logger) *Syncer {
	return &Syncer{
		store:   store,
		fetcher: fetcher,
		logger:  logger.Named("alliance_sync"),
	}
}

// SyncAll syncs every tracked alliance. A failing alliance does not stop the others.
func (s *Syncer) SyncAll(ctx context.Context) error {
	alliances, err := s.store.ListAlliances(ctx)
	if err != nil {
		return fmt.Errorf("failed to list alliances: %w", err)
	}

	return errors.Join(task.ForEach(ctx, syncConcurrency, alliances, func(ctx context.Context, a *types.Alliance) error {
		_, err := s.Sync(ctx, a)
		return err
	})...)
}

// Sync fetches the members of one alliance and updates its targets.
func (s *Syncer) Sync(ctx context.Context, alliance *types.Alliance) (*service.SyncResult, error) {
	if alliance.Server == nil {
		return nil, fmt.Errorf("alliance without server (alliance=%s)", alliance.Name)
	}

	members, err := s.fetcher.FetchAllianceMembers(ctx, alliance.Server, alliance.Name)
	if err != nil {
		return nil, err
	}

	return s.store.SyncMembers(ctx, alliance, members)
}

// Worker periodically syncs every alliance.
type Worker struct {
	*Syncer

	bar      *progress.Bar
	reporter *core.StatusReporter
	logger   *zap.Logger
	interval time.Duration
}

// New creates a new alliance worker.
func New(app *setup.App, bar *progress.Bar, logger *zap.Logger) *Worker {
	return &Worker{
		Syncer:   NewSyncer(NewStore(app.DB), app.Fourmizzz, logger),
		bar:      bar,
		reporter: core.NewStatusReporter(app.StatusClient, WorkerType, logger),
		logger:   logger.Named("alliance_worker"),
		interval: config.Every(app.Config.Worker.Intervals.Alliance, 30*time.Minute),
	}
}

// Start begins the alliance worker's main loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Alliance Worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	for {
		w.bar.Reset()
		w.reporter.SetHealthy(true)

		w.bar.SetStepMessage("Syncing alliance members", 20)
		w.reporter.UpdateStatus("Syncing alliance members", 20)

		spanCtx, span := telemetry.Tracer().Start(ctx, "alliance.sync")
		err := w.SyncAll(spanCtx)
		span.End()

		if err != nil {
			if ctx.Err() != nil {
				return
			}

			w.logger.Error("Alliance sync failed", zap.Error(err))
			w.reporter.SetHealthy(false)
		}

		w.bar.SetStepMessage("Completed", 100)
		w.reporter.UpdateStatus("Completed", 100)

		if !utils.TickSleep(ctx, w.interval, w.logger, "alliance worker") {
			return
		}
	}
}

// Package process correlates unprocessed precision snapshots with the
// ranking moves of the same minute.
package process

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/chart"
	"github.com/fourmitrack/fourmitrack/internal/correlate"
	"github.com/fourmitrack/fourmitrack/internal/database"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/progress"
	"github.com/fourmitrack/fourmitrack/internal/setup"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry"
	"github.com/fourmitrack/fourmitrack/internal/task"
	"github.com/fourmitrack/fourmitrack/internal/worker/core"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WorkerType identifies the worker in status reports.
const WorkerType = "process"

// Processor correlates the unprocessed batch of one target.
type Processor interface {
	Process(ctx context.Context, target *types.Target, batch []*types.PrecisionSnapshot) (*correlate.Result, error)
}

// Store is the persistence used by the process worker.
type Store interface {
	UnprocessedByTarget(ctx context.Context) (map[int64][]*types.PrecisionSnapshot, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*types.Target, error)
}

type dbStore struct {
	db database.Client
}

// NewStore adapts a database client to the Store interface.
func NewStore(db database.Client) Store {
	return &dbStore{db: db}
}

func (s *dbStore) UnprocessedByTarget(ctx context.Context) (map[int64][]*types.PrecisionSnapshot, error) {
	return s.db.Model().Precision().UnprocessedByTarget(ctx)
}

func (s *dbStore) GetByIDs(ctx context.Context, ids []int64) (map[int64]*types.Target, error) {
	return s.db.Model().Target().GetByIDs(ctx, ids)
}

// Summary counts the outcomes of one processing run.
type Summary struct {
	Targets   int
	Processed int64
	Stale     int64
	Failed    int64
}

// Worker processes pending snapshots.
type Worker struct {
	store       Store
	processor   Processor
	engine      *correlate.Engine
	bar         *progress.Bar
	reporter    *core.StatusReporter
	logger      *zap.Logger
	interval    time.Duration
	concurrency int
}

// New creates a new process worker.
func New(app *setup.App, bar *progress.Bar, logger *zap.Logger) *Worker {
	engine := NewEngine(app, logger)

	w := newWorker(NewStore(app.DB), engine, app.Config.Worker.Scan.TargetConcurrency, logger)
	w.engine = engine
	w.bar = bar
	w.reporter = core.NewStatusReporter(app.StatusClient, WorkerType, logger)
	w.interval = config.Every(app.Config.Worker.Intervals.Process, 5*time.Minute)

	return w
}

// NewEngine builds the correlation engine from the application's clients.
func NewEngine(app *setup.App, logger *zap.Logger) *correlate.Engine {
	notifications := app.Config.Worker.Notifications

	loc, err := notifications.Location()
	if err != nil {
		logger.Warn("Falling back to UTC for notifications", zap.Error(err))
		loc = time.UTC
	}

	opts := []correlate.Option{correlate.WithLocation(loc)}
	if notifications.AttachChart {
		horizon := app.Config.Worker.Retention.Horizon()
		opts = append(opts, correlate.WithChart(chart.NewRenderer(app.DB.Model().Precision(), horizon, loc)))
	}

	return correlate.NewEngine(correlate.NewStore(app.DB.Model()), app.Notifier, app.Fourmizzz, logger, opts...)
}

func newWorker(store Store, processor Processor, concurrency int, logger *zap.Logger) *Worker {
	return &Worker{
		store:       store,
		processor:   processor,
		logger:      logger.Named("process_worker"),
		interval:    5 * time.Minute,
		concurrency: concurrency,
	}
}

// Start begins the process worker's main loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Process Worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()
	defer w.Close()

	for {
		w.bar.Reset()
		w.reporter.SetHealthy(true)

		w.bar.SetStepMessage("Processing snapshots", 10)
		w.reporter.UpdateStatus("Processing snapshots", 10)

		if _, err := w.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			w.logger.Error("Processing failed", zap.Error(err))
			w.reporter.SetHealthy(false)
		}

		w.bar.SetStepMessage("Waiting for next cycle", 100)
		w.reporter.UpdateStatus("Waiting for next cycle", 100)

		if !utils.TickSleep(ctx, w.interval, w.logger, "process worker") {
			return
		}
	}
}

// Close releases the engine caches.
func (w *Worker) Close() {
	if w.engine != nil {
		w.engine.Close()
	}
}

// Run processes every pending batch once.
func (w *Worker) Run(ctx context.Context) (*Summary, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "process.run")
	defer span.End()

	summary := &Summary{}

	units, err := w.units(ctx, summary)
	if err != nil {
		return nil, err
	}

	err = errors.Join(task.NewGroup(w.concurrency).Run(ctx, units)...)

	span.SetAttributes(
		attribute.Int("targets", summary.Targets),
		attribute.Int64("processed", summary.Processed),
		attribute.Int64("stale", summary.Stale),
	)

	if summary.Targets > 0 {
		w.logger.Info("Processed snapshots",
			zap.Int("targets", summary.Targets),
			zap.Int64("processed", summary.Processed),
			zap.Int64("stale", summary.Stale),
			zap.Int64("failed", summary.Failed))
	}

	return summary, err
}

// Units returns one unit per target with pending snapshots.
func (w *Worker) Units(ctx context.Context) ([]task.Unit, error) {
	return w.units(ctx, &Summary{})
}

func (w *Worker) units(ctx context.Context, summary *Summary) ([]task.Unit, error) {
	pending, err := w.store.UnprocessedByTarget(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load unprocessed snapshots: %w", err)
	}

	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	targets, err := w.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}

	units := make([]task.Unit, 0, len(ids))
	for _, id := range ids {
		target, ok := targets[id]
		if !ok {
			w.logger.Debug("Skipping snapshots of a deleted target", zap.Int64("targetID", id))
			continue
		}

		batch := pending[id]
		summary.Targets++

		units = append(units, func(ctx context.Context) error {
			result, err := w.processor.Process(ctx, target, batch)
			switch {
			case errors.Is(err, correlate.ErrStaleWindow):
				atomic.AddInt64(&summary.Stale, 1)
				return nil
			case err != nil:
				atomic.AddInt64(&summary.Failed, 1)
				return fmt.Errorf("failed to process target: %w (target=%s)", err, target.Name)
			}

			atomic.AddInt64(&summary.Processed, int64(result.Processed))

			return nil
		})
	}

	return units, nil
}

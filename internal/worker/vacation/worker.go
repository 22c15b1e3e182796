// Package vacation watches targets in vacation mode and reports their return.
package vacation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/progress"
	"github.com/fourmitrack/fourmitrack/internal/setup"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry"
	"github.com/fourmitrack/fourmitrack/internal/task"
	"github.com/fourmitrack/fourmitrack/internal/worker/core"
	"github.com/fourmitrack/fourmitrack/internal/worker/precision"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"go.uber.org/zap"
)

// WorkerType identifies the worker in status reports.
const WorkerType = "vacation"

// Store is the persistence used by the vacation worker.
type Store interface {
	ListOnVacation(ctx context.Context) ([]*types.Target, error)
	SetVacation(ctx context.Context, targetID int64, onVacation bool) error
}

// NewStore returns the target model of the database, which satisfies Store.
func NewStore(db database.Client) Store {
	return db.Model().Target()
}

// Worker re-checks every target in vacation mode.
type Worker struct {
	store       Store
	fetcher     precision.Fetcher
	notifier    precision.Notifier
	bar         *progress.Bar
	reporter    *core.StatusReporter
	logger      *zap.Logger
	interval    time.Duration
	concurrency int
	location    *time.Location
	now         func() time.Time
}

// New creates a new vacation worker.
func New(app *setup.App, bar *progress.Bar, logger *zap.Logger) *Worker {
	loc, err := app.Config.Worker.Notifications.Location()
	if err != nil {
		logger.Warn("Falling back to UTC for notifications", zap.Error(err))
		loc = time.UTC
	}

	w := newWorker(NewStore(app.DB), app.Fourmizzz, app.Notifier, loc, logger)
	w.bar = bar
	w.reporter = core.NewStatusReporter(app.StatusClient, WorkerType, logger)
	w.interval = config.Every(app.Config.Worker.Intervals.Vacation, 10*time.Minute)
	w.concurrency = app.Config.Worker.Scan.TargetConcurrency

	return w
}

func newWorker(
	store Store, fetcher precision.Fetcher, notifier precision.Notifier, loc *time.Location, logger *zap.Logger,
) *Worker {
	return &Worker{
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		logger:   logger.Named("vacation_worker"),
		interval: 10 * time.Minute,
		location: loc,
		now:      time.Now,
	}
}

// Start begins the vacation worker's main loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Vacation Worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	for {
		w.bar.Reset()
		w.reporter.SetHealthy(true)

		w.bar.SetStepMessage("Checking vacation mode", 10)
		w.reporter.UpdateStatus("Checking vacation mode", 10)

		if err := w.Check(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			w.logger.Error("Vacation check failed", zap.Error(err))
			w.reporter.SetHealthy(false)
		}

		w.bar.SetStepMessage("Waiting for next cycle", 100)
		w.reporter.UpdateStatus("Waiting for next cycle", 100)

		if !utils.TickSleep(ctx, w.interval, w.logger, "vacation worker") {
			return
		}
	}
}

// Check fetches every target in vacation mode and clears the flag of those
// who came back.
func (w *Worker) Check(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, "vacation.check")
	defer span.End()

	targets, err := w.store.ListOnVacation(ctx)
	if err != nil {
		return fmt.Errorf("failed to list targets on vacation: %w", err)
	}

	return errors.Join(task.ForEach(ctx, w.concurrency, targets, w.checkTarget)...)
}

func (w *Worker) checkTarget(ctx context.Context, target *types.Target) error {
	profile, err := w.fetcher.FetchProfile(ctx, target.Server, target.Name)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w (target=%s)", err, target.Name)
	}

	if profile.OnVacation {
		return nil
	}

	if err := w.store.SetVacation(ctx, target.ID, false); err != nil {
		return err
	}

	target.OnVacation = false

	w.logger.Info("Target left vacation mode", zap.String("target", target.Name))

	msg := precision.VacationMessage(target, false, w.now(), w.location)
	if err := w.notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send vacation notification: %w (target=%s)", err, target.Name)
	}

	return nil
}

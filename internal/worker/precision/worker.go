// Package precision takes a profile snapshot of every tracked player.
package precision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/discord"
	"github.com/fourmitrack/fourmitrack/internal/progress"
	"github.com/fourmitrack/fourmitrack/internal/setup"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry"
	"github.com/fourmitrack/fourmitrack/internal/task"
	"github.com/fourmitrack/fourmitrack/internal/worker/core"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// WorkerType identifies the worker in status reports.
const WorkerType = "precision"

// VacationLayout formats the time of vacation notifications.
const VacationLayout = "02/01/2006 15:04:05"

// Worker takes precision snapshots of every target.
type Worker struct {
	store       Store
	fetcher     Fetcher
	notifier    Notifier
	bar         *progress.Bar
	reporter    *core.StatusReporter
	logger      *zap.Logger
	interval    time.Duration
	concurrency int
	location    *time.Location
	now         func() time.Time
}

// New creates a new precision worker.
func New(app *setup.App, bar *progress.Bar, logger *zap.Logger) *Worker {
	loc, err := app.Config.Worker.Notifications.Location()
	if err != nil {
		logger.Warn("Falling back to UTC for notifications", zap.Error(err))
		loc = time.UTC
	}

	w := newWorker(NewStore(app.DB), app.Fourmizzz, app.Notifier, app.Config.Worker.Scan.TargetConcurrency, loc, logger)
	w.bar = bar
	w.reporter = core.NewStatusReporter(app.StatusClient, WorkerType, logger)
	w.interval = config.Every(app.Config.Worker.Intervals.Precision, time.Minute)

	return w
}

func newWorker(
	store Store, fetcher Fetcher, notifier Notifier, concurrency int, loc *time.Location, logger *zap.Logger,
) *Worker {
	return &Worker{
		store:       store,
		fetcher:     fetcher,
		notifier:    notifier,
		logger:      logger.Named("precision_worker"),
		interval:    time.Minute,
		concurrency: concurrency,
		location:    loc,
		now:         time.Now,
	}
}

// Start begins the precision worker's main loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Precision Worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	for {
		w.bar.Reset()
		w.reporter.SetHealthy(true)

		w.step("Taking player profiles", 10)

		if err := w.Take(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			w.logger.Error("Precision cycle failed", zap.Error(err))
			w.reporter.SetHealthy(false)
		}

		w.step("Waiting for next cycle", 100)

		if !utils.TickSleep(ctx, w.interval, w.logger, "precision worker") {
			return
		}
	}
}

// Take runs one precision cycle over every target.
func (w *Worker) Take(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, "precision.take")
	defer span.End()

	units, err := w.Units(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Int("targets", len(units)))

	err = errors.Join(task.NewGroup(w.concurrency).Run(ctx, units)...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// Units returns one unit per target.
func (w *Worker) Units(ctx context.Context) ([]task.Unit, error) {
	targets, err := w.store.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	units := make([]task.Unit, len(targets))
	for i, target := range targets {
		units[i] = func(ctx context.Context) error {
			_, err := w.TakeTarget(ctx, target)
			return err
		}
	}

	return units, nil
}

// TakeTarget fetches the profile of a target and stores it when it changed.
// It returns the stored snapshot, or nil when nothing changed.
func (w *Worker) TakeTarget(ctx context.Context, target *types.Target) (*types.PrecisionSnapshot, error) {
	profile, err := w.fetcher.FetchProfile(ctx, target.Server, target.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w (target=%s)", err, target.Name)
	}

	observedAt := w.now()

	if profile.OnVacation && !target.OnVacation {
		w.enterVacation(ctx, target, observedAt)
	}

	snapshot, err := w.store.RecordPrecision(ctx, target.ID, types.Observation{
		Time:     observedAt,
		Value:    profile.Value,
		Trophies: profile.Trophies,
	})
	if err != nil {
		return nil, err
	}

	if snapshot != nil {
		w.logger.Debug("Recorded precision snapshot",
			zap.String("target", target.Name),
			zap.Int64("value", snapshot.Value),
			zap.Int64("valueDiff", snapshot.ValueDiff),
			zap.Int64("trophiesDiff", snapshot.TrophiesDiff))
	}

	return snapshot, nil
}

// enterVacation persists the vacation flag and notifies the target's thread.
// Failures are logged so the snapshot is still taken.
func (w *Worker) enterVacation(ctx context.Context, target *types.Target, at time.Time) {
	if err := w.store.SetVacation(ctx, target.ID, true); err != nil {
		w.logger.Error("Failed to set vacation mode",
			zap.String("target", target.Name),
			zap.Error(err))

		return
	}

	target.OnVacation = true

	if err := w.notifier.Send(ctx, VacationMessage(target, true, at, w.location)); err != nil {
		w.logger.Error("Failed to send vacation notification",
			zap.String("target", target.Name),
			zap.Error(err))
	}
}

// VacationMessage builds the notification of a vacation mode change.
func VacationMessage(target *types.Target, onVacation bool, at time.Time, loc *time.Location) *discord.Message {
	title := target.Name + " is on vacation"
	if !onVacation {
		title = target.Name + " is no longer on vacation!"
	}

	return &discord.Message{
		Category:    target.Server.Name,
		Group:       target.Group(),
		Thread:      target.Name,
		Title:       title,
		Description: at.In(loc).Format(VacationLayout),
		Color:       discord.ColorVacation,
		Timestamp:   at,
	}
}

func (w *Worker) step(message string, percent int) {
	w.bar.SetStepMessage(message, int64(percent))
	w.reporter.UpdateStatus(message, percent)
}

// Package purge removes snapshots older than the retention horizon.
package purge

import (
	"context"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/progress"
	"github.com/fourmitrack/fourmitrack/internal/setup"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry"
	"github.com/fourmitrack/fourmitrack/internal/worker/core"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WorkerType identifies the worker in status reports.
const WorkerType = "purge"

// Purger deletes snapshots recorded before a cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, int64, error)
}

// Result is the outcome of one sweep.
type Result struct {
	Cutoff    time.Time
	Precision int64
	Ranking   int64
}

// Worker handles the retention sweep.
type Worker struct {
	purger   Purger
	bar      *progress.Bar
	reporter *core.StatusReporter
	logger   *zap.Logger
	horizon  time.Duration
	interval time.Duration
	now      func() time.Time
}

// New creates a new purge worker.
func New(app *setup.App, bar *progress.Bar, logger *zap.Logger) *Worker {
	w := newWorker(app.DB.Service().Snapshot(), app.Config.Worker.Retention.Horizon(), logger)
	w.bar = bar
	w.reporter = core.NewStatusReporter(app.StatusClient, WorkerType, logger)
	w.interval = config.Every(app.Config.Worker.Intervals.Purge, time.Hour)

	return w
}

func newWorker(purger Purger, horizon time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		purger:   purger,
		logger:   logger.Named("purge_worker"),
		horizon:  horizon,
		interval: time.Hour,
		now:      time.Now,
	}
}

// Start begins the purge worker's main loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Purge Worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	for {
		w.bar.Reset()
		w.reporter.SetHealthy(true)

		w.bar.SetStepMessage("Purging old snapshots", 50)
		w.reporter.UpdateStatus("Purging old snapshots", 50)

		if _, err := w.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			w.logger.Error("Retention sweep failed", zap.Error(err))
			w.reporter.SetHealthy(false)
		}

		w.bar.SetStepMessage("Completed", 100)
		w.reporter.UpdateStatus("Completed", 100)

		if !utils.TickSleep(ctx, w.interval, w.logger, "purge worker") {
			return
		}
	}
}

// Sweep deletes every snapshot older than the horizon.
func (w *Worker) Sweep(ctx context.Context) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "purge.sweep")
	defer span.End()

	cutoff := w.now().Add(-w.horizon)

	precision, ranking, err := w.purger.Purge(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("precision", precision),
		attribute.Int64("ranking", ranking),
	)

	return &Result{Cutoff: cutoff, Precision: precision, Ranking: ranking}, nil
}

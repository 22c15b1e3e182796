// Package ranking takes the hunting field leaderboard of every server and
// adapts how many of its pages are scanned.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database/models"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/progress"
	"github.com/fourmitrack/fourmitrack/internal/scan"
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
const WorkerType = "ranking"

// ErrPartialScan is returned when some pages of a server could not be taken.
var ErrPartialScan = errors.New("some ranking pages could not be taken")

// Worker takes ranking snapshots of every server.
type Worker struct {
	store           Store
	fetcher         Fetcher
	bar             *progress.Bar
	reporter        *core.StatusReporter
	logger          *zap.Logger
	interval        time.Duration
	maxPages        int
	pageConcurrency int
	now             func() time.Time
}

// New creates a new ranking worker.
func New(app *setup.App, bar *progress.Bar, logger *zap.Logger) *Worker {
	w := newWorker(NewStore(app.DB), app.Fourmizzz, &app.Config.Worker.Scan, logger)
	w.bar = bar
	w.reporter = core.NewStatusReporter(app.StatusClient, WorkerType, logger)
	w.interval = config.Every(app.Config.Worker.Intervals.Ranking, time.Minute)

	return w
}

func newWorker(store Store, fetcher Fetcher, cfg *config.Scan, logger *zap.Logger) *Worker {
	return &Worker{
		store:           store,
		fetcher:         fetcher,
		logger:          logger.Named("ranking_worker"),
		interval:        time.Minute,
		maxPages:        cfg.MaxPages,
		pageConcurrency: cfg.PageConcurrency,
		now:             time.Now,
	}
}

// Start begins the ranking worker's main loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Ranking Worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	for {
		w.bar.Reset()
		w.reporter.SetHealthy(true)

		w.step("Taking ranking pages", 10)

		if err := w.Take(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			w.logger.Error("Ranking cycle failed", zap.Error(err))
			w.reporter.SetHealthy(false)
		}

		w.step("Waiting for next cycle", 100)

		if !utils.TickSleep(ctx, w.interval, w.logger, "ranking worker") {
			return
		}
	}
}

// Take runs one ranking cycle over every server.
func (w *Worker) Take(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, "ranking.take")
	defer span.End()

	units, err := w.Units(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = errors.Join(task.NewGroup(len(units)).Run(ctx, units)...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// Units returns one unit per server. Servers are scanned in parallel, the
// steps of one server sequentially.
func (w *Worker) Units(ctx context.Context) ([]task.Unit, error) {
	servers, err := w.store.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	units := make([]task.Unit, len(servers))
	for i, server := range servers {
		units[i] = func(ctx context.Context) error {
			_, err := w.TakeServer(ctx, server)
			return err
		}
	}

	return units, nil
}

// TakeServer takes the ranking pages of one server and stores its next scan
// depth. Servers without any precision snapshot are skipped with a nil outcome.
func (w *Worker) TakeServer(ctx context.Context, server *types.Server) (*scan.Outcome, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ranking.server")
	defer span.End()

	span.SetAttributes(attribute.String("server", server.Name))

	floor, ok, err := w.store.Floor(ctx, server.ID)
	if err != nil {
		return nil, err
	}

	if !ok {
		w.logger.Debug("No tracked value on server yet, skipping ranking",
			zap.String("server", server.Name))

		return nil, nil //nolint:nilnil // nothing to scan
	}

	observedAt := w.now()
	taker := scan.PageTakerFunc(func(ctx context.Context, page int) (*scan.PageResult, error) {
		entries, err := w.fetcher.FetchRankingPage(ctx, server, page)
		if err != nil {
			return nil, err
		}

		if _, err := w.store.RecordRankingPage(ctx, server.ID, observedAt, entries); err != nil {
			return nil, err
		}

		result := &scan.PageResult{Page: page, Rows: len(entries)}
		if len(entries) > 0 {
			result.Tail = entries[len(entries)-1].Value
		}

		return result, nil
	})

	state := server.ScanState()

	outcome, err := scan.NewController(taker, w.maxPages, w.pageConcurrency, w.logger).Adjust(ctx, floor, state)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("depth", outcome.Depth),
		attribute.Int("taken", outcome.Taken),
		attribute.Int("failures", len(outcome.Failures)),
	)

	if outcome.Depth != state.Depth {
		err := w.store.SaveScanDepth(ctx, state, outcome.Depth)
		switch {
		case errors.Is(err, models.ErrScanStateConflict):
			w.logger.Warn("Scan depth changed concurrently, keeping stored value",
				zap.String("server", server.Name),
				zap.Int("depth", outcome.Depth))
		case err != nil:
			return outcome, err
		default:
			w.logger.Info("Updated scan depth",
				zap.String("server", server.Name),
				zap.Int("from", state.Depth),
				zap.Int("to", outcome.Depth),
				zap.Bool("clamped", outcome.Clamped))
		}
	}

	if len(outcome.Failures) > 0 {
		return outcome, fmt.Errorf("%w (server=%s, failed=%d)", ErrPartialScan, server.Name, len(outcome.Failures))
	}

	return outcome, nil
}

func (w *Worker) step(message string, percent int) {
	w.bar.SetStepMessage(message, int64(percent))
	w.reporter.UpdateStatus(message, percent)
}

// Package pipeline chains the take and process phases on one schedule so that
// processing never starts while a take is still running.
package pipeline

import (
	"context"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/progress"
	"github.com/fourmitrack/fourmitrack/internal/setup"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry"
	"github.com/fourmitrack/fourmitrack/internal/task"
	"github.com/fourmitrack/fourmitrack/internal/worker/core"
	"github.com/fourmitrack/fourmitrack/internal/worker/precision"
	"github.com/fourmitrack/fourmitrack/internal/worker/process"
	"github.com/fourmitrack/fourmitrack/internal/worker/ranking"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WorkerType identifies the worker in status reports.
const WorkerType = "pipeline"

// Phase names.
const (
	PhaseTake    = "take"
	PhaseProcess = "process"
)

// UnitSource builds the units of one worker for a single cycle.
type UnitSource interface {
	Units(ctx context.Context) ([]task.Unit, error)
}

// Worker runs precision and ranking takes every cycle and processing every
// few cycles once both takes are done.
type Worker struct {
	takers       []UnitSource
	processor    UnitSource
	closer       func()
	bar          *progress.Bar
	reporter     *core.StatusReporter
	logger       *zap.Logger
	interval     time.Duration
	processEvery int
	concurrency  int
	cycle        int
}

// New creates a new pipeline worker.
func New(app *setup.App, bar *progress.Bar, logger *zap.Logger) *Worker {
	intervals := app.Config.Worker.Intervals
	take := config.Every(intervals.Precision, time.Minute)
	proc := config.Every(intervals.Process, 5*time.Minute)

	processWorker := process.New(app, bar, logger)

	w := newWorker(
		[]UnitSource{precision.New(app, bar, logger), ranking.New(app, bar, logger)},
		processWorker,
		int(proc/take),
		app.Config.Worker.Scan.TargetConcurrency,
		logger,
	)
	w.closer = processWorker.Close
	w.bar = bar
	w.reporter = core.NewStatusReporter(app.StatusClient, WorkerType, logger)
	w.interval = take

	return w
}

func newWorker(
	takers []UnitSource, processor UnitSource, processEvery, concurrency int, logger *zap.Logger,
) *Worker {
	return &Worker{
		takers:       takers,
		processor:    processor,
		closer:       func() {},
		logger:       logger.Named("pipeline_worker"),
		interval:     time.Minute,
		processEvery: max(processEvery, 1),
		concurrency:  concurrency,
	}
}

// Start begins the pipeline worker's main loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Pipeline Worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()
	defer w.closer()

	for {
		w.bar.Reset()
		w.reporter.SetHealthy(true)

		w.bar.SetStepMessage("Running pipeline", 10)
		w.reporter.UpdateStatus("Running pipeline", 10)

		reports, err := w.RunCycle(ctx)
		if err != nil && ctx.Err() != nil {
			return
		}

		for _, report := range reports {
			if report.Err != nil {
				w.reporter.SetHealthy(false)
			}
		}

		w.bar.SetStepMessage("Waiting for next cycle", 100)
		w.reporter.UpdateStatus("Waiting for next cycle", 100)

		if !utils.TickSleep(ctx, w.interval, w.logger, "pipeline worker") {
			return
		}
	}
}

// RunCycle runs one cycle. The process phase is appended on every
// processEvery-th cycle, starting with the first.
func (w *Worker) RunCycle(ctx context.Context) ([]task.PhaseReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.cycle")
	defer span.End()

	withProcess := w.cycle%w.processEvery == 0
	w.cycle++

	span.SetAttributes(attribute.Bool("process", withProcess))

	p := task.NewPipeline(w.concurrency).Then(PhaseTake, w.takeUnits)
	if withProcess {
		p.Then(PhaseProcess, w.processor.Units)
	}

	reports, err := p.Run(ctx)
	for _, report := range reports {
		fields := []zap.Field{
			zap.String("phase", report.Name),
			zap.Int("units", report.Units),
			zap.Int("failed", report.Failed),
		}

		if report.Err != nil {
			w.logger.Error("Pipeline phase failed", append(fields, zap.Error(report.Err))...)
			continue
		}

		w.logger.Debug("Pipeline phase completed", fields...)
	}

	return reports, err
}

func (w *Worker) takeUnits(ctx context.Context) ([]task.Unit, error) {
	var units []task.Unit

	for _, taker := range w.takers {
		more, err := taker.Units(ctx)
		if err != nil {
			return nil, err
		}

		units = append(units, more...)
	}

	return units, nil
}

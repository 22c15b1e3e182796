package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/progress"
	"github.com/fourmitrack/fourmitrack/internal/setup"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry"
	"github.com/fourmitrack/fourmitrack/internal/worker/alliance"
	"github.com/fourmitrack/fourmitrack/internal/worker/core"
	"github.com/fourmitrack/fourmitrack/internal/worker/pipeline"
	"github.com/fourmitrack/fourmitrack/internal/worker/precision"
	"github.com/fourmitrack/fourmitrack/internal/worker/process"
	"github.com/fourmitrack/fourmitrack/internal/worker/purge"
	"github.com/fourmitrack/fourmitrack/internal/worker/ranking"
	"github.com/fourmitrack/fourmitrack/internal/worker/vacation"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	_ "time/tzdata"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// restartDelay is how long a crashed worker waits before restarting.
	restartDelay = 5 * time.Second
)

// worker is implemented by every worker loop.
type worker interface {
	Start(ctx context.Context)
}

// factory builds a worker bound to its progress bar and logger.
type factory func(app *setup.App, bar *progress.Bar, logger *zap.Logger) worker

var workers = []struct {
	name  string
	usage string
	build factory
}{
	{
		name:  pipeline.WorkerType,
		usage: "Run takes every minute and processing every five minutes",
		build: func(app *setup.App, bar *progress.Bar, logger *zap.Logger) worker {
			return pipeline.New(app, bar, logger)
		},
	},
	{
		name:  precision.WorkerType,
		usage: "Take hunting field snapshots of every target",
		build: func(app *setup.App, bar *progress.Bar, logger *zap.Logger) worker {
			return precision.New(app, bar, logger)
		},
	},
	{
		name:  ranking.WorkerType,
		usage: "Scan the rankings of every tracked server",
		build: func(app *setup.App, bar *progress.Bar, logger *zap.Logger) worker {
			return ranking.New(app, bar, logger)
		},
	},
	{
		name:  process.WorkerType,
		usage: "Correlate pending snapshots and send notifications",
		build: func(app *setup.App, bar *progress.Bar, logger *zap.Logger) worker {
			return process.New(app, bar, logger)
		},
	},
	{
		name:  purge.WorkerType,
		usage: "Remove snapshots older than the retention horizon",
		build: func(app *setup.App, bar *progress.Bar, logger *zap.Logger) worker {
			return purge.New(app, bar, logger)
		},
	},
	{
		name:  alliance.WorkerType,
		usage: "Sync targets with the member lists of tracked alliances",
		build: func(app *setup.App, bar *progress.Bar, logger *zap.Logger) worker {
			return alliance.New(app, bar, logger)
		},
	},
	{
		name:  vacation.WorkerType,
		usage: "Detect targets leaving vacation mode",
		build: func(app *setup.App, bar *progress.Bar, logger *zap.Logger) worker {
			return vacation.New(app, bar, logger)
		},
	},
}

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands := make([]*cli.Command, 0, len(workers)+1)
	for _, w := range workers {
		commands = append(commands, &cli.Command{
			Name:  w.name,
			Usage: w.usage,
			Action: func(ctx context.Context, c *cli.Command) error {
				return runWorkers(ctx, w.name, w.build, c.Int("workers"))
			},
		})
	}

	commands = append(commands, &cli.Command{
		Name:   "status",
		Usage:  "Show the status of running workers",
		Action: showStatus,
	})

	app := &cli.Command{
		Name:  "worker",
		Usage: "Start the fourmitrack workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   1,
				Usage:   "Number of workers to start",
			},
		},
		Commands: commands,
	}

	return app.Run(ctx, os.Args)
}

// runWorkers starts multiple instances of a worker type.
func runWorkers(ctx context.Context, workerType string, build factory, count int64) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir, workerType)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	if delay := app.Config.Worker.StartupDelay; delay > 0 {
		app.Logger.Info("Delaying worker startup", zap.Int("milliseconds", delay))

		if utils.ContextSleep(ctx, time.Duration(delay)*time.Millisecond) == utils.SleepCancelled {
			return nil
		}
	}

	// Initialize progress bars
	bars := make([]*progress.Bar, count)
	for i := range count {
		bars[i] = progress.NewBar(fmt.Sprintf("Worker %d", i), 25)
	}

	renderCtx, stopRender := context.WithCancel(ctx)
	defer stopRender()

	go progress.NewRenderer(bars, os.Stdout).Render(renderCtx)

	// Start workers
	var wg sync.WaitGroup
	for i := range count {
		wg.Add(1)

		go func(workerID int64) {
			defer wg.Done()

			workerLogger := app.LogManager.GetWorkerLogger(fmt.Sprintf("%s_worker_%d", workerType, workerID))
			runWorker(ctx, build(app, bars[workerID], workerLogger), workerLogger)
		}(i)
	}

	app.Logger.Info("Started workers", zap.String("type", workerType), zap.Int64("count", count))
	wg.Wait()
	app.Logger.Info("All workers have finished")

	return nil
}

// runWorker runs a single worker in a loop with panic recovery.
func runWorker(ctx context.Context, w worker, logger *zap.Logger) {
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Worker execution failed",
						zap.String("worker_type", fmt.Sprintf("%T", w)),
						zap.Any("panic", r),
					)
				}
			}()

			logger.Info("Starting worker")
			w.Start(ctx)
		}()

		if ctx.Err() != nil {
			logger.Info("Context cancelled, stopping worker")
			return
		}

		logger.Warn("Worker stopped unexpectedly, restarting",
			zap.String("worker_type", fmt.Sprintf("%T", w)),
			zap.Duration("delay", restartDelay),
		)

		if utils.ContextSleep(ctx, restartDelay) == utils.SleepCancelled {
			return
		}
	}
}

// showStatus prints every worker heartbeat found in Redis.
func showStatus(ctx context.Context, _ *cli.Command) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir, "status")
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	statuses, err := core.NewMonitor(app.StatusClient, app.Logger).GetAllStatuses(ctx)
	if err != nil {
		return err
	}

	now := time.Now()

	t := utils.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"Type", "ID", "Task", "Progress", "Healthy", "Last Seen"})

	for _, status := range statuses {
		lastSeen := now.Sub(status.LastSeen).Truncate(time.Second).String()
		if status.IsStale(now) {
			lastSeen += " (offline)"
		}

		t.AppendRow(table.Row{
			status.WorkerType,
			status.WorkerID,
			status.CurrentTask,
			fmt.Sprintf("%d%%", status.Progress),
			status.IsHealthy,
			lastSeen,
		})
	}

	t.Render()

	return nil
}

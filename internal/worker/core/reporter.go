// Package core holds the pieces shared by every worker loop.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// StatusReporter periodically publishes a worker's status.
type StatusReporter struct {
	monitor  *Monitor
	status   Status
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
	started  bool
	stopped  bool
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewStatusReporter creates a new status reporter for a worker.
func NewStatusReporter(client rueidis.Client, workerType string, logger *zap.Logger) *StatusReporter {
	return &StatusReporter{
		monitor: NewMonitor(client, logger),
		status: Status{
			WorkerID:   uuid.New().String(),
			WorkerType: workerType,
			IsHealthy:  true,
		},
		interval: HeartbeatInterval,
		stopChan: make(chan struct{}),
		logger:   logger.Named("status_reporter"),
	}
}

// SetInterval changes the heartbeat period. It has no effect once started.
func (r *StatusReporter) SetInterval(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interval = interval
}

// Start begins periodic status reporting until Stop or context cancellation.
func (r *StatusReporter) Start(ctx context.Context) {
	r.mu.Lock()
	if r.stopped || r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.done = make(chan struct{})
	interval := r.interval
	r.mu.Unlock()

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.report(ctx)

		for {
			select {
			case <-ticker.C:
				r.report(ctx)
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			}
		}
	}()
}

// Stop ends status reporting and removes the worker's status.
func (r *StatusReporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}

	close(r.stopChan)
	r.stopped = true
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.monitor.RemoveStatus(ctx, r.Snapshot()); err != nil {
		r.logger.Warn("Failed to remove status", zap.Error(err))
	}
}

// UpdateStatus updates the current task and progress.
func (r *StatusReporter) UpdateStatus(task string, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.CurrentTask = task
	r.status.Progress = progress
}

// SetHealthy updates the health status.
func (r *StatusReporter) SetHealthy(healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.IsHealthy = healthy
}

// GetWorkerID returns the unique worker ID.
func (r *StatusReporter) GetWorkerID() string {
	return r.status.WorkerID
}

// Snapshot returns a copy of the current status.
func (r *StatusReporter) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

func (r *StatusReporter) report(ctx context.Context) {
	if err := r.monitor.ReportStatus(ctx, r.Snapshot()); err != nil {
		r.logger.Error("Failed to report status", zap.Error(err))
	}
}

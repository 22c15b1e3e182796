package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// HeartbeatInterval is how often workers report their status.
	HeartbeatInterval = 10 * time.Second

	// HeartbeatTTL is how long a worker's status remains in Redis.
	HeartbeatTTL = 10 * time.Minute

	// StaleThreshold is how long before a worker is considered offline.
	StaleThreshold = 1 * time.Minute

	// KeyPrefix prefixes every status key.
	KeyPrefix = "worker"

	scanCount = 100
)

// Status is a worker's current state.
type Status struct {
	WorkerID    string    `json:"workerId"`
	WorkerType  string    `json:"workerType"`
	LastSeen    time.Time `json:"lastSeen"`
	CurrentTask string    `json:"currentTask,omitempty"`
	Progress    int       `json:"progress"`
	IsHealthy   bool      `json:"isHealthy"`
}

// IsStale reports whether the worker missed its heartbeats.
func (s Status) IsStale(now time.Time) bool {
	return now.Sub(s.LastSeen) > StaleThreshold
}

// Key returns the Redis key of the status.
func (s Status) Key() string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, s.WorkerType, s.WorkerID)
}

// Monitor stores and queries worker statuses.
type Monitor struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewMonitor creates a new worker status monitor.
func NewMonitor(client rueidis.Client, logger *zap.Logger) *Monitor {
	return &Monitor{
		client: client,
		logger: logger.Named("worker_monitor"),
	}
}

// ReportStatus stores a worker's status with a fresh timestamp.
func (m *Monitor) ReportStatus(ctx context.Context, status Status) error {
	status.LastSeen = time.Now()

	data, err := sonic.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	err = m.client.Do(ctx, m.client.B().Set().Key(status.Key()).Value(string(data)).Ex(HeartbeatTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to store status: %w (key=%s)", err, status.Key())
	}

	return nil
}

// RemoveStatus deletes a worker's status.
func (m *Monitor) RemoveStatus(ctx context.Context, status Status) error {
	if err := m.client.Do(ctx, m.client.B().Del().Key(status.Key()).Build()).Error(); err != nil {
		return fmt.Errorf("failed to remove status: %w (key=%s)", err, status.Key())
	}

	return nil
}

// GetAllStatuses returns every stored status sorted by type and ID.
func (m *Monitor) GetAllStatuses(ctx context.Context) ([]Status, error) {
	var (
		keys   []string
		cursor uint64
	)

	for {
		entry, err := m.client.Do(ctx, m.client.B().Scan().Cursor(cursor).
			Match(KeyPrefix+":*").Count(scanCount).Build()).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker keys: %w", err)
		}

		keys = append(keys, entry.Elements...)

		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	statuses := make([]Status, 0, len(keys))

	for _, key := range keys {
		data, err := m.client.Do(ctx, m.client.B().Get().Key(key).Build()).AsBytes()
		if err != nil {
			if !errors.Is(err, rueidis.Nil) {
				m.logger.Error("Failed to get worker status", zap.String("key", key), zap.Error(err))
			}

			continue
		}

		var status Status
		if err := sonic.Unmarshal(data, &status); err != nil {
			m.logger.Error("Failed to unmarshal worker status", zap.String("key", key), zap.Error(err))
			continue
		}

		statuses = append(statuses, status)
	}

	slices.SortFunc(statuses, func(a, b Status) int {
		if c := strings.Compare(a.WorkerType, b.WorkerType); c != 0 {
			return c
		}

		return strings.Compare(a.WorkerID, b.WorkerID)
	})

	return statuses, nil
}

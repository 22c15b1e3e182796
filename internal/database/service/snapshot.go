package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database/models"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"go.uber.org/zap"
)

// SnapshotService records observations as diffed snapshots.
type SnapshotService struct {
	precision *models.PrecisionModel
	ranking   *models.RankingModel
	logger    *zap.Logger
}

// NewSnapshot creates a new snapshot service.
func NewSnapshot(precision *models.PrecisionModel, ranking *models.RankingModel, logger *zap.Logger) *SnapshotService {
	return &SnapshotService{
		precision: precision,
		ranking:   ranking,
		logger:    logger.Named("snapshot_service"),
	}
}

// RecordPrecision diffs an observation against the latest snapshot of the
// target and stores it. Returns nil without storing when nothing changed.
func (s *SnapshotService) RecordPrecision(
	ctx context.Context, targetID int64, obs types.Observation,
) (*types.PrecisionSnapshot, error) {
	prev, err := s.precision.Latest(ctx, targetID)
	if err != nil {
		return nil, err
	}

	snapshot, changed := types.NewPrecisionSnapshot(targetID, obs, prev)
	if !changed {
		return nil, nil //nolint:nilnil // unchanged observation
	}

	if err := s.precision.Insert(ctx, snapshot); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// RecordRankingPage diffs the rows of one ranking page against the latest
// snapshot of each name and stores the changed rows in one batch.
func (s *SnapshotService) RecordRankingPage(
	ctx context.Context, serverID int64, observedAt time.Time, entries []*types.RankingEntry,
) ([]*types.RankingSnapshot, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}

	latest, err := s.ranking.LatestByNames(ctx, serverID, names)
	if err != nil {
		return nil, err
	}

	snapshots := make([]*types.RankingSnapshot, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		if _, ok := seen[entry.Name]; ok {
			continue
		}

		seen[entry.Name] = struct{}{}

		snapshot, changed := types.NewRankingSnapshot(serverID, entry.Name, types.Observation{
			Time:     observedAt,
			Value:    entry.Value,
			Trophies: entry.Trophies,
		}, latest[entry.Name])
		if changed {
			snapshots = append(snapshots, snapshot)
		}
	}

	if err := s.ranking.InsertBatch(ctx, snapshots); err != nil {
		return nil, err
	}

	return snapshots, nil
}

// Purge removes every snapshot recorded before the cutoff.
func (s *SnapshotService) Purge(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	precision, err := s.precision.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to purge precision snapshots: %w", err)
	}

	ranking, err := s.ranking.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return precision, 0, fmt.Errorf("failed to purge ranking snapshots: %w", err)
	}

	s.logger.Info("Purged snapshots",
		zap.Time("cutoff", cutoff),
		zap.Int64("precision", precision),
		zap.Int64("ranking", ranking))

	return precision, ranking, nil
}

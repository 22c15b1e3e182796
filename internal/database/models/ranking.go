package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database/dbretry"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// RankingModel handles database operations for ranking snapshots.
type RankingModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewRanking creates a new RankingModel.
func NewRanking(db *bun.DB, logger *zap.Logger) *RankingModel {
	return &RankingModel{
		db:     db,
		logger: logger.Named("db_ranking"),
	}
}

// InsertBatch stores the snapshots of one page in a single statement.
func (r *RankingModel) InsertBatch(ctx context.Context, snapshots []*types.RankingSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(&snapshots).
			Returning("id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert ranking snapshots: %w (count=%d)", err, len(snapshots))
		}

		return nil
	})
}

// Latest retrieves the most recent snapshot for a player name, or nil.
func (r *RankingModel) Latest(ctx context.Context, serverID int64, name string) (*types.RankingSnapshot, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.RankingSnapshot, error) {
		var snapshot types.RankingSnapshot

		err := r.db.NewSelect().
			Model(&snapshot).
			Where("server_id = ?", serverID).
			Where("player_name = ?", name).
			Order("time DESC", "id DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil //nolint:nilnil // name never ranked
			}

			return nil, fmt.Errorf("failed to get latest ranking snapshot: %w (serverID=%d, name=%s)",
				err, serverID, name)
		}

		return &snapshot, nil
	})
}

// LatestByNames retrieves the most recent snapshot of each given name.
func (r *RankingModel) LatestByNames(
	ctx context.Context, serverID int64, names []string,
) (map[string]*types.RankingSnapshot, error) {
	if len(names) == 0 {
		return map[string]*types.RankingSnapshot{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[string]*types.RankingSnapshot, error) {
		var snapshots []*types.RankingSnapshot

		err := r.db.NewSelect().
			Model(&snapshots).
			DistinctOn("player_name").
			Where("server_id = ?", serverID).
			Where("player_name IN (?)", bun.In(names)).
			OrderExpr("player_name, time DESC, id DESC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get latest ranking snapshots: %w (serverID=%d, count=%d)",
				err, serverID, len(names))
		}

		result := make(map[string]*types.RankingSnapshot, len(snapshots))
		for _, snapshot := range snapshots {
			result[snapshot.PlayerName] = snapshot
		}

		return result, nil
	})
}

// Window retrieves the snapshots of a server recorded in [start, end),
// leaving out every snapshot of the excluded player.
func (r *RankingModel) Window(
	ctx context.Context, serverID int64, start, end time.Time, excludeName string,
) ([]*types.RankingSnapshot, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.RankingSnapshot, error) {
		var snapshots []*types.RankingSnapshot

		err := r.db.NewSelect().
			Model(&snapshots).
			Where("server_id = ?", serverID).
			Where("time >= ?", start).
			Where("time < ?", end).
			Where("player_name != ?", excludeName).
			Order("id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get ranking window: %w (serverID=%d, start=%s)",
				err, serverID, start.Format(time.RFC3339))
		}

		return snapshots, nil
	})
}

// Since retrieves every snapshot recorded since the given time.
func (r *RankingModel) Since(ctx context.Context, since time.Time) ([]*types.RankingSnapshot, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.RankingSnapshot, error) {
		var snapshots []*types.RankingSnapshot

		err := r.db.NewSelect().
			Model(&snapshots).
			Where("time >= ?", since).
			Order("time ASC", "id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get ranking snapshots: %w (since=%s)", err, since.Format(time.RFC3339))
		}

		return snapshots, nil
	})
}

// PurgeOlderThan removes snapshots older than the cutoff.
func (r *RankingModel) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		result, err := r.db.NewDelete().
			Model((*types.RankingSnapshot)(nil)).
			Where("time < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to purge ranking snapshots: %w (cutoff=%s)", err, cutoff.Format(time.RFC3339))
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w (cutoff=%s)", err, cutoff.Format(time.RFC3339))
		}

		r.logger.Debug("Purged ranking snapshots",
			zap.Int64("rowsAffected", rowsAffected),
			zap.Time("cutoff", cutoff))

		return rowsAffected, nil
	})
}

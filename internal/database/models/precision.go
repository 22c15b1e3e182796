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

// PrecisionModel handles database operations for precision snapshots.
type PrecisionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPrecision creates a new PrecisionModel.
func NewPrecision(db *bun.DB, logger *zap.Logger) *PrecisionModel {
	return &PrecisionModel{
		db:     db,
		logger: logger.Named("db_precision"),
	}
}

// Insert stores a new precision snapshot.
func (r *PrecisionModel) Insert(ctx context.Context, snapshot *types.PrecisionSnapshot) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(snapshot).
			Returning("id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert precision snapshot: %w (targetID=%d)", err, snapshot.TargetID)
		}

		return nil
	})
}

// Latest retrieves the most recent snapshot of a target, or nil if none exists.
func (r *PrecisionModel) Latest(ctx context.Context, targetID int64) (*types.PrecisionSnapshot, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.PrecisionSnapshot, error) {
		var snapshot types.PrecisionSnapshot

		err := r.db.NewSelect().
			Model(&snapshot).
			Where("target_id = ?", targetID).
			Order("time DESC", "id DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil //nolint:nilnil // no snapshot yet
			}

			return nil, fmt.Errorf("failed to get latest precision snapshot: %w (targetID=%d)", err, targetID)
		}

		return &snapshot, nil
	})
}

// FloorByServer returns the lowest hunting field among the latest snapshot of
// every target of a server. The boolean is false when no target has a
// snapshot yet.
func (r *PrecisionModel) FloorByServer(ctx context.Context, serverID int64) (int64, bool, error) {
	type floorResult struct {
		floor int64
		ok    bool
	}

	result, err := dbretry.Operation(ctx, func(ctx context.Context) (floorResult, error) {
		latest := r.db.NewSelect().
			TableExpr("precision_snapshots AS ps").
			Join("JOIN targets AS t ON t.id = ps.target_id").
			ColumnExpr("ps.value").
			DistinctOn("ps.target_id").
			Where("t.server_id = ?", serverID).
			OrderExpr("ps.target_id, ps.time DESC, ps.id DESC")

		var floor sql.NullInt64

		err := r.db.NewSelect().
			TableExpr("(?) AS latest", latest).
			ColumnExpr("MIN(latest.value)").
			Scan(ctx, &floor)
		if err != nil {
			return floorResult{}, fmt.Errorf("failed to get floor: %w (serverID=%d)", err, serverID)
		}

		return floorResult{floor: floor.Int64, ok: floor.Valid}, nil
	})
	if err != nil {
		return 0, false, err
	}

	return result.floor, result.ok, nil
}

// UnprocessedByTarget retrieves every unprocessed snapshot grouped by target,
// each group ordered by time.
func (r *PrecisionModel) UnprocessedByTarget(ctx context.Context) (map[int64][]*types.PrecisionSnapshot, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64][]*types.PrecisionSnapshot, error) {
		var snapshots []*types.PrecisionSnapshot

		err := r.db.NewSelect().
			Model(&snapshots).
			Where("processed = false").
			Order("target_id ASC", "time ASC", "id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get unprocessed snapshots: %w", err)
		}

		grouped := make(map[int64][]*types.PrecisionSnapshot)
		for _, snapshot := range snapshots {
			grouped[snapshot.TargetID] = append(grouped[snapshot.TargetID], snapshot)
		}

		return grouped, nil
	})
}

// MarkProcessed flags the given snapshots as processed in one statement.
func (r *PrecisionModel) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewUpdate().
			Model((*types.PrecisionSnapshot)(nil)).
			Set("processed = true").
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark snapshots processed: %w (count=%d)", err, len(ids))
		}

		return nil
	})
}

// History retrieves the snapshots of a target since the given time.
func (r *PrecisionModel) History(
	ctx context.Context, targetID int64, since time.Time,
) ([]*types.PrecisionSnapshot, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.PrecisionSnapshot, error) {
		var snapshots []*types.PrecisionSnapshot

		err := r.db.NewSelect().
			Model(&snapshots).
			Where("target_id = ?", targetID).
			Where("time >= ?", since).
			Order("time ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get precision history: %w (targetID=%d)", err, targetID)
		}

		return snapshots, nil
	})
}

// Since retrieves every snapshot recorded since the given time.
func (r *PrecisionModel) Since(ctx context.Context, since time.Time) ([]*types.PrecisionSnapshot, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.PrecisionSnapshot, error) {
		var snapshots []*types.PrecisionSnapshot

		err := r.db.NewSelect().
			Model(&snapshots).
			Where("time >= ?", since).
			Order("time ASC", "id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get precision snapshots: %w (since=%s)", err, since.Format(time.RFC3339))
		}

		return snapshots, nil
	})
}

// PurgeOlderThan removes snapshots older than the cutoff.
func (r *PrecisionModel) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		result, err := r.db.NewDelete().
			Model((*types.PrecisionSnapshot)(nil)).
			Where("time < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to purge precision snapshots: %w (cutoff=%s)", err, cutoff.Format(time.RFC3339))
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w (cutoff=%s)", err, cutoff.Format(time.RFC3339))
		}

		r.logger.Debug("Purged precision snapshots",
			zap.Int64("rowsAffected", rowsAffected),
			zap.Time("cutoff", cutoff))

		return rowsAffected, nil
	})
}

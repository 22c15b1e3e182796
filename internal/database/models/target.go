package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fourmitrack/fourmitrack/internal/database/dbretry"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrTargetNotFound is returned when no target matches the lookup.
var ErrTargetNotFound = errors.New("target not found")

// TargetModel handles database operations for tracked players.
type TargetModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewTarget creates a new TargetModel.
func NewTarget(db *bun.DB, logger *zap.Logger) *TargetModel {
	return &TargetModel{
		db:     db,
		logger: logger.Named("db_target"),
	}
}

// Create inserts a target. An existing target with the same name keeps its
// row; only its alliance is updated when one is given.
func (r *TargetModel) Create(ctx context.Context, target *types.Target) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(target).
			On("CONFLICT (server_id, name) DO UPDATE").
			Set("alliance_id = COALESCE(EXCLUDED.alliance_id, target.alliance_id)").
			Returning("*").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create target: %w (serverID=%d, name=%s)",
				err, target.ServerID, target.Name)
		}

		return nil
	})
}

// GetByName retrieves a target of a server by name.
func (r *TargetModel) GetByName(ctx context.Context, serverID int64, name string) (*types.Target, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Target, error) {
		var target types.Target

		err := r.db.NewSelect().
			Model(&target).
			Relation("Server").
			Relation("Alliance").
			Where("target.server_id = ?", serverID).
			Where("target.name = ?", name).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, name)
			}

			return nil, fmt.Errorf("failed to get target: %w (serverID=%d, name=%s)", err, serverID, name)
		}

		return &target, nil
	})
}

// GetByIDs retrieves targets with their server and alliance, keyed by ID.
func (r *TargetModel) GetByIDs(ctx context.Context, ids []int64) (map[int64]*types.Target, error) {
	if len(ids) == 0 {
		return map[int64]*types.Target{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[int64]*types.Target, error) {
		var targets []*types.Target

		err := r.db.NewSelect().
			Model(&targets).
			Relation("Server").
			Relation("Alliance").
			Where("target.id IN (?)", bun.In(ids)).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get targets: %w (count=%d)", err, len(ids))
		}

		result := make(map[int64]*types.Target, len(targets))
		for _, target := range targets {
			result[target.ID] = target
		}

		return result, nil
	})
}

// List retrieves every target with its server and alliance.
func (r *TargetModel) List(ctx context.Context) ([]*types.Target, error) {
	return r.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q
	})
}

// ListByServer retrieves the targets of one server.
func (r *TargetModel) ListByServer(ctx context.Context, serverID int64) ([]*types.Target, error) {
	return r.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("target.server_id = ?", serverID)
	})
}

// ListByAlliance retrieves the targets linked to an alliance.
func (r *TargetModel) ListByAlliance(ctx context.Context, allianceID int64) ([]*types.Target, error) {
	return r.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("target.alliance_id = ?", allianceID)
	})
}

// ListOnVacation retrieves the targets currently in vacation mode.
func (r *TargetModel) ListOnVacation(ctx context.Context) ([]*types.Target, error) {
	return r.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("target.on_vacation = true")
	})
}

func (r *TargetModel) list(
	ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery,
) ([]*types.Target, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Target, error) {
		var targets []*types.Target

		err := filter(r.db.NewSelect().
			Model(&targets).
			Relation("Server").
			Relation("Alliance")).
			Order("target.server_id ASC", "target.name ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list targets: %w", err)
		}

		return targets, nil
	})
}

// SetVacation updates the vacation flag of a target.
func (r *TargetModel) SetVacation(ctx context.Context, id int64, onVacation bool) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewUpdate().
			Model((*types.Target)(nil)).
			Set("on_vacation = ?", onVacation).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set vacation: %w (targetID=%d)", err, id)
		}

		return nil
	})
}

// SetAlliance links a target to an alliance, or detaches it when nil.
func (r *TargetModel) SetAlliance(ctx context.Context, id int64, allianceID *int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewUpdate().
			Model((*types.Target)(nil)).
			Set("alliance_id = ?", allianceID).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set alliance: %w (targetID=%d)", err, id)
		}

		return nil
	})
}

// Delete removes a target together with its precision snapshots.
func (r *TargetModel) Delete(ctx context.Context, id int64) error {
	return dbretry.Transaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		snapshots, err := tx.NewDelete().
			Model((*types.PrecisionSnapshot)(nil)).
			Where("target_id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete target snapshots: %w (targetID=%d)", err, id)
		}

		result, err := tx.NewDelete().
			Model((*types.Target)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete target: %w (targetID=%d)", err, id)
		}

		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("%w: id=%d", ErrTargetNotFound, id)
		}

		deleted, _ := snapshots.RowsAffected()
		r.logger.Info("Deleted target",
			zap.Int64("targetID", id),
			zap.Int64("snapshots", deleted))

		return nil
	})
}

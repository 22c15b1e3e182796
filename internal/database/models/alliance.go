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

// ErrAllianceNotFound is returned when no alliance matches the lookup.
var ErrAllianceNotFound = errors.New("alliance not found")

// AllianceModel handles database operations for tracked alliances.
type AllianceModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAlliance creates a new AllianceModel.
func NewAlliance(db *bun.DB, logger *zap.Logger) *AllianceModel {
	return &AllianceModel{
		db:     db,
		logger: logger.Named("db_alliance"),
	}
}

// Create inserts an alliance or loads the existing one with the same name.
func (r *AllianceModel) Create(ctx context.Context, alliance *types.Alliance) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(alliance).
			On("CONFLICT (server_id, name) DO UPDATE").
			Set("name = EXCLUDED.name").
			Returning("*").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create alliance: %w (serverID=%d, name=%s)",
				err, alliance.ServerID, alliance.Name)
		}

		return nil
	})
}

// GetByName retrieves an alliance of a server by name.
func (r *AllianceModel) GetByName(ctx context.Context, serverID int64, name string) (*types.Alliance, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Alliance, error) {
		var alliance types.Alliance

		err := r.db.NewSelect().
			Model(&alliance).
			Where("server_id = ?", serverID).
			Where("name = ?", name).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrAllianceNotFound, name)
			}

			return nil, fmt.Errorf("failed to get alliance: %w (serverID=%d, name=%s)", err, serverID, name)
		}

		return &alliance, nil
	})
}

// List retrieves every alliance with its server.
func (r *AllianceModel) List(ctx context.Context) ([]*types.Alliance, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Alliance, error) {
		var alliances []*types.Alliance

		err := r.db.NewSelect().
			Model(&alliances).
			Relation("Server").
			Order("alliance.server_id ASC", "alliance.name ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list alliances: %w", err)
		}

		return alliances, nil
	})
}

// Delete removes an alliance. Its targets are deleted along with their
// snapshots when deleteTargets is set, otherwise they are detached.
func (r *AllianceModel) Delete(ctx context.Context, id int64, deleteTargets bool) error {
	return dbretry.Transaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		if deleteTargets {
			_, err := tx.NewDelete().
				Model((*types.PrecisionSnapshot)(nil)).
				Where("target_id IN (?)", tx.NewSelect().
					Model((*types.Target)(nil)).
					Column("id").
					Where("alliance_id = ?", id)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to delete member snapshots: %w (allianceID=%d)", err, id)
			}

			_, err = tx.NewDelete().
				Model((*types.Target)(nil)).
				Where("alliance_id = ?", id).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to delete members: %w (allianceID=%d)", err, id)
			}
		} else {
			_, err := tx.NewUpdate().
				Model((*types.Target)(nil)).
				Set("alliance_id = NULL").
				Where("alliance_id = ?", id).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to detach members: %w (allianceID=%d)", err, id)
			}
		}

		result, err := tx.NewDelete().
			Model((*types.Alliance)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete alliance: %w (allianceID=%d)", err, id)
		}

		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("%w: id=%d", ErrAllianceNotFound, id)
		}

		r.logger.Info("Deleted alliance",
			zap.Int64("allianceID", id),
			zap.Bool("deleteTargets", deleteTargets))

		return nil
	})
}

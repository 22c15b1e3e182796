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

var (
	// ErrServerNotFound is returned when no server matches the lookup.
	ErrServerNotFound = errors.New("server not found")
	// ErrScanStateConflict is returned when the scan depth was written by
	// someone else since it was read.
	ErrScanStateConflict = errors.New("scan state was modified concurrently")
)

// ServerModel handles database operations for game servers.
type ServerModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewServer creates a new ServerModel.
func NewServer(db *bun.DB, logger *zap.Logger) *ServerModel {
	return &ServerModel{
		db:     db,
		logger: logger.Named("db_server"),
	}
}

// Create inserts a server, keeping the existing row when the name is taken.
func (r *ServerModel) Create(ctx context.Context, server *types.Server) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(server).
			On("CONFLICT (name) DO UPDATE").
			Set("cookie_session = EXCLUDED.cookie_session").
			Set("updated_at = EXCLUDED.updated_at").
			Returning("*").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w (name=%s)", err, server.Name)
		}

		return nil
	})
}

// GetByName retrieves a server by name.
func (r *ServerModel) GetByName(ctx context.Context, name string) (*types.Server, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Server, error) {
		var server types.Server

		err := r.db.NewSelect().
			Model(&server).
			Where("name = ?", name).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrServerNotFound, name)
			}

			return nil, fmt.Errorf("failed to get server: %w (name=%s)", err, name)
		}

		return &server, nil
	})
}

// GetByID retrieves a server by ID.
func (r *ServerModel) GetByID(ctx context.Context, id int64) (*types.Server, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Server, error) {
		var server types.Server

		err := r.db.NewSelect().
			Model(&server).
			Where("id = ?", id).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: id=%d", ErrServerNotFound, id)
			}

			return nil, fmt.Errorf("failed to get server: %w (id=%d)", err, id)
		}

		return &server, nil
	})
}

// List retrieves every server ordered by name.
func (r *ServerModel) List(ctx context.Context) ([]*types.Server, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Server, error) {
		var servers []*types.Server

		err := r.db.NewSelect().
			Model(&servers).
			Order("name ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list servers: %w", err)
		}

		return servers, nil
	})
}

// UpdateSession replaces the cookie session of a server.
func (r *ServerModel) UpdateSession(ctx context.Context, id int64, session string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewUpdate().
			Model((*types.Server)(nil)).
			Set("cookie_session = ?", session).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update session: %w (id=%d)", err, id)
		}

		return nil
	})
}

// SaveScanDepth writes a new scan depth if the state has not changed since
// it was read. Returns ErrScanStateConflict otherwise.
func (r *ServerModel) SaveScanDepth(ctx context.Context, state types.ScanState, depth int) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		result, err := r.db.NewUpdate().
			Model((*types.Server)(nil)).
			Set("n_scanned_pages = ?", depth).
			Set("scan_version = scan_version + 1").
			Set("updated_at = ?", time.Now()).
			Where("id = ?", state.ServerID).
			Where("scan_version = ?", state.Version).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save scan depth: %w (serverID=%d)", err, state.ServerID)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w (serverID=%d)", err, state.ServerID)
		}

		if rowsAffected == 0 {
			return fmt.Errorf("%w (serverID=%d, version=%d)", ErrScanStateConflict, state.ServerID, state.Version)
		}

		r.logger.Debug("Saved scan depth",
			zap.Int64("serverID", state.ServerID),
			zap.Int("previous", state.Depth),
			zap.Int("depth", depth))

		return nil
	})
}

package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			`CREATE INDEX IF NOT EXISTS idx_precision_snapshots_target_time
			 ON precision_snapshots (target_id, time DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_precision_snapshots_unprocessed
			 ON precision_snapshots (target_id, time) WHERE processed = false`,
			`CREATE INDEX IF NOT EXISTS idx_ranking_snapshots_server_time
			 ON ranking_snapshots (server_id, time)`,
			`CREATE INDEX IF NOT EXISTS idx_ranking_snapshots_server_name_time
			 ON ranking_snapshots (server_id, player_name, time DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_targets_alliance
			 ON targets (alliance_id)`,
		}

		for _, index := range indexes {
			if _, err := db.ExecContext(ctx, index); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			"idx_precision_snapshots_target_time",
			"idx_precision_snapshots_unprocessed",
			"idx_ranking_snapshots_server_time",
			"idx_ranking_snapshots_server_name_time",
			"idx_targets_alliance",
		}

		for _, index := range indexes {
			if _, err := db.ExecContext(ctx, "DROP INDEX IF EXISTS "+index); err != nil {
				return fmt.Errorf("failed to drop index %s: %w", index, err)
			}
		}

		return nil
	})
}

package migrations

import (
	"context"
	"fmt"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.Server)(nil),
			(*types.Alliance)(nil),
			(*types.Target)(nil),
			(*types.PrecisionSnapshot)(nil),
			(*types.RankingSnapshot)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %T: %w", model, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.RankingSnapshot)(nil),
			(*types.PrecisionSnapshot)(nil),
			(*types.Target)(nil),
			(*types.Alliance)(nil),
			(*types.Server)(nil),
		}

		for _, model := range models {
			_, err := db.NewDropTable().
				Model(model).
				IfExists().
				Cascade().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %T: %w", model, err)
			}
		}

		return nil
	})
}

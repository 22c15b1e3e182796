package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var markOnlyFlag = &cli.BoolFlag{
	Name:  "mark-only",
	Usage: "Record the change in the migrations table without running it",
}

// MigrationCommands returns the schema migration commands.
func MigrationCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:   "init",
			Usage:  "Create the migrations and lock tables",
			Action: handleInit(deps),
		},
		{
			Name:   "migrate",
			Usage:  "Apply every pending snapshot schema migration as one group",
			Flags:  []cli.Flag{markOnlyFlag},
			Action: handleMigrate(deps),
		},
		{
			Name:   "rollback",
			Usage:  "Revert the last applied migration group",
			Flags:  []cli.Flag{markOnlyFlag},
			Action: handleRollback(deps),
		},
		{
			Name:  "status",
			Usage: "List migrations with the group and time they were applied",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "pending",
					Usage: "Only list migrations that are not applied yet",
				},
			},
			Action: handleStatus(deps),
		},
		{
			Name:   "unlock",
			Usage:  "Release the migration lock left by an interrupted run",
			Action: handleUnlock(deps),
		},
		{
			Name:      "create",
			Usage:     "Write a new Go migration file",
			ArgsUsage: "NAME",
			Action:    handleCreate(deps),
		},
	}
}

func handleInit(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		if err := deps.Migrator.Init(ctx); err != nil {
			return fmt.Errorf("failed to create migration tables: %w", err)
		}

		deps.Logger.Info("Migration tables ready")

		return nil
	}
}

func handleMigrate(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		return withLock(ctx, deps, func() error {
			group, err := deps.Migrator.Migrate(ctx, migrationOptions(c)...)
			if err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}

			reportGroup(os.Stdout, deps.Logger, "Applied", group)

			return nil
		})
	}
}

func handleRollback(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		return withLock(ctx, deps, func() error {
			group, err := deps.Migrator.Rollback(ctx, migrationOptions(c)...)
			if err != nil {
				return fmt.Errorf("failed to roll back: %w", err)
			}

			reportGroup(os.Stdout, deps.Logger, "Rolled back", group)

			return nil
		})
	}
}

func handleStatus(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		ms, err := deps.Migrator.MigrationsWithStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}

		if c.Bool("pending") {
			ms = ms.Unapplied()
		}

		renderMigrations(os.Stdout, ms)

		deps.Logger.Info("Migration status",
			zap.Int("listed", len(ms)),
			zap.String("lastGroup", ms.LastGroup().String()))

		return nil
	}
}

func handleUnlock(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		if err := deps.Migrator.Unlock(ctx); err != nil {
			return fmt.Errorf("failed to release migration lock: %w", err)
		}

		deps.Logger.Info("Released migration lock")

		return nil
	}
}

func handleCreate(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrNameRequired
		}

		file, err := deps.Migrator.CreateGoMigration(ctx, c.Args().First())
		if err != nil {
			return fmt.Errorf("failed to create migration: %w", err)
		}

		t := utils.NewTable(os.Stdout)
		t.AppendHeader(table.Row{"Created", "Path"})
		t.AppendRow(table.Row{file.Name, file.Path})
		t.Render()

		return nil
	}
}

// withLock runs fn while holding the migration lock.
func withLock(ctx context.Context, deps *CLIDependencies, fn func() error) error {
	if err := deps.Migrator.Lock(ctx); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	defer func() {
		if err := deps.Migrator.Unlock(ctx); err != nil {
			deps.Logger.Warn("Failed to release migration lock", zap.Error(err))
		}
	}()

	return fn()
}

func migrationOptions(c *cli.Command) []migrate.MigrationOption {
	if c.Bool("mark-only") {
		return []migrate.MigrationOption{migrate.WithNopMigration()}
	}

	return nil
}

// reportGroup renders the migrations of a group that was just applied or
// rolled back.
func reportGroup(w io.Writer, logger *zap.Logger, action string, group *migrate.MigrationGroup) {
	if group == nil || group.IsZero() {
		logger.Info("Nothing to do, the snapshot schema is up to date", zap.String("action", action))
		return
	}

	renderMigrations(w, group.Migrations)

	logger.Info(action+" migration group",
		zap.Int64("group", group.ID),
		zap.Int("migrations", len(group.Migrations)))
}

// renderMigrations writes one row per migration with its group and the time
// it was applied.
func renderMigrations(w io.Writer, ms migrate.MigrationSlice) {
	t := utils.NewTable(w)
	t.AppendHeader(table.Row{"Migration", "Comment", "Group", "Applied At"})

	for _, m := range ms {
		group := "-"
		appliedAt := "pending"

		if m.IsApplied() {
			group = fmt.Sprintf("#%d", m.GroupID)
			appliedAt = m.MigratedAt.Format(time.DateTime)
		}

		t.AppendRow(table.Row{m.Name, m.Comment, group, appliedAt})
	}

	t.AppendFooter(table.Row{"", "", "Total", len(ms)})
	t.Render()
}

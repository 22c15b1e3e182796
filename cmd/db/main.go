package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fourmitrack/fourmitrack/cmd/db/commands"
	"github.com/fourmitrack/fourmitrack/internal/database"
	"github.com/fourmitrack/fourmitrack/internal/database/migrations"
	"github.com/fourmitrack/fourmitrack/internal/fourmizzz"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup dependencies
	deps, err := setupDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	defer deps.DB.Close()

	var cmds []*cli.Command
	cmds = append(cmds, commands.MigrationCommands(deps)...)
	cmds = append(cmds, commands.ServerCommands(deps)...)
	cmds = append(cmds, commands.TargetCommands(deps)...)
	cmds = append(cmds, commands.AllianceCommands(deps)...)

	app := &cli.Command{
		Name:     "db",
		Usage:    "Database management tool",
		Commands: cmds,
	}

	return app.Run(ctx, os.Args)
}

// setupDependencies initializes the database connection, migrator and game client.
func setupDependencies(ctx context.Context) (*commands.CLIDependencies, error) {
	// Load full configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Create development logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Connect to database
	db, err := database.NewConnection(ctx, &cfg.Common.PostgreSQL, logger, false)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Admin commands run one at a time so the local limiter is enough
	limiter := fourmizzz.NewLocalLimiter(cfg.Common.Fourmizzz.RequestsPerSecond)

	return &commands.CLIDependencies{
		DB:        db,
		Migrator:  migrate.NewMigrator(db.DB(), migrations.Migrations),
		Fourmizzz: fourmizzz.NewClient(&cfg.Common.Fourmizzz, limiter, logger),
		Logger:    logger,
	}, nil
}

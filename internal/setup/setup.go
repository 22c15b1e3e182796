package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/fourmitrack/fourmitrack/internal/database"
	"github.com/fourmitrack/fourmitrack/internal/database/migrations"
	"github.com/fourmitrack/fourmitrack/internal/discord"
	"github.com/fourmitrack/fourmitrack/internal/fourmizzz"
	"github.com/fourmitrack/fourmitrack/internal/redis"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry"
	"github.com/redis/rueidis"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	DB           database.Client    // Database connection pool
	RedisManager *redis.Manager     // Redis connection manager
	StatusClient rueidis.Client     // Redis client for worker status reporting
	Fourmizzz    *fourmizzz.Client  // Game site scraper
	DiscordAPI   *discord.RestAPI   // Discord REST client
	Notifier     *discord.Notifier  // Notification relay
	LogManager   *telemetry.Manager // Log management system
	pprofServer  *pprofServer       // Debug HTTP server for pprof
	tracing      bool               // Whether spans are exported
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
// Workers pass their type to name their log component.
func InitializeApp(
	ctx context.Context, serviceType telemetry.ServiceType, logDir string, workerType ...string,
) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	var name string
	if len(workerType) > 0 {
		name = workerType[0]
	}

	// Tracing is configured first so the loggers can forward errors as spans
	tracing := telemetry.StartTracing(&cfg.Common.Telemetry, config.RepositoryVersion)

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug, name)
	if tracing {
		logManager.ForwardErrors()
	}

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	// Redis manager provides connection pools for various subsystems
	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.Common.PostgreSQL, dbLogger)
	if err != nil {
		redisManager.Close()
		return nil, err
	}

	// Get Redis client for worker status reporting
	statusClient, err := redisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		db.Close()
		redisManager.Close()

		return nil, err
	}

	// Game site client shares its rate limit through Redis when configured
	limiter, err := newLimiter(&cfg.Common.Fourmizzz, redisManager, logger)
	if err != nil {
		db.Close()
		redisManager.Close()

		return nil, err
	}

	scraper := fourmizzz.NewClient(&cfg.Common.Fourmizzz, limiter, logger)

	// Discord relay
	discordAPI := discord.NewRestAPI(cfg.Common.Discord.Token, logger)
	notifier := discord.NewNotifier(discordAPI, &cfg.Common.Discord, logger)

	// Start pprof server if enabled
	var pprofSrv *pprofServer

	if cfg.Common.Debug.EnablePprof {
		srv, err := startPprofServer(ctx, cfg.Common.Debug.PprofPort, logger)
		if err != nil {
			logger.Error("Failed to start pprof server", zap.Error(err))
		} else {
			pprofSrv = srv

			logger.Warn("pprof debugging endpoint enabled - this should not be used in production!")
		}
	}

	// Bundle all initialized components
	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		DB:           db,
		RedisManager: redisManager,
		StatusClient: statusClient,
		Fourmizzz:    scraper,
		DiscordAPI:   discordAPI,
		Notifier:     notifier,
		LogManager:   logManager,
		pprofServer:  pprofSrv,
		tracing:      tracing,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	// Shutdown pprof server if running
	if s.pprofServer != nil {
		if err := s.pprofServer.shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown pprof server", zap.Error(err))
		}
	}

	// Stop the notifier caches and the Discord client
	s.Notifier.Close()
	s.DiscordAPI.Close(ctx)

	// Flush pending spans
	if s.tracing {
		if err := telemetry.StopTracing(ctx); err != nil {
			log.Printf("Failed to shutdown tracing: %v", err)
		}
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	s.RedisManager.Close()

	// Close log files
	s.LogManager.Stop()
}

// newLimiter selects the Redis backed limiter when the rate limit is shared.
func newLimiter(cfg *config.Fourmizzz, manager *redis.Manager, logger *zap.Logger) (fourmizzz.Limiter, error) {
	if !cfg.DistributedLimit {
		return fourmizzz.NewLocalLimiter(cfg.RequestsPerSecond), nil
	}

	client, err := manager.GetClient(redis.RatelimitDBIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit client: %w", err)
	}

	return fourmizzz.NewRedisLimiter(client, cfg.RequestsPerSecond, logger), nil
}

// checkAndRunMigrations runs database migrations if needed.
func checkAndRunMigrations(ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger) (database.Client, error) {
	tempDB, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(tempDB.DB(), migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	unapplied := ms.Unapplied()
	if len(unapplied) == 0 {
		return tempDB, nil
	}

	log.Printf("%d database migrations are pending. Would you like to run them now? (y/N)", len(unapplied))

	var response string

	_, _ = fmt.Scanln(&response)

	if response != "y" && response != "Y" {
		tempDB.Close()
		log.Fatalf("Closing program due to incomplete migrations")
	}

	tempDB.Close()

	return database.NewConnection(ctx, cfg, dbLogger, true)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidTimezone       = errors.New("invalid notification timezone")
	ErrInvalidRequestRate    = errors.New("requests_per_second must not be negative")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.3.0"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Worker WorkerConfig
}

// CommonConfig contains configuration shared between the worker and the admin tools.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Fourmizzz  Fourmizzz  `koanf:"fourmizzz"`
	Discord    Discord    `koanf:"discord"`
	Telemetry  Telemetry  `koanf:"telemetry"`
}

// WorkerConfig contains worker specific configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Startup delay in milliseconds.
	StartupDelay  int           `koanf:"startup_delay"`
	Intervals     Intervals     `koanf:"intervals"`
	Scan          Scan          `koanf:"scan"`
	Retention     Retention     `koanf:"retention"`
	Notifications Notifications `koanf:"notifications"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
	// Enable pprof debugging.
	EnablePprof bool `koanf:"enable_pprof"`
	// pprof server port.
	PprofPort int `koanf:"pprof_port"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
	// Disable client side caching for servers without RESP3 tracking.
	DisableCache bool `koanf:"disable_cache"`
}

// Fourmizzz contains game site scraping configuration.
type Fourmizzz struct {
	// Base URL with a %s placeholder for the server name.
	BaseURL string `koanf:"base_url"`
	// User agent sent with every request.
	UserAgent string `koanf:"user_agent"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Requests per second allowed per game server. Zero falls back to one.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	// Share the rate limit across workers through Redis.
	DistributedLimit bool `koanf:"distributed_limit"`
}

// Discord contains notification relay configuration.
type Discord struct {
	// Bot token.
	Token string `koanf:"token"`
	// Guild where categories, channels and threads are created.
	GuildID uint64 `koanf:"guild_id"`
	// Channel name used for operator reports.
	ErrorsChannel string `koanf:"errors_channel"`
	// Add guild members to newly created threads.
	AddMembers bool `koanf:"add_members"`
	// Minimum delay between API requests in milliseconds.
	RequestInterval int `koanf:"request_interval"`
	// Random jitter applied to the request delay in milliseconds.
	RequestJitter int `koanf:"request_jitter"`
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN; tracing is disabled when empty.
	DSN string `koanf:"dsn"`
	// Service name reported with traces.
	ServiceName string `koanf:"service_name"`
	// Deployment environment reported with traces.
	Environment string `koanf:"environment"`
}

// Intervals contains worker loop periods in seconds.
type Intervals struct {
	Precision int `koanf:"precision"`
	Ranking   int `koanf:"ranking"`
	Process   int `koanf:"process"`
	Purge     int `koanf:"purge"`
	Alliance  int `koanf:"alliance"`
	Vacation  int `koanf:"vacation"`
}

// Scan contains ranking scan configuration.
type Scan struct {
	// Hard ceiling on scanned pages.
	MaxPages int `koanf:"max_pages"`
	// Pages fetched concurrently within one step.
	PageConcurrency int `koanf:"page_concurrency"`
	// Targets fetched concurrently by the precision worker.
	TargetConcurrency int `koanf:"target_concurrency"`
}

// Retention contains purge configuration.
type Retention struct {
	// Snapshot horizon in hours.
	HorizonHours int `koanf:"horizon_hours"`
}

// Notifications contains message rendering configuration.
type Notifications struct {
	// IANA timezone used for timestamps in messages.
	Timezone string `koanf:"timezone"`
	// Attach a history chart to hunting field messages.
	AttachChart bool `koanf:"attach_chart"`
}

// Every converts a period in seconds to a duration, defaulting to fallback.
func Every(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}

	return time.Duration(seconds) * time.Second
}

// Location resolves the notification timezone.
func (n Notifications) Location() (*time.Location, error) {
	if n.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(n.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, n.Timezone)
	}

	return loc, nil
}

// Horizon returns the retention horizon, three days when unset.
func (r Retention) Horizon() time.Duration {
	if r.HorizonHours <= 0 {
		return 72 * time.Hour
	}

	return time.Duration(r.HorizonHours) * time.Hour
}

// LoadConfig loads the configuration from the default search paths.
func LoadConfig() (*Config, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return LoadConfigFrom([]string{
		".fourmitrack",
		homeDir + "/.fourmitrack/config",
		"/etc/fourmitrack/config",
		"/app/config",
		"config",
		".",
	})
}

// LoadConfigFrom loads every config file from the first path that has it.
func LoadConfigFrom(configPaths []string) (*Config, string, error) {
	var (
		config         Config
		usedConfigPath string
	)

	configFiles := []struct {
		name   string
		target any
	}{
		{"common", &config.Common},
		{"worker", &config.Worker},
	}

	for _, configFile := range configFiles {
		k := koanf.New(".")
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configFile.name)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configFile.name)
		}

		if err := k.Unmarshal("", configFile.target); err != nil {
			return nil, "", fmt.Errorf("error unmarshaling %s config: %w", configFile.name, err)
		}
	}

	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	if rps := config.Common.Fourmizzz.RequestsPerSecond; rps < 0 {
		return nil, "", fmt.Errorf("%w: %g", ErrInvalidRequestRate, rps)
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/fourmitrack/fourmitrack/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}

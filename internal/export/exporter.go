package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fourmitrack/fourmitrack/internal/database"
	dbTypes "github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/export/csv"
	"github.com/fourmitrack/fourmitrack/internal/export/sqlite"
	"github.com/fourmitrack/fourmitrack/internal/export/types"
	"go.uber.org/zap"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format represents a supported export format.
type Format string

const (
	FormatSQLite Format = "sqlite"
	FormatCSV    Format = "csv"
)

// EngineVersion is bumped on breaking changes to the exported layout.
const EngineVersion = "1.0.0"

// ConfigFile is the name of the written export metadata.
const ConfigFile = "export_config.json"

// Config holds the configuration for exports.
type Config struct {
	Since       time.Time `json:"since"`
	Description string    `json:"description"`
	Formats     []Format  `json:"formats"`
}

// Store reads the exported rows.
type Store interface {
	ListTargets(ctx context.Context) ([]*dbTypes.Target, error)
	PrecisionSince(ctx context.Context, since time.Time) ([]*dbTypes.PrecisionSnapshot, error)
	RankingSince(ctx context.Context, since time.Time) ([]*dbTypes.RankingSnapshot, error)
}

type dbStore struct {
	db database.Client
}

// NewStore adapts a database client to the Store interface.
func NewStore(db database.Client) Store {
	return &dbStore{db: db}
}

func (s *dbStore) ListTargets(ctx context.Context) ([]*dbTypes.Target, error) {
	return s.db.Model().Target().List(ctx)
}

func (s *dbStore) PrecisionSince(ctx context.Context, since time.Time) ([]*dbTypes.PrecisionSnapshot, error) {
	return s.db.Model().Precision().Since(ctx, since)
}

func (s *dbStore) RankingSince(ctx context.Context, since time.Time) ([]*dbTypes.RankingSnapshot, error) {
	return s.db.Model().Ranking().Since(ctx, since)
}

// Exporter writes snapshots to disk in every configured format.
type Exporter struct {
	store  Store
	outDir string
	config *Config
	logger *zap.Logger
}

// New creates a new exporter instance.
func New(store Store, outDir string, config *Config, logger *zap.Logger) *Exporter {
	if len(config.Formats) == 0 {
		config.Formats = []Format{FormatSQLite, FormatCSV}
	}

	return &Exporter{
		store:  store,
		outDir: outDir,
		config: config,
		logger: logger.Named("exporter"),
	}
}

// ExportAll loads the dataset once and writes it in every format.
func (e *Exporter) ExportAll(ctx context.Context) (*types.Dataset, error) {
	for _, format := range e.config.Formats {
		if format != FormatSQLite && format != FormatCSV {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
		}
	}

	data, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Loaded export data",
		zap.Time("since", data.Since),
		zap.Int("targets", len(data.Targets)),
		zap.Int("precision", len(data.Precision)),
		zap.Int("ranking", len(data.Ranking)))

	if err := e.writeConfig(); err != nil {
		return nil, err
	}

	for _, format := range e.config.Formats {
		if err := e.export(format, data); err != nil {
			return nil, fmt.Errorf("failed to export %s format: %w", format, err)
		}

		e.logger.Info("Wrote export", zap.String("format", string(format)))
	}

	return data, nil
}

func (e *Exporter) load(ctx context.Context) (*types.Dataset, error) {
	targets, err := e.store.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}

	precision, err := e.store.PrecisionSince(ctx, e.config.Since)
	if err != nil {
		return nil, fmt.Errorf("failed to load precision snapshots: %w", err)
	}

	ranking, err := e.store.RankingSince(ctx, e.config.Since)
	if err != nil {
		return nil, fmt.Errorf("failed to load ranking snapshots: %w", err)
	}

	return &types.Dataset{
		Since:     e.config.Since,
		Targets:   targets,
		Precision: precision,
		Ranking:   ranking,
	}, nil
}

// writeConfig saves the export configuration next to the data.
func (e *Exporter) writeConfig() error {
	jsonConfig := struct {
		*Config

		EngineVersion string `json:"engineVersion"`
	}{
		Config:        e.config,
		EngineVersion: EngineVersion,
	}

	configData, err := sonic.MarshalIndent(jsonConfig, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal export config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(e.outDir, ConfigFile), configData, 0o600); err != nil {
		return fmt.Errorf("failed to write export config: %w", err)
	}

	return nil
}

func (e *Exporter) export(format Format, data *types.Dataset) error {
	switch format {
	case FormatSQLite:
		return sqlite.New(e.outDir).Export(data)
	case FormatCSV:
		return csv.New(e.outDir).Export(data)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

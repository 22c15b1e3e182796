package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	dbTypes "github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/export/types"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Filename is the name of the exported database.
const Filename = "snapshots.db"

const batchSize = 1000

const schema = `
CREATE TABLE targets (
	id INTEGER PRIMARY KEY,
	server TEXT NOT NULL,
	name TEXT NOT NULL,
	alliance TEXT NOT NULL,
	on_vacation INTEGER NOT NULL
);
CREATE TABLE precision_snapshots (
	id INTEGER PRIMARY KEY,
	target_id INTEGER NOT NULL,
	time TEXT NOT NULL,
	value INTEGER NOT NULL,
	trophies INTEGER NOT NULL,
	value_diff INTEGER NOT NULL,
	trophies_diff INTEGER NOT NULL,
	processed INTEGER NOT NULL
);
CREATE TABLE ranking_snapshots (
	id INTEGER PRIMARY KEY,
	server_id INTEGER NOT NULL,
	player_name TEXT NOT NULL,
	time TEXT NOT NULL,
	value INTEGER NOT NULL,
	trophies INTEGER NOT NULL,
	value_diff INTEGER NOT NULL,
	trophies_diff INTEGER NOT NULL
);
CREATE INDEX idx_precision_target_time ON precision_snapshots (target_id, time);
CREATE INDEX idx_ranking_server_time ON ranking_snapshots (server_id, time);
`

// Exporter handles exporting snapshots to a SQLite database.
type Exporter struct {
	outDir string
}

// New creates a new SQLite exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export writes the dataset to a fresh database file.
func (e *Exporter) Export(data *types.Dataset) error {
	path := filepath.Join(e.outDir, Filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing file %s: %w", Filename, err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate|sqlite.OpenReadWrite)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer conn.Close()

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	targets := data.TargetRows()
	err = insert(conn, "INSERT INTO targets VALUES (?, ?, ?, ?, ?)", targets, func(r types.TargetRow) []any {
		return []any{r.ID, r.Server, r.Name, r.Alliance, r.OnVacation}
	})
	if err != nil {
		return fmt.Errorf("failed to export targets: %w", err)
	}

	err = insert(conn, "INSERT INTO precision_snapshots VALUES (?, ?, ?, ?, ?, ?, ?, ?)", data.Precision,
		func(s *dbTypes.PrecisionSnapshot) []any {
			return []any{
				s.ID, s.TargetID, s.Time.UTC().Format(time.RFC3339),
				s.Value, s.Trophies, s.ValueDiff, s.TrophiesDiff, s.Processed,
			}
		})
	if err != nil {
		return fmt.Errorf("failed to export precision snapshots: %w", err)
	}

	err = insert(conn, "INSERT INTO ranking_snapshots VALUES (?, ?, ?, ?, ?, ?, ?, ?)", data.Ranking,
		func(s *dbTypes.RankingSnapshot) []any {
			return []any{
				s.ID, s.ServerID, s.PlayerName, s.Time.UTC().Format(time.RFC3339),
				s.Value, s.Trophies, s.ValueDiff, s.TrophiesDiff,
			}
		})
	if err != nil {
		return fmt.Errorf("failed to export ranking snapshots: %w", err)
	}

	return nil
}

// insert writes rows in batches, one transaction per batch.
func insert[T any](conn *sqlite.Conn, query string, rows []T, args func(T) []any) error {
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))

		if err := insertBatch(conn, query, rows[i:end], args); err != nil {
			return err
		}
	}

	return nil
}

func insertBatch[T any](conn *sqlite.Conn, query string, rows []T, args func(T) []any) (err error) {
	defer sqlitex.Save(conn)(&err)

	for _, row := range rows {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args(row)}); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}

	return nil
}

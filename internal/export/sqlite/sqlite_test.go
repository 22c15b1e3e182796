package sqlite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	dbTypes "github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/export/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func testDataset() *types.Dataset {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	allianceID := int64(7)

	return &types.Dataset{
		Since: at.Add(-time.Hour),
		Targets: []*dbTypes.Target{
			{
				ID:         1,
				Name:       "alice",
				AllianceID: &allianceID,
				Server:     &dbTypes.Server{Name: "s1"},
				Alliance:   &dbTypes.Alliance{ID: allianceID, Name: "FOO"},
			},
			{ID: 2, Name: "bob's", Server: &dbTypes.Server{Name: "s1"}, OnVacation: true},
		},
		Precision: []*dbTypes.PrecisionSnapshot{
			{ID: 10, TargetID: 1, Time: at, Value: 1000, Trophies: 5, Processed: true},
			{ID: 11, TargetID: 1, Time: at.Add(time.Minute), Value: 1200, Trophies: 5, ValueDiff: 200},
		},
		Ranking: []*dbTypes.RankingSnapshot{
			{ID: 20, ServerID: 1, PlayerName: "alice", Time: at, Value: 1200, Trophies: 5, ValueDiff: 200},
		},
	}
}

func count(t *testing.T, conn *sqlite.Conn, table string) int64 {
	t.Helper()

	var n int64
	err := sqlitex.ExecuteTransient(conn, "SELECT COUNT(*) FROM "+table, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt64(0)
			return nil
		},
	})
	require.NoError(t, err)

	return n
}

func TestExporterExport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, New(dir).Export(testDataset()))

	conn, err := sqlite.OpenConn(filepath.Join(dir, Filename), sqlite.OpenReadOnly)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, int64(2), count(t, conn, "targets"))
	assert.Equal(t, int64(2), count(t, conn, "precision_snapshots"))
	assert.Equal(t, int64(1), count(t, conn, "ranking_snapshots"))

	var (
		name     string
		alliance string
		diff     int64
	)

	err = sqlitex.ExecuteTransient(conn, `
		SELECT t.name, t.alliance, p.value_diff
		FROM precision_snapshots p JOIN targets t ON t.id = p.target_id
		WHERE p.id = 11`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			name = stmt.ColumnText(0)
			alliance = stmt.ColumnText(1)
			diff = stmt.ColumnInt64(2)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.Equal(t, "FOO", alliance)
	assert.Equal(t, int64(200), diff)
}

func TestExporterOverwritesExistingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Filename), []byte("invalid sqlite db"), 0o644))

	require.NoError(t, New(dir).Export(testDataset()))

	conn, err := sqlite.OpenConn(filepath.Join(dir, Filename), sqlite.OpenReadOnly)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, int64(2), count(t, conn, "targets"))
}

func TestExporterRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	data := testDataset()
	data.Ranking = append(data.Ranking, data.Ranking[0])

	require.Error(t, New(t.TempDir()).Export(data))
}

package csv_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	dbTypes "github.com/fourmitrack/fourmitrack/internal/database/types"
	exportCSV "github.com/fourmitrack/fourmitrack/internal/export/csv"
	"github.com/fourmitrack/fourmitrack/internal/export/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readCSVFile reads every row of a csv file.
func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	return rows
}

func TestExporter_Export(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data := &types.Dataset{
		Targets: []*dbTypes.Target{
			{ID: 1, Name: "alice, the first", Server: &dbTypes.Server{Name: "s1"}},
		},
		Precision: []*dbTypes.PrecisionSnapshot{
			{ID: 10, TargetID: 1, Time: at, Value: 1000, Trophies: 5, ValueDiff: -50, Processed: true},
		},
	}

	dir := t.TempDir()
	require.NoError(t, exportCSV.New(dir).Export(data))

	targets := readCSVFile(t, filepath.Join(dir, exportCSV.TargetsFile))
	assert.Equal(t, [][]string{
		{"id", "server", "name", "alliance", "on_vacation"},
		{"1", "s1", "alice, the first", "", "false"},
	}, targets)

	precision := readCSVFile(t, filepath.Join(dir, exportCSV.PrecisionFile))
	require.Len(t, precision, 2)
	assert.Equal(t, []string{"10", "1", "2026-03-01T12:00:00Z", "1000", "5", "-50", "0", "true"}, precision[1])

	ranking := readCSVFile(t, filepath.Join(dir, exportCSV.RankingFile))
	assert.Len(t, ranking, 1, "only the header is written without snapshots")
}

func TestExporter_Overwrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, exportCSV.RankingFile), []byte("stale\nrows\n"), 0o644))

	require.NoError(t, exportCSV.New(dir).Export(&types.Dataset{}))

	ranking := readCSVFile(t, filepath.Join(dir, exportCSV.RankingFile))
	assert.Len(t, ranking, 1)
}

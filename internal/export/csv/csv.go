package csv

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/export/types"
)

// Files written by the exporter.
const (
	TargetsFile   = "targets.csv"
	PrecisionFile = "precision.csv"
	RankingFile   = "ranking.csv"
)

// Exporter handles exporting snapshots to csv files.
type Exporter struct {
	outDir string
}

// New creates a new csv exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export writes targets, precision and ranking snapshots to separate csv files.
func (e *Exporter) Export(data *types.Dataset) error {
	targets := [][]string{{"id", "server", "name", "alliance", "on_vacation"}}
	for _, r := range data.TargetRows() {
		targets = append(targets, []string{
			itoa(r.ID), r.Server, r.Name, r.Alliance, strconv.FormatBool(r.OnVacation),
		})
	}

	precision := [][]string{{"id", "target_id", "time", "value", "trophies", "value_diff", "trophies_diff", "processed"}}
	for _, s := range data.Precision {
		precision = append(precision, []string{
			itoa(s.ID), itoa(s.TargetID), s.Time.UTC().Format(time.RFC3339),
			itoa(s.Value), itoa(s.Trophies), itoa(s.ValueDiff), itoa(s.TrophiesDiff),
			strconv.FormatBool(s.Processed),
		})
	}

	ranking := [][]string{{"id", "server_id", "player_name", "time", "value", "trophies", "value_diff", "trophies_diff"}}
	for _, s := range data.Ranking {
		ranking = append(ranking, []string{
			itoa(s.ID), itoa(s.ServerID), s.PlayerName, s.Time.UTC().Format(time.RFC3339),
			itoa(s.Value), itoa(s.Trophies), itoa(s.ValueDiff), itoa(s.TrophiesDiff),
		})
	}

	for filename, rows := range map[string][][]string{
		TargetsFile:   targets,
		PrecisionFile: precision,
		RankingFile:   ranking,
	} {
		if err := e.writeFile(filename, rows); err != nil {
			return fmt.Errorf("failed to export %s: %w", filename, err)
		}
	}

	return nil
}

// writeFile replaces a csv file with the given rows.
func (e *Exporter) writeFile(filename string, rows [][]string) error {
	file, err := os.Create(filepath.Join(e.outDir, filename))
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}

	return file.Close()
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

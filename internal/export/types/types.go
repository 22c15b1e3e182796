package types

import (
	"time"

	dbTypes "github.com/fourmitrack/fourmitrack/internal/database/types"
)

// Dataset is everything written by one export.
type Dataset struct {
	Since     time.Time
	Targets   []*dbTypes.Target
	Precision []*dbTypes.PrecisionSnapshot
	Ranking   []*dbTypes.RankingSnapshot
}

// TargetRow flattens a target with its server and alliance names.
type TargetRow struct {
	ID         int64
	Server     string
	Name       string
	Alliance   string
	OnVacation bool
}

// TargetRows flattens the targets of the dataset.
func (d *Dataset) TargetRows() []TargetRow {
	rows := make([]TargetRow, len(d.Targets))
	for i, target := range d.Targets {
		var server string
		if target.Server != nil {
			server = target.Server.Name
		}

		rows[i] = TargetRow{
			ID:         target.ID,
			Server:     server,
			Name:       target.Name,
			Alliance:   target.AllianceName(),
			OnVacation: target.OnVacation,
		}
	}

	return rows
}

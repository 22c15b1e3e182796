package correlate

import (
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/discord"
)

// Metric is a tracked statistic correlated independently of the others.
type Metric int

const (
	// HuntingField is the land area used for the leaderboard.
	HuntingField Metric = iota
	// Trophies is the secondary statistic.
	Trophies
)

// Metrics lists every correlated metric in evaluation order.
var Metrics = []Metric{HuntingField, Trophies} //nolint:gochecknoglobals // -

// String returns the metric name used in logs.
func (m Metric) String() string {
	switch m {
	case HuntingField:
		return "hunting_field"
	case Trophies:
		return "trophies"
	default:
		return "unknown"
	}
}

// Title returns the notification title.
func (m Metric) Title() string {
	if m == Trophies {
		return "Trophies move"
	}

	return "Hunting field move"
}

// Color returns the notification embed color.
func (m Metric) Color() int {
	if m == Trophies {
		return discord.ColorTrophies
	}

	return discord.ColorHuntingField
}

// Silent reports whether notifications for the metric suppress pings.
func (m Metric) Silent() bool {
	return m == HuntingField
}

// precision returns the value and diff of a precision snapshot.
func (m Metric) precision(s *types.PrecisionSnapshot) (int64, int64) {
	if m == Trophies {
		return s.Trophies, s.TrophiesDiff
	}

	return s.Value, s.ValueDiff
}

// ranking returns the value and diff of a ranking snapshot.
func (m Metric) ranking(s *types.RankingSnapshot) (int64, int64) {
	if m == Trophies {
		return s.Trophies, s.TrophiesDiff
	}

	return s.Value, s.ValueDiff
}

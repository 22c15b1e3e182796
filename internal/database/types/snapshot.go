package types

import "time"

// PrecisionSnapshot is a per-player observation from the profile page.
type PrecisionSnapshot struct {
	ID           int64     `bun:",pk,autoincrement"    json:"id"`
	TargetID     int64     `bun:",notnull"             json:"targetId"`
	Time         time.Time `bun:",notnull"             json:"time"`
	Value        int64     `bun:",notnull"             json:"value"`
	Trophies     int64     `bun:",notnull"             json:"trophies"`
	ValueDiff    int64     `bun:",notnull,default:0"   json:"valueDiff"`
	TrophiesDiff int64     `bun:",notnull,default:0"   json:"trophiesDiff"`
	Processed    bool      `bun:",notnull,default:false" json:"processed"`
}

// RankingSnapshot is a leaderboard row observed on a ranking page.
type RankingSnapshot struct {
	ID           int64     `bun:",pk,autoincrement"  json:"id"`
	ServerID     int64     `bun:",notnull"           json:"serverId"`
	PlayerName   string    `bun:",notnull"           json:"playerName"`
	Time         time.Time `bun:",notnull"           json:"time"`
	Value        int64     `bun:",notnull"           json:"value"`
	Trophies     int64     `bun:",notnull"           json:"trophies"`
	ValueDiff    int64     `bun:",notnull,default:0" json:"valueDiff"`
	TrophiesDiff int64     `bun:",notnull,default:0" json:"trophiesDiff"`
}

// Observation is a raw measurement before diffs are derived.
type Observation struct {
	Time     time.Time
	Value    int64
	Trophies int64
}

// NewPrecisionSnapshot derives a snapshot from an observation and the
// previous snapshot of the same target. The first snapshot of a target has
// zero diffs and nothing to explain, so it is stored processed. The second
// return value is false when nothing changed since the previous snapshot.
func NewPrecisionSnapshot(targetID int64, obs Observation, prev *PrecisionSnapshot) (*PrecisionSnapshot, bool) {
	snapshot := &PrecisionSnapshot{
		TargetID: targetID,
		Time:     obs.Time,
		Value:    obs.Value,
		Trophies: obs.Trophies,
	}

	if prev == nil {
		snapshot.Processed = true
		return snapshot, true
	}

	snapshot.ValueDiff = obs.Value - prev.Value
	snapshot.TrophiesDiff = obs.Trophies - prev.Trophies

	return snapshot, snapshot.ValueDiff != 0 || snapshot.TrophiesDiff != 0
}

// NewRankingSnapshot derives a ranking snapshot from an observed row and the
// latest snapshot for the same name. The second return value is false when
// the row is unchanged.
func NewRankingSnapshot(serverID int64, name string, obs Observation, prev *RankingSnapshot) (*RankingSnapshot, bool) {
	snapshot := &RankingSnapshot{
		ServerID:   serverID,
		PlayerName: name,
		Time:       obs.Time,
		Value:      obs.Value,
		Trophies:   obs.Trophies,
	}

	if prev == nil {
		return snapshot, true
	}

	snapshot.ValueDiff = obs.Value - prev.Value
	snapshot.TrophiesDiff = obs.Trophies - prev.Trophies

	return snapshot, snapshot.ValueDiff != 0 || snapshot.TrophiesDiff != 0
}

// RankingEntry is one row of a ranking page.
type RankingEntry struct {
	Name     string
	Value    int64
	Trophies int64
}

package types_test

import (
	"testing"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/stretchr/testify/assert"
)

func TestNewPrecisionSnapshot(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		obs           types.Observation
		prev          *types.PrecisionSnapshot
		wantChanged   bool
		wantValue     int64
		wantTrophies  int64
		wantProcessed bool
	}{
		{
			name:          "first snapshot has zero diffs",
			obs:           types.Observation{Time: now, Value: 1000, Trophies: 5},
			wantChanged:   true,
			wantProcessed: true,
		},
		{
			name:         "diffs are current minus previous",
			obs:          types.Observation{Time: now, Value: 950, Trophies: 7},
			prev:         &types.PrecisionSnapshot{Value: 1000, Trophies: 5},
			wantChanged:  true,
			wantValue:    -50,
			wantTrophies: 2,
		},
		{
			name: "unchanged observation",
			obs:  types.Observation{Time: now, Value: 1000, Trophies: 5},
			prev: &types.PrecisionSnapshot{Value: 1000, Trophies: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			snapshot, changed := types.NewPrecisionSnapshot(42, tt.obs, tt.prev)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, int64(42), snapshot.TargetID)
			assert.Equal(t, tt.obs.Value, snapshot.Value)
			assert.Equal(t, tt.wantValue, snapshot.ValueDiff)
			assert.Equal(t, tt.wantTrophies, snapshot.TrophiesDiff)
			assert.Equal(t, tt.wantProcessed, snapshot.Processed)
		})
	}
}

func TestPrecisionDiffChain(t *testing.T) {
	t.Parallel()

	values := []int64{500, 520, 480, 480, 900}

	var (
		prev     *types.PrecisionSnapshot
		diffSum  int64
		stored   int
		baseline = values[0]
	)

	for i, value := range values {
		snapshot, changed := types.NewPrecisionSnapshot(1, types.Observation{
			Time:  time.Unix(int64(i*60), 0),
			Value: value,
		}, prev)
		if !changed {
			continue
		}

		stored++
		diffSum += snapshot.ValueDiff
		prev = snapshot
	}

	assert.Equal(t, 4, stored)
	assert.Equal(t, values[len(values)-1]-baseline, diffSum)
}

func TestNewRankingSnapshot(t *testing.T) {
	t.Parallel()

	obs := types.Observation{Time: time.Now(), Value: 300, Trophies: 10}

	snapshot, changed := types.NewRankingSnapshot(3, "alice", obs, nil)
	assert.True(t, changed)
	assert.Equal(t, "alice", snapshot.PlayerName)
	assert.Zero(t, snapshot.ValueDiff)

	snapshot, changed = types.NewRankingSnapshot(3, "alice", obs, &types.RankingSnapshot{Value: 350, Trophies: 10})
	assert.True(t, changed)
	assert.Equal(t, int64(-50), snapshot.ValueDiff)
	assert.Zero(t, snapshot.TrophiesDiff)

	_, changed = types.NewRankingSnapshot(3, "alice", obs, &types.RankingSnapshot{Value: 300, Trophies: 10})
	assert.False(t, changed)
}

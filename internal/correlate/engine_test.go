package correlate_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/correlate"
	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errUnknownPlayer = errors.New("unknown player")

type fakeStore struct {
	mu        sync.Mutex
	ranking   []*types.RankingSnapshot
	processed map[int64]int
	excluded  []string
}

func newFakeStore(ranking ...*types.RankingSnapshot) *fakeStore {
	return &fakeStore{ranking: ranking, processed: make(map[int64]int)}
}

func (s *fakeStore) LatestRanking(_ context.Context, serverID int64, name string) (*types.RankingSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *types.RankingSnapshot
	for _, snapshot := range s.ranking {
		if snapshot.ServerID != serverID || snapshot.PlayerName != name {
			continue
		}
		if latest == nil || !snapshot.Time.Before(latest.Time) {
			latest = snapshot
		}
	}

	return latest, nil
}

func (s *fakeStore) RankingWindow(
	_ context.Context, serverID int64, start, end time.Time, excludeName string,
) ([]*types.RankingSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.excluded = append(s.excluded, excludeName)

	var window []*types.RankingSnapshot
	for _, snapshot := range s.ranking {
		if snapshot.ServerID == serverID && snapshot.PlayerName != excludeName &&
			!snapshot.Time.Before(start) && snapshot.Time.Before(end) {
			window = append(window, snapshot)
		}
	}

	return window, nil
}

func (s *fakeStore) MarkProcessed(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		s.processed[id]++
	}

	return nil
}

func (s *fakeStore) add(snapshot *types.RankingSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ranking = append(s.ranking, snapshot)
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []*discord.Message
	reports []string
	sendErr error
}

func (n *fakeNotifier) Send(_ context.Context, msg *discord.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sendErr != nil {
		return n.sendErr
	}

	n.sent = append(n.sent, msg)

	return nil
}

func (n *fakeNotifier) ReportError(_ context.Context, category, title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.reports = append(n.reports, category+": "+title)

	return nil
}

type fakeAlliances map[string]string

func (a fakeAlliances) PlayerAlliance(_ context.Context, _ *types.Server, name string) (string, error) {
	alliance, ok := a[name]
	if !ok {
		return "", errUnknownPlayer
	}

	return alliance, nil
}

type fakeChart struct{}

func (fakeChart) Render(context.Context, *types.Target) (*discord.File, error) {
	return &discord.File{Name: "history.png", Data: []byte{0x89, 'P', 'N', 'G'}}, nil
}

var base = time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return base.Add(time.Duration(seconds) * time.Second)
}

func newTarget() *types.Target {
	return &types.Target{
		ID:       7,
		ServerID: 1,
		Name:     "ant",
		Server:   &types.Server{ID: 1, Name: "s1"},
		Alliance: &types.Alliance{ID: 3, ServerID: 1, Name: "RED"},
	}
}

func rankingRow(id int64, name string, seconds int, value, diff int64) *types.RankingSnapshot {
	return &types.RankingSnapshot{
		ID: id, ServerID: 1, PlayerName: name, Time: at(seconds),
		Value: value, ValueDiff: diff, Trophies: 100,
	}
}

func newEngine(t *testing.T, store correlate.Store, notifier correlate.Notifier, opts ...correlate.Option) *correlate.Engine {
	t.Helper()

	engine := correlate.NewEngine(store, notifier, fakeAlliances{"bee": "BLUE", "wasp": ""},
		zaptest.NewLogger(t), opts...)
	t.Cleanup(engine.Close)

	return engine
}

func TestProcessMatchesConservation(t *testing.T) {
	t.Parallel()

	store := newFakeStore(
		rankingRow(1, "ant", 10, 950, -50),
		rankingRow(2, "bee", 12, 530, 30),
		rankingRow(3, "wasp", 14, 220, 20),
		rankingRow(4, "fly", 20, 115, 15),
		rankingRow(5, "moth", 30, 95, -5),
		rankingRow(6, "gnat", 40, 90, 0),
		rankingRow(7, "old", -5, 10, 50),
	)
	notifier := &fakeNotifier{}
	engine := newEngine(t, store, notifier, correlate.WithChart(fakeChart{}))

	batch := []*types.PrecisionSnapshot{
		{ID: 11, TargetID: 7, Time: at(45), Value: 950, ValueDiff: -50, Trophies: 100},
	}

	result, err := engine.Process(t.Context(), newTarget(), batch)
	require.NoError(t, err)

	assert.Equal(t, base, result.WindowStart)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Metrics, 1)

	metric := result.Metrics[0]
	assert.Equal(t, correlate.HuntingField, metric.Metric)
	assert.Equal(t, int64(-50), metric.Diff)
	require.Len(t, metric.Matches, 2)
	assert.Equal(t, "bee", metric.Matches[0].PlayerName)
	assert.Equal(t, "wasp", metric.Matches[1].PlayerName)

	require.Len(t, notifier.sent, 1)
	msg := notifier.sent[0]
	assert.Equal(t, "s1", msg.Category)
	assert.Equal(t, "RED", msg.Group)
	assert.Equal(t, "ant", msg.Thread)
	assert.Equal(t, "Hunting field move", msg.Title)
	assert.Equal(t, discord.ColorHuntingField, msg.Color)
	assert.True(t, msg.Silent)
	require.Len(t, msg.Files, 1)

	assert.Equal(t, strings.Join([]string{
		"Target moves:",
		"01/03/2026 12:05",
		"ant (RED): 1 000 -> 950 (-50)",
		"",
		"Corresponding moves:",
		"bee (BLUE): 500 -> 530 (+30)",
		"wasp: 200 -> 220 (+20)",
		"",
	}, "\n"), msg.Description)

	assert.Equal(t, 1, store.processed[11])
}

func TestProcessNoMatchStillNotifies(t *testing.T) {
	t.Parallel()

	store := newFakeStore(
		rankingRow(1, "ant", 10, 950, -50),
		rankingRow(2, "bee", 12, 507, 7),
	)
	notifier := &fakeNotifier{}
	engine := newEngine(t, store, notifier)

	batch := []*types.PrecisionSnapshot{
		{ID: 11, TargetID: 7, Time: at(45), Value: 950, ValueDiff: -50},
	}

	result, err := engine.Process(t.Context(), newTarget(), batch)
	require.NoError(t, err)
	require.Len(t, result.Metrics, 1)
	assert.Empty(t, result.Metrics[0].Matches)

	require.Len(t, notifier.sent, 1)
	assert.True(t, strings.HasSuffix(notifier.sent[0].Description, "Corresponding moves:\n"))
	assert.Equal(t, 1, store.processed[11])
}

func TestProcessMetricsAreIndependent(t *testing.T) {
	t.Parallel()

	store := newFakeStore(
		&types.RankingSnapshot{ID: 1, ServerID: 1, PlayerName: "ant", Time: at(5), Value: 1000, Trophies: 90, TrophiesDiff: -10},
		&types.RankingSnapshot{ID: 2, ServerID: 1, PlayerName: "bee", Time: at(6), Value: 500, ValueDiff: 40, Trophies: 60, TrophiesDiff: 10},
	)
	notifier := &fakeNotifier{}
	engine := newEngine(t, store, notifier)

	// The hunting field moves cancel out over the batch, trophies do not.
	batch := []*types.PrecisionSnapshot{
		{ID: 12, TargetID: 7, Time: at(30), Value: 1000, ValueDiff: 40, Trophies: 90, TrophiesDiff: -10},
		{ID: 11, TargetID: 7, Time: at(20), Value: 960, ValueDiff: -40, Trophies: 100},
	}

	result, err := engine.Process(t.Context(), newTarget(), batch)
	require.NoError(t, err)
	require.Len(t, result.Metrics, 1)
	assert.Equal(t, correlate.Trophies, result.Metrics[0].Metric)
	require.Len(t, result.Metrics[0].Matches, 1)
	assert.Equal(t, "bee", result.Metrics[0].Matches[0].PlayerName)

	require.Len(t, notifier.sent, 1)
	msg := notifier.sent[0]
	assert.Equal(t, "Trophies move", msg.Title)
	assert.Equal(t, discord.ColorTrophies, msg.Color)
	assert.False(t, msg.Silent)
	assert.Contains(t, msg.Description, "ant (RED): 100 -> 90 (-10)")

	assert.Equal(t, 1, store.processed[11])
	assert.Equal(t, 1, store.processed[12])
}

func TestProcessStaleWindow(t *testing.T) {
	t.Parallel()

	store := newFakeStore(rankingRow(1, "ant", 10, 950, -50))
	notifier := &fakeNotifier{}
	engine := newEngine(t, store, notifier)

	// Ranking minute is 12:05, the precision snapshot is from 12:06:30.
	batch := []*types.PrecisionSnapshot{
		{ID: 11, TargetID: 7, Time: at(90), Value: 950, ValueDiff: -50},
	}

	_, err := engine.Process(t.Context(), newTarget(), batch)
	require.ErrorIs(t, err, correlate.ErrStaleWindow)
	assert.Empty(t, store.processed)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, []string{"s1: Stale precision snapshot on s1"}, notifier.reports)

	// Fresher ranking data lets the same batch through.
	store.add(rankingRow(2, "ant", 75, 950, -50))
	store.add(rankingRow(3, "bee", 80, 550, 50))

	result, err := engine.Process(t.Context(), newTarget(), batch)
	require.NoError(t, err)
	require.Len(t, result.Metrics, 1)
	require.Len(t, result.Metrics[0].Matches, 1)
	assert.Equal(t, "bee", result.Metrics[0].Matches[0].PlayerName)
	assert.Equal(t, 1, store.processed[11])
}

func TestProcessStaleReportedOnce(t *testing.T) {
	t.Parallel()

	store := newFakeStore(rankingRow(1, "ant", 10, 950, -50))
	notifier := &fakeNotifier{}
	engine := newEngine(t, store, notifier)

	batch := []*types.PrecisionSnapshot{
		{ID: 11, TargetID: 7, Time: at(90), Value: 950, ValueDiff: -50},
	}

	for range 3 {
		_, err := engine.Process(t.Context(), newTarget(), batch)
		require.ErrorIs(t, err, correlate.ErrStaleWindow)
	}

	assert.Len(t, notifier.reports, 1)
	assert.Empty(t, store.processed)

	// A resolved stall reports again the next time it happens.
	store.add(rankingRow(2, "ant", 75, 950, -50))

	_, err := engine.Process(t.Context(), newTarget(), batch)
	require.NoError(t, err)

	later := []*types.PrecisionSnapshot{
		{ID: 12, TargetID: 7, Time: at(200), Value: 900, ValueDiff: -50},
	}

	_, err = engine.Process(t.Context(), newTarget(), later)
	require.ErrorIs(t, err, correlate.ErrStaleWindow)
	assert.Len(t, notifier.reports, 2)
}

func TestProcessIgnoresOwnDuplicateRows(t *testing.T) {
	t.Parallel()

	store := newFakeStore(
		rankingRow(1, "ant", 70, 950, -50),
		rankingRow(2, "ant", 70, 950, -50),
		rankingRow(3, "bee", 72, 550, 50),
	)
	notifier := &fakeNotifier{}
	engine := newEngine(t, store, notifier)

	batch := []*types.PrecisionSnapshot{
		{ID: 11, TargetID: 7, Time: at(80), Value: 950, ValueDiff: -50},
	}

	result, err := engine.Process(t.Context(), newTarget(), batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"ant"}, store.excluded)
	require.Len(t, result.Metrics, 1)
	require.Len(t, result.Metrics[0].Matches, 1)
	assert.Equal(t, "bee", result.Metrics[0].Matches[0].PlayerName)

	for _, metric := range result.Metrics {
		for _, match := range metric.Matches {
			assert.NotEqual(t, "ant", match.PlayerName)
		}
	}
}

func TestProcessBoundaryIsNotStale(t *testing.T) {
	t.Parallel()

	store := newFakeStore(rankingRow(1, "ant", 10, 950, -50))
	notifier := &fakeNotifier{}
	engine := newEngine(t, store, notifier)

	batch := []*types.PrecisionSnapshot{
		{ID: 11, TargetID: 7, Time: at(60), Value: 950, ValueDiff: -50},
	}

	_, err := engine.Process(t.Context(), newTarget(), batch)
	require.NoError(t, err)
	assert.Empty(t, notifier.reports)
}

func TestProcessNeverRanked(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	notifier := &fakeNotifier{}
	engine := newEngine(t, store, notifier)

	batch := []*types.PrecisionSnapshot{{ID: 11, TargetID: 7, Time: at(0), ValueDiff: 10}}

	_, err := engine.Process(t.Context(), newTarget(), batch)
	require.ErrorIs(t, err, correlate.ErrStaleWindow)
	assert.Len(t, notifier.reports, 1)
	assert.Empty(t, store.processed)
}

func TestProcessSendFailureLeavesBatch(t *testing.T) {
	t.Parallel()

	errDiscord := errors.New("discord unavailable")

	store := newFakeStore(rankingRow(1, "ant", 10, 950, -50))
	notifier := &fakeNotifier{sendErr: errDiscord}
	engine := newEngine(t, store, notifier)

	batch := []*types.PrecisionSnapshot{{ID: 11, TargetID: 7, Time: at(20), ValueDiff: -50}}

	_, err := engine.Process(t.Context(), newTarget(), batch)
	require.ErrorIs(t, err, errDiscord)
	assert.Empty(t, store.processed)
}

func TestProcessGroupFallsBackToPlayer(t *testing.T) {
	t.Parallel()

	store := newFakeStore(rankingRow(1, "ant", 10, 950, -50))
	notifier := &fakeNotifier{}
	engine := newEngine(t, store, notifier)

	target := newTarget()
	target.Alliance = nil
	target.AllianceID = nil

	_, err := engine.Process(t.Context(), target,
		[]*types.PrecisionSnapshot{{ID: 11, TargetID: 7, Time: at(20), Value: 950, ValueDiff: -50}})
	require.NoError(t, err)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "ant", notifier.sent[0].Group)
	assert.Contains(t, notifier.sent[0].Description, "ant: 1 000 -> 950 (-50)")
}

func TestProcessRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, newFakeStore(), &fakeNotifier{})

	_, err := engine.Process(t.Context(), newTarget(), nil)
	require.ErrorIs(t, err, correlate.ErrEmptyBatch)

	target := newTarget()
	target.Server = nil

	_, err = engine.Process(t.Context(), target, []*types.PrecisionSnapshot{{ID: 1}})
	require.ErrorIs(t, err, correlate.ErrMissingServer)
}

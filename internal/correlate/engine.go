// Package correlate explains the moves of tracked players by simultaneous
// moves of other players on the leaderboard.
package correlate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/discord"
	"github.com/fourmitrack/fourmitrack/pkg/utils"
	"go.uber.org/zap"
)

// Window is the span of a correlation window.
const Window = time.Minute

const (
	allianceCacheTTL = 30 * time.Minute

	// staleReportTTL is the minimum gap between stale reports of one target.
	staleReportTTL = time.Hour
)

var (
	// ErrStaleWindow is returned when the ranking data is older than the batch.
	ErrStaleWindow = errors.New("ranking data is stale relative to precision data")
	// ErrEmptyBatch is returned when there is nothing to process.
	ErrEmptyBatch = errors.New("empty precision batch")
	// ErrMissingServer is returned when the target was loaded without its server.
	ErrMissingServer = errors.New("target server not loaded")
)

// Notifier delivers notifications and operator reports.
type Notifier interface {
	Send(ctx context.Context, msg *discord.Message) error
	ReportError(ctx context.Context, category, title, description string) error
}

// AllianceResolver looks up the alliance of a player by name.
type AllianceResolver interface {
	PlayerAlliance(ctx context.Context, server *types.Server, name string) (string, error)
}

// ChartRenderer renders an attachment for a target's notification.
type ChartRenderer interface {
	Render(ctx context.Context, target *types.Target) (*discord.File, error)
}

// MetricResult is the outcome of one metric for a batch.
type MetricResult struct {
	Metric  Metric
	Diff    int64
	Matches []*types.RankingSnapshot
}

// Result is the outcome of processing a batch.
type Result struct {
	TargetID    int64
	WindowStart time.Time
	Metrics     []*MetricResult
	Processed   int
}

// Engine correlates precision batches with ranking windows.
type Engine struct {
	store     Store
	notifier  Notifier
	alliances AllianceResolver
	chart     ChartRenderer
	location  *time.Location
	cache     *utils.TTLMap[string, string]
	reported  *utils.TTLMap[int64, time.Time]
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithChart attaches a rendered chart to hunting field notifications.
func WithChart(renderer ChartRenderer) Option {
	return func(e *Engine) {
		e.chart = renderer
	}
}

// WithLocation sets the timezone of message timestamps.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		e.location = loc
	}
}

// NewEngine creates an Engine.
func NewEngine(
	store Store, notifier Notifier, alliances AllianceResolver, logger *zap.Logger, opts ...Option,
) *Engine {
	e := &Engine{
		store:     store,
		notifier:  notifier,
		alliances: alliances,
		location:  time.UTC,
		cache:     utils.NewTTLMap[string, string](allianceCacheTTL),
		reported:  utils.NewTTLMap[int64, time.Time](staleReportTTL),
		logger:    logger.Named("correlate"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Close stops background cache cleanup.
func (e *Engine) Close() {
	e.cache.Close()
	e.reported.Close()
}

// Process correlates the unprocessed snapshots of one target and marks them
// processed. A stale ranking window leaves the batch unprocessed and reports
// it to the operator channel of the server.
func (e *Engine) Process(
	ctx context.Context, target *types.Target, batch []*types.PrecisionSnapshot,
) (*Result, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w (targetID=%d)", ErrEmptyBatch, target.ID)
	}

	if target.Server == nil {
		return nil, fmt.Errorf("%w (targetID=%d)", ErrMissingServer, target.ID)
	}

	batch = slices.Clone(batch)
	slices.SortFunc(batch, func(a, b *types.PrecisionSnapshot) int {
		if c := a.Time.Compare(b.Time); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	latest := batch[len(batch)-1]

	last, err := e.store.LatestRanking(ctx, target.ServerID, target.Name)
	if err != nil {
		return nil, err
	}

	if last == nil || latest.Time.After(last.Time.Truncate(Window).Add(Window)) {
		return nil, e.reportStale(ctx, target, latest, last)
	}

	e.reported.Delete(target.ID)

	windowStart := last.Time.Truncate(Window)

	window, err := e.store.RankingWindow(ctx, target.ServerID, windowStart, windowStart.Add(Window), target.Name)
	if err != nil {
		return nil, err
	}

	result := &Result{TargetID: target.ID, WindowStart: windowStart}

	for _, metric := range Metrics {
		metricResult, err := e.correlate(ctx, target, batch, window, metric)
		if err != nil {
			return nil, err
		}

		if metricResult != nil {
			result.Metrics = append(result.Metrics, metricResult)
		}
	}

	ids := make([]int64, len(batch))
	for i, snapshot := range batch {
		ids[i] = snapshot.ID
	}

	if err := e.store.MarkProcessed(ctx, ids); err != nil {
		return nil, err
	}

	result.Processed = len(ids)

	return result, nil
}

// correlate runs the conservation search for one metric and sends its
// notification. It returns nil when the batch did not move on the metric.
func (e *Engine) correlate(
	ctx context.Context,
	target *types.Target,
	batch []*types.PrecisionSnapshot,
	window []*types.RankingSnapshot,
	metric Metric,
) (*MetricResult, error) {
	var (
		total int64
		moves []Move
	)

	for _, snapshot := range batch {
		value, diff := metric.precision(snapshot)
		if diff == 0 {
			continue
		}

		total += diff
		moves = append(moves, Move{
			Name:     target.Name,
			Alliance: target.AllianceName(),
			After:    value,
			Diff:     diff,
			Time:     snapshot.Time,
		})
	}

	if total == 0 {
		return nil, nil //nolint:nilnil // no move on this metric
	}

	sorted := candidates(metric, window)

	diffs := make([]int64, len(sorted))
	for i, c := range sorted {
		diffs[i] = c.diff
	}

	result := &MetricResult{Metric: metric, Diff: total}

	corresponding := make([]Move, 0, MaxTerms)
	for _, i := range Conserve(diffs, total, MaxTerms) {
		snapshot := sorted[i].snapshot
		value, diff := metric.ranking(snapshot)

		result.Matches = append(result.Matches, snapshot)
		corresponding = append(corresponding, Move{
			Name:     snapshot.PlayerName,
			Alliance: e.allianceOf(ctx, target.Server, snapshot.PlayerName),
			After:    value,
			Diff:     diff,
			Time:     snapshot.Time,
		})
	}

	msg := &discord.Message{
		Category:    target.Server.Name,
		Group:       target.Group(),
		Thread:      target.Name,
		Title:       metric.Title(),
		Description: describe(moves, corresponding, e.location),
		Color:       metric.Color(),
		Silent:      metric.Silent(),
		Timestamp:   batch[len(batch)-1].Time,
	}

	if metric == HuntingField && e.chart != nil {
		file, err := e.chart.Render(ctx, target)
		if err != nil {
			e.logger.Warn("Failed to render history chart",
				zap.String("target", target.Name),
				zap.Error(err))
		} else if file != nil {
			msg.Files = append(msg.Files, file)
		}
	}

	if err := e.notifier.Send(ctx, msg); err != nil {
		return nil, err
	}

	e.logger.Debug("Correlated move",
		zap.String("target", target.Name),
		zap.Stringer("metric", metric),
		zap.Int64("diff", total),
		zap.Int("candidates", len(sorted)),
		zap.Int("matches", len(result.Matches)))

	return result, nil
}

// reportStale sends a staleness report at most once per target and
// staleReportTTL, and returns ErrStaleWindow.
func (e *Engine) reportStale(
	ctx context.Context, target *types.Target, latest *types.PrecisionSnapshot, last *types.RankingSnapshot,
) error {
	rankingTime := "never"
	if last != nil {
		rankingTime = last.Time.In(e.location).Format(timeLayout)
	}

	description := fmt.Sprintf("The precision snapshot of %s was taken at %s and the last ranking snapshot is from %s.",
		target.Name, latest.Time.In(e.location).Format(timeLayout), rankingTime)

	e.logger.Warn("Stale ranking window",
		zap.String("server", target.Server.Name),
		zap.String("target", target.Name),
		zap.Time("precisionTime", latest.Time),
		zap.String("rankingTime", rankingTime))

	if _, ok := e.reported.Get(target.ID); !ok {
		err := e.notifier.ReportError(ctx, target.Server.Name,
			"Stale precision snapshot on "+target.Server.Name, description)
		if err != nil {
			e.logger.Error("Failed to report stale ranking window",
				zap.String("target", target.Name),
				zap.Error(err))
		} else {
			e.reported.Set(target.ID, latest.Time)
		}
	}

	return fmt.Errorf("%w (target=%s, precisionAt=%s, rankingAt=%s)",
		ErrStaleWindow, target.Name, latest.Time.Format(time.RFC3339), rankingTime)
}

// allianceOf resolves the alliance of a ranked player, caching the answer.
// Lookup failures render the move without an alliance.
func (e *Engine) allianceOf(ctx context.Context, server *types.Server, name string) string {
	key := server.Name + "/" + name
	if alliance, ok := e.cache.Get(key); ok {
		return alliance
	}

	alliance, err := e.alliances.PlayerAlliance(ctx, server, name)
	if err != nil {
		e.logger.Debug("Failed to resolve player alliance",
			zap.String("server", server.Name),
			zap.String("player", name),
			zap.Error(err))

		return ""
	}

	e.cache.Set(key, alliance)

	return alliance
}

// Package chart renders hunting field history charts attached to
// notifications.
package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/discord"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	// FileName is the attachment name of rendered charts.
	FileName = "history.png"

	width  = 900
	height = 400

	titleFontSize   = 12.0
	axisFontSize    = 10.0
	xAxisRotation   = 45.0
	gridLineWidth   = 1.0
	seriesLineWidth = 2.0
	paddingTop      = 30
	paddingBottom   = 30
	paddingLeft     = 20
	paddingRight    = 20

	tickLayout = "02/01 15:04"
)

// ErrNotEnoughPoints is returned when fewer than two snapshots exist.
var ErrNotEnoughPoints = errors.New("not enough snapshots to draw a chart")

// seriesColor matches the hunting field embed color.
var seriesColor = drawing.ColorFromHex("80ff00") //nolint:gochecknoglobals // -

// HistorySource returns the snapshots of a target since a time.
type HistorySource interface {
	History(ctx context.Context, targetID int64, since time.Time) ([]*types.PrecisionSnapshot, error)
}

// Renderer draws the hunting field of a target over the retention horizon.
type Renderer struct {
	source   HistorySource
	horizon  time.Duration
	location *time.Location
}

// NewRenderer creates a Renderer.
func NewRenderer(source HistorySource, horizon time.Duration, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}

	return &Renderer{source: source, horizon: horizon, location: loc}
}

// Render returns the chart attachment of a target, or nil when there is not
// enough history to draw one.
func (r *Renderer) Render(ctx context.Context, target *types.Target) (*discord.File, error) {
	snapshots, err := r.source.History(ctx, target.ID, time.Now().Add(-r.horizon))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	buf, err := Build(target.Name, snapshots, r.location)
	if errors.Is(err, ErrNotEnoughPoints) {
		return nil, nil //nolint:nilnil // nothing to draw
	}

	if err != nil {
		return nil, err
	}

	return &discord.File{Name: FileName, Data: buf.Bytes()}, nil
}

// Build renders the hunting field of the snapshots as a PNG.
func Build(name string, snapshots []*types.PrecisionSnapshot, loc *time.Location) (*bytes.Buffer, error) {
	if len(snapshots) < 2 {
		return nil, ErrNotEnoughPoints
	}

	xValues := make([]time.Time, len(snapshots))
	yValues := make([]float64, len(snapshots))

	lowest, highest := snapshots[0].Value, snapshots[0].Value
	for i, snapshot := range snapshots {
		xValues[i] = snapshot.Time.In(loc)
		yValues[i] = float64(snapshot.Value)
		lowest = min(lowest, snapshot.Value)
		highest = max(highest, snapshot.Value)
	}

	yAxis := chart.YAxis{
		Style: chart.Style{FontSize: axisFontSize},
		GridMajorStyle: chart.Style{
			StrokeColor: chart.ColorAlternateGray,
			StrokeWidth: gridLineWidth,
		},
		ValueFormatter: func(v any) string {
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%.0f", f)
			}
			return ""
		},
	}

	// A flat series has no range of its own.
	if lowest == highest {
		yAxis.Range = &chart.ContinuousRange{Min: float64(lowest) - 1, Max: float64(highest) + 1}
	}

	graph := &chart.Chart{
		Title:      name + " hunting field",
		TitleStyle: chart.Style{FontSize: titleFontSize},
		Width:      width,
		Height:     height,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    paddingTop,
				Left:   paddingLeft,
				Right:  paddingRight,
				Bottom: paddingBottom,
			},
		},
		XAxis: chart.XAxis{
			Style: chart.Style{
				FontSize:            axisFontSize,
				TextRotationDegrees: xAxisRotation,
			},
			ValueFormatter: chart.TimeValueFormatterWithFormat(tickLayout),
		},
		YAxis: yAxis,
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Hunting field",
				XValues: xValues,
				YValues: yValues,
				Style: chart.Style{
					StrokeColor: seriesColor,
					StrokeWidth: seriesLineWidth,
				},
			},
		},
	}

	buf := new(bytes.Buffer)
	if err := graph.Render(chart.PNG, buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	return buf, nil
}

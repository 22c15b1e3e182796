// Package scan adapts how many ranking pages are taken per server so that the
// scanned range reaches a third of the lowest tracked hunting field.
package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/task"
	"go.uber.org/zap"
)

const (
	// MaxPages is the hard ceiling on scanned ranking pages.
	MaxPages = 150

	// DefaultConcurrency bounds page takes within one step.
	DefaultConcurrency = 10

	// FloorDivisor sets the threshold relative to the lowest tracked value.
	FloorDivisor = 3
)

// ErrInvalidFloor is returned when the floor is negative.
var ErrInvalidFloor = errors.New("floor must not be negative")

// PageResult is the outcome of taking one ranking page.
type PageResult struct {
	Page int
	Rows int
	// Tail is the value on the last row of the page, 0 for an empty page.
	Tail int64
}

// PageTaker fetches a ranking page and records its rows.
type PageTaker interface {
	TakePage(ctx context.Context, page int) (*PageResult, error)
}

// PageTakerFunc adapts a function to the PageTaker interface.
type PageTakerFunc func(ctx context.Context, page int) (*PageResult, error)

// TakePage implements PageTaker.
func (f PageTakerFunc) TakePage(ctx context.Context, page int) (*PageResult, error) {
	return f(ctx, page)
}

// Outcome is the result of one adjustment cycle.
type Outcome struct {
	// Depth is the number of pages to scan next cycle.
	Depth int
	// Clamped is set when even the ceiling page is above the threshold.
	Clamped bool
	// Taken counts the pages taken during the cycle.
	Taken int
	// Failures holds the error of every page that could not be taken.
	Failures map[int]error
}

// Controller computes the next scan depth of a server.
type Controller struct {
	taker       PageTaker
	logger      *zap.Logger
	maxPages    int
	concurrency int
}

// NewController creates a Controller. A non-positive maxPages or one above
// MaxPages falls back to MaxPages.
func NewController(taker PageTaker, maxPages, concurrency int, logger *zap.Logger) *Controller {
	if maxPages <= 0 || maxPages > MaxPages {
		maxPages = MaxPages
	}

	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Controller{
		taker:       taker,
		logger:      logger.Named("scan_controller"),
		maxPages:    maxPages,
		concurrency: concurrency,
	}
}

// Adjust takes pages 1..state.Depth and moves the depth toward the minimal d
// with tail(d) <= floor/3 < tail(d-1), clamped to [1, maxPages].
func (c *Controller) Adjust(ctx context.Context, floor int64, state types.ScanState) (*Outcome, error) {
	if floor < 0 {
		return nil, fmt.Errorf("%w (floor=%d)", ErrInvalidFloor, floor)
	}

	run := &cycle{
		Controller: c,
		threshold:  floor / FloorDivisor,
		tails:      make(map[int]int64),
		outcome:    &Outcome{Failures: make(map[int]error)},
	}

	depth := c.clamp(state.Depth)
	run.takeRange(ctx, depth)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tail, ok := run.tails[depth]
	switch {
	case !ok:
		run.outcome.Depth = depth
	case tail > run.threshold:
		run.outcome.Depth = run.grow(ctx, depth)
	default:
		run.outcome.Depth = run.shrink(depth)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run.outcome.Depth = c.clamp(run.outcome.Depth)

	c.logger.Debug("Adjusted scan depth",
		zap.Int64("serverID", state.ServerID),
		zap.Int64("floor", floor),
		zap.Int64("threshold", run.threshold),
		zap.Int("from", state.Depth),
		zap.Int("to", run.outcome.Depth),
		zap.Bool("clamped", run.outcome.Clamped),
		zap.Int("taken", run.outcome.Taken),
		zap.Int("failures", len(run.outcome.Failures)))

	return run.outcome, nil
}

func (c *Controller) clamp(depth int) int {
	return max(1, min(c.maxPages, depth))
}

// cycle holds the page tails known during one Adjust call.
type cycle struct {
	*Controller

	threshold int64
	tails     map[int]int64
	outcome   *Outcome
}

// takeRange takes pages 1..depth concurrently.
func (r *cycle) takeRange(ctx context.Context, depth int) {
	pages := make([]int, depth)
	for i := range pages {
		pages[i] = i + 1
	}

	results := make([]*PageResult, depth)
	errs := task.ForEach(ctx, r.concurrency, pages, func(ctx context.Context, page int) error {
		result, err := r.taker.TakePage(ctx, page)
		if err != nil {
			return err
		}

		results[page-1] = result

		return nil
	})

	for i, page := range pages {
		r.record(page, results[i], errs[i])
	}
}

// take takes a single page and reports whether its tail is known.
func (r *cycle) take(ctx context.Context, page int) (int64, bool) {
	result, err := r.taker.TakePage(ctx, page)
	r.record(page, result, err)

	tail, ok := r.tails[page]

	return tail, ok
}

func (r *cycle) record(page int, result *PageResult, err error) {
	r.outcome.Taken++

	if err == nil && result == nil {
		err = fmt.Errorf("no result for page %d", page)
	}

	if err != nil {
		r.outcome.Failures[page] = err
		r.logger.Warn("Failed to take ranking page",
			zap.Int("page", page),
			zap.Error(err))

		return
	}

	r.tails[page] = result.Tail
}

// grow doubles the depth until a deep enough page is found, then bisects.
func (r *cycle) grow(ctx context.Context, depth int) int {
	lo := depth
	hi := 0

	for hi == 0 {
		if lo >= r.maxPages {
			r.outcome.Clamped = true
			return r.maxPages
		}

		next := min(2*lo, r.maxPages)

		tail, ok := r.take(ctx, next)
		if !ok {
			return lo
		}

		if tail > r.threshold {
			lo = next
		} else {
			hi = next
		}
	}

	for hi-lo > 1 {
		mid := lo + (hi-lo)/2

		tail, ok := r.take(ctx, mid)
		if !ok {
			return hi
		}

		if tail > r.threshold {
			lo = mid
		} else {
			hi = mid
		}
	}

	return hi
}

// shrink walks from the deepest scanned page toward the first and drops
// pages while the next shallower one is also deep enough.
func (r *cycle) shrink(depth int) int {
	for depth > 1 {
		tail, ok := r.tails[depth-1]
		if !ok || tail > r.threshold {
			break
		}

		depth--
	}

	return depth
}

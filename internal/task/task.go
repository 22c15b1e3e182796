// Package task runs units of work concurrently and chains phases of work
// behind barriers.
package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

// DefaultConcurrency bounds groups created without an explicit limit.
const DefaultConcurrency = 16

// Unit is one independent piece of work.
type Unit func(ctx context.Context) error

// Group runs units concurrently. A failing unit never cancels its siblings.
type Group struct {
	limit int
}

// NewGroup creates a group running at most limit units at once.
func NewGroup(limit int) *Group {
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	return &Group{limit: limit}
}

// Run executes every unit and waits for all of them. The returned slice has
// one entry per unit, nil for units that succeeded.
func (g *Group) Run(ctx context.Context, units []Unit) []error {
	errs := make([]error, len(units))
	if len(units) == 0 {
		return errs
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(g.limit)
	for i, unit := range units {
		p.Go(func(ctx context.Context) error {
			errs[i] = unit(ctx)
			return nil
		})
	}

	_ = p.Wait()

	return errs
}

// ForEach runs fn for every item with bounded concurrency and returns the
// per-item errors in input order.
func ForEach[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) error) []error {
	units := make([]Unit, len(items))
	for i, item := range items {
		units[i] = func(ctx context.Context) error {
			return fn(ctx, item)
		}
	}

	return NewGroup(limit).Run(ctx, units)
}

// Stage builds the units of a phase once every previous phase has finished.
type Stage func(ctx context.Context) ([]Unit, error)

// PhaseReport is the outcome of one phase.
type PhaseReport struct {
	Name   string
	Units  int
	Failed int
	Err    error
}

// Pipeline runs phases in order, each phase fully completing before the next
// one starts.
type Pipeline struct {
	group  *Group
	names  []string
	stages []Stage
}

// NewPipeline creates an empty pipeline using the given unit concurrency.
func NewPipeline(limit int) *Pipeline {
	return &Pipeline{group: NewGroup(limit)}
}

// Then appends a phase.
func (p *Pipeline) Then(name string, stage Stage) *Pipeline {
	p.names = append(p.names, name)
	p.stages = append(p.stages, stage)

	return p
}

// Run executes every phase. Unit failures are reported and do not stop later
// phases; only a cancelled context or a stage that cannot build its units
// stops the pipeline.
func (p *Pipeline) Run(ctx context.Context) ([]PhaseReport, error) {
	reports := make([]PhaseReport, 0, len(p.stages))

	for i, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		report := PhaseReport{Name: p.names[i]}

		units, err := stage(ctx)
		if err != nil {
			report.Err = err
			reports = append(reports, report)

			return reports, fmt.Errorf("failed to build phase %s: %w", p.names[i], err)
		}

		report.Units = len(units)

		var failures []error
		for _, unitErr := range p.group.Run(ctx, units) {
			if unitErr != nil {
				failures = append(failures, unitErr)
			}
		}

		report.Failed = len(failures)
		report.Err = errors.Join(failures...)
		reports = append(reports, report)
	}

	return reports, nil
}

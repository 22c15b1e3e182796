package task_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCollectsErrors(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	var completed atomic.Int32

	units := []task.Unit{
		func(context.Context) error { completed.Add(1); return nil },
		func(context.Context) error { return errBoom },
		func(context.Context) error { time.Sleep(10 * time.Millisecond); completed.Add(1); return nil },
	}

	errs := task.NewGroup(2).Run(t.Context(), units)
	require.Len(t, errs, 3)
	require.NoError(t, errs[0])
	require.ErrorIs(t, errs[1], errBoom)
	require.NoError(t, errs[2])
	assert.Equal(t, int32(2), completed.Load())
}

func TestGroupBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32

	items := make([]int, 20)
	task.ForEach(t.Context(), 3, items, func(context.Context, int) error {
		current := running.Add(1)
		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)
		running.Add(-1)

		return nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPipelineBarrier(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		order []string
	)

	record := func(event string) {
		mu.Lock()
		defer mu.Unlock()

		order = append(order, event)
	}

	take := func(name string, delay time.Duration) task.Unit {
		return func(context.Context) error {
			time.Sleep(delay)
			record("take:" + name)

			return nil
		}
	}

	reports, err := task.NewPipeline(4).
		Then("take", func(context.Context) ([]task.Unit, error) {
			return []task.Unit{take("a", 20*time.Millisecond), take("b", 0), take("c", 10*time.Millisecond)}, nil
		}).
		Then("process", func(context.Context) ([]task.Unit, error) {
			record("build:process")

			return []task.Unit{func(context.Context) error {
				record("process")
				return errors.New("no match")
			}}, nil
		}).
		Run(t.Context())
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, 3, reports[0].Units)
	assert.Zero(t, reports[0].Failed)
	assert.Equal(t, 1, reports[1].Failed)
	require.Error(t, reports[1].Err)

	require.Len(t, order, 5)
	assert.ElementsMatch(t, []string{"take:a", "take:b", "take:c"}, order[:3])
	assert.Equal(t, []string{"build:process", "process"}, order[3:])
}

func TestPipelineStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())

	reports, err := task.NewPipeline(1).
		Then("first", func(context.Context) ([]task.Unit, error) {
			cancel()
			return nil, nil
		}).
		Then("second", func(context.Context) ([]task.Unit, error) {
			t.Error("second phase must not run")
			return nil, nil
		}).
		Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, reports, 1)
}

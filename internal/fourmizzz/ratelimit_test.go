package fourmizzz_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fourmitrack/fourmitrack/internal/fourmizzz"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRedisClient(t *testing.T) rueidis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestRedisLimiter(t *testing.T) {
	t.Parallel()

	limiter := fourmizzz.NewRedisLimiter(newRedisClient(t), 3, zaptest.NewLogger(t))

	allowed := 0
	for range 10 {
		ok, err := limiter.TryAcquire(t.Context(), "s1")
		require.NoError(t, err)

		if ok {
			allowed++
		}
	}

	assert.LessOrEqual(t, allowed, 3)
	assert.Positive(t, allowed)

	// Servers are limited independently
	ok, err := limiter.TryAcquire(t.Context(), "s2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterWaitCancelled(t *testing.T) {
	t.Parallel()

	limiter := fourmizzz.NewRedisLimiter(newRedisClient(t), 1, zaptest.NewLogger(t))
	require.NoError(t, limiter.Wait(t.Context(), "s1"))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	// The window is exhausted so the second wait outlives the deadline
	// unless the second boundary happens to pass first.
	err := limiter.Wait(ctx, "s1")
	if err != nil {
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
}

func TestLocalLimiter(t *testing.T) {
	t.Parallel()

	limiter := fourmizzz.NewLocalLimiter(1)
	require.NoError(t, limiter.Wait(t.Context(), "s1"))
	require.NoError(t, limiter.Wait(t.Context(), "s2"))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	require.Error(t, limiter.Wait(ctx, "s1"))
}

func TestLimiterUnsetRate(t *testing.T) {
	t.Parallel()

	redisLimiter := fourmizzz.NewRedisLimiter(newRedisClient(t), 0, zaptest.NewLogger(t))

	ok, err := redisLimiter.TryAcquire(t.Context(), "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	localLimiter := fourmizzz.NewLocalLimiter(0)

	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Second)
	defer cancel()

	require.NoError(t, localLimiter.Wait(ctx, "s1"))
	require.NoError(t, localLimiter.Wait(ctx, "s1"))
}

package redis_test

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fourmitrack/fourmitrack/internal/redis"
	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManagerSelectsDatabases(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)

	port, err := strconv.Atoi(server.Port())
	require.NoError(t, err)

	manager := redis.NewManager(&config.Redis{
		Host:         server.Host(),
		Port:         port,
		DisableCache: true,
	}, zaptest.NewLogger(t))
	t.Cleanup(manager.Close)

	status, err := manager.GetClient(redis.WorkerStatusDBIndex)
	require.NoError(t, err)

	again, err := manager.GetClient(redis.WorkerStatusDBIndex)
	require.NoError(t, err)
	assert.Same(t, status, again)

	limits, err := manager.GetClient(redis.RatelimitDBIndex)
	require.NoError(t, err)

	require.NoError(t, status.Do(t.Context(), status.B().Set().Key("k").Value("status").Build()).Error())
	require.NoError(t, limits.Do(t.Context(), limits.B().Set().Key("k").Value("limits").Build()).Error())

	server.Select(redis.WorkerStatusDBIndex)
	value, err := server.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "status", value)

	server.Select(redis.RatelimitDBIndex)
	value, err = server.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "limits", value)

	manager.Close()
	manager.Close()
}

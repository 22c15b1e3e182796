package core_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fourmitrack/fourmitrack/internal/worker/core"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, rueidis.Client) {
	t.Helper()

	server := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{server.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return server, client
}

func TestMonitorReportsStatuses(t *testing.T) {
	t.Parallel()

	server, client := newRedis(t)
	monitor := core.NewMonitor(client, zaptest.NewLogger(t))

	statuses := []core.Status{
		{WorkerID: "b", WorkerType: "ranking", CurrentTask: "Taking pages", Progress: 40, IsHealthy: true},
		{WorkerID: "a", WorkerType: "ranking", IsHealthy: false},
		{WorkerID: "c", WorkerType: "precision", IsHealthy: true},
	}

	for _, status := range statuses {
		require.NoError(t, monitor.ReportStatus(t.Context(), status))
	}

	require.NoError(t, server.Set("unrelated", "value"))
	assert.Equal(t, core.HeartbeatTTL, server.TTL("worker:ranking:b"))

	stored, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	require.Len(t, stored, 3)

	assert.Equal(t, "precision", stored[0].WorkerType)
	assert.Equal(t, "a", stored[1].WorkerID)
	assert.False(t, stored[1].IsHealthy)
	assert.Equal(t, "Taking pages", stored[2].CurrentTask)
	assert.Equal(t, 40, stored[2].Progress)
	assert.False(t, stored[2].IsStale(time.Now()))
	assert.True(t, stored[2].IsStale(time.Now().Add(2*core.StaleThreshold)))

	require.NoError(t, monitor.RemoveStatus(t.Context(), statuses[0]))
	assert.False(t, server.Exists("worker:ranking:b"))
}

func TestStatusReporterHeartbeat(t *testing.T) {
	t.Parallel()

	server, client := newRedis(t)
	logger := zaptest.NewLogger(t)

	reporter := core.NewStatusReporter(client, "process", logger)
	reporter.SetInterval(10 * time.Millisecond)
	reporter.UpdateStatus("Correlating", 50)
	reporter.SetHealthy(false)
	reporter.Start(t.Context())

	key := "worker:process:" + reporter.GetWorkerID()
	require.Eventually(t, func() bool { return server.Exists(key) }, time.Second, 5*time.Millisecond)

	monitor := core.NewMonitor(client, logger)
	require.Eventually(t, func() bool {
		statuses, err := monitor.GetAllStatuses(t.Context())
		return err == nil && len(statuses) == 1 && statuses[0].CurrentTask == "Correlating"
	}, time.Second, 5*time.Millisecond)

	reporter.UpdateStatus("Idle", 0)
	require.Eventually(t, func() bool {
		statuses, err := monitor.GetAllStatuses(t.Context())
		return err == nil && len(statuses) == 1 && statuses[0].CurrentTask == "Idle"
	}, time.Second, 5*time.Millisecond)

	reporter.Stop()
	reporter.Stop()
	assert.False(t, server.Exists(key))
}

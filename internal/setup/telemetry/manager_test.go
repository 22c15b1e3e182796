package telemetry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCreatesSession(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	debug := &config.Debug{LogLevel: "info", MaxLogsToKeep: 2, MaxLogLines: 100}

	manager := telemetry.NewManager(telemetry.ServiceWorker, logDir, debug, "ranking")
	defer manager.Stop()

	mainLogger, dbLogger, err := manager.GetLoggers()
	require.NoError(t, err)

	mainLogger.Info("started")
	dbLogger.Warn("slow query")
	manager.GetWorkerLogger("ranking_worker").Info("cycle")

	session := manager.GetCurrentSessionDir()
	for _, name := range []string{"main.log", "database.log", "ranking_worker.log"} {
		_, err := os.Stat(filepath.Join(session, name))
		require.NoError(t, err, name)
	}

	target, err := os.Readlink(filepath.Join(logDir, "latest"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(session), target)

	content, err := os.ReadFile(filepath.Join(session, "main.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "ranking_worker")
	assert.NotEmpty(t, manager.GetInstanceID())
}

func TestManagerRotatesSessions(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	for _, name := range []string{"2026-01-01_00-00-00", "2026-01-02_00-00-00", "2026-01-03_00-00-00"} {
		require.NoError(t, os.MkdirAll(filepath.Join(logDir, name), os.ModePerm))
	}

	debug := &config.Debug{LogLevel: "debug", MaxLogsToKeep: 2, MaxLogLines: 100}
	manager := telemetry.NewManager(telemetry.ServiceAdmin, logDir, debug, "")
	defer manager.Stop()

	_, _, err := manager.GetLoggers()
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(logDir, "2026-01-02_00-00-00"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(logDir, "2026-01-03_00-00-00"))
	assert.NoError(t, err)
}

func TestManagerRejectsInvalidLevel(t *testing.T) {
	t.Parallel()

	debug := &config.Debug{LogLevel: "loud", MaxLogsToKeep: 1}
	manager := telemetry.NewManager(telemetry.ServiceExport, t.TempDir(), debug, "")

	_, _, err := manager.GetLoggers()
	require.Error(t, err)
}

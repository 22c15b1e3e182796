package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".toml"), []byte(content), 0o600))
}

func TestLoadConfigFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		common  string
		worker  string
		wantErr error
	}{
		{
			name:   "valid files",
			common: "version = 1\n[postgresql]\nhost = \"db\"\nport = 5433\n[fourmizzz]\nrequests_per_second = 2.5\n",
			worker: "version = 1\n[scan]\nmax_pages = 120\n[retention]\nhorizon_hours = 48\n",
		},
		{
			name:    "missing worker file",
			common:  "version = 1\n",
			wantErr: config.ErrConfigFileNotFound,
		},
		{
			name:    "missing version",
			common:  "[postgresql]\nhost = \"db\"\n",
			worker:  "version = 1\n",
			wantErr: config.ErrConfigVersionMissing,
		},
		{
			name:    "version mismatch",
			common:  "version = 1\n",
			worker:  "version = 9\n",
			wantErr: config.ErrConfigVersionMismatch,
		},
		{
			name:    "negative request rate",
			common:  "version = 1\n[fourmizzz]\nrequests_per_second = -0.5\n",
			worker:  "version = 1\n",
			wantErr: config.ErrInvalidRequestRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tt.common != "" {
				writeConfig(t, dir, "common", tt.common)
			}

			if tt.worker != "" {
				writeConfig(t, dir, "worker", tt.worker)
			}

			cfg, usedPath, err := config.LoadConfigFrom([]string{filepath.Join(dir, "missing"), dir})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, dir, usedPath)
			assert.Equal(t, "db", cfg.Common.PostgreSQL.Host)
			assert.Equal(t, 5433, cfg.Common.PostgreSQL.Port)
			assert.InDelta(t, 2.5, cfg.Common.Fourmizzz.RequestsPerSecond, 0.001)
			assert.Equal(t, 120, cfg.Worker.Scan.MaxPages)
			assert.Equal(t, 48*time.Hour, cfg.Worker.Retention.Horizon())
		})
	}
}

func TestLoadRepositoryConfig(t *testing.T) {
	t.Parallel()

	cfg, _, err := config.LoadConfigFrom([]string{"../../../config"})
	require.NoError(t, err)
	assert.Equal(t, 150, cfg.Worker.Scan.MaxPages)
	assert.Equal(t, "errors", cfg.Common.Discord.ErrorsChannel)

	loc, err := cfg.Worker.Notifications.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 72*time.Hour, config.Retention{}.Horizon())
	assert.Equal(t, time.Minute, config.Every(0, time.Minute))
	assert.Equal(t, 5*time.Second, config.Every(5, time.Minute))

	loc, err := config.Notifications{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = config.Notifications{Timezone: "Mars/Olympus"}.Location()
	require.ErrorIs(t, err, config.ErrInvalidTimezone)
}

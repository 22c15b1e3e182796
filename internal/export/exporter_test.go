package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	dbTypes "github.com/fourmitrack/fourmitrack/internal/database/types"
	"github.com/fourmitrack/fourmitrack/internal/export/csv"
	"github.com/fourmitrack/fourmitrack/internal/export/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStore struct {
	since     time.Time
	precision []*dbTypes.PrecisionSnapshot
}

func (s *fakeStore) ListTargets(context.Context) ([]*dbTypes.Target, error) {
	return []*dbTypes.Target{{ID: 1, Name: "alice", Server: &dbTypes.Server{Name: "s1"}}}, nil
}

func (s *fakeStore) PrecisionSince(_ context.Context, since time.Time) ([]*dbTypes.PrecisionSnapshot, error) {
	s.since = since
	return s.precision, nil
}

func (s *fakeStore) RankingSince(context.Context, time.Time) ([]*dbTypes.RankingSnapshot, error) {
	return nil, nil
}

func TestExportAll(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		precision: []*dbTypes.PrecisionSnapshot{{ID: 1, TargetID: 1, Time: since, Value: 10}},
	}

	dir := t.TempDir()
	exporter := New(store, dir, &Config{Since: since, Description: "weekly"}, zaptest.NewLogger(t))

	data, err := exporter.ExportAll(t.Context())
	require.NoError(t, err)
	assert.Equal(t, since, store.since)
	assert.Len(t, data.Precision, 1)

	for _, name := range []string{ConfigFile, sqlite.Filename, csv.PrecisionFile, csv.TargetsFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	raw, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)

	var written map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &written))
	assert.Equal(t, EngineVersion, written["engineVersion"])
	assert.Equal(t, "weekly", written["description"])
}

func TestExportAllRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	exporter := New(&fakeStore{}, t.TempDir(), &Config{Formats: []Format{"binary"}}, zaptest.NewLogger(t))

	_, err := exporter.ExportAll(t.Context())
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

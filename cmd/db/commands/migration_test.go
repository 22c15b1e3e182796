package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap/zaptest"
)

func TestRenderMigrations(t *testing.T) {
	t.Parallel()

	appliedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	renderMigrations(&buf, migrate.MigrationSlice{
		{ID: 1, Name: "20260301000000", Comment: "initial_schema", GroupID: 2, MigratedAt: appliedAt},
		{Name: "20260301000001", Comment: "initial_indexes"},
	})

	lines := strings.Split(buf.String(), "\n")
	out := buf.String()

	assert.Contains(t, out, "initial_schema")
	assert.Contains(t, out, "#2")
	assert.Contains(t, out, appliedAt.Format(time.DateTime))
	assert.Contains(t, strings.ToLower(out), "total")

	var pending string
	for _, line := range lines {
		if strings.Contains(line, "initial_indexes") {
			pending = line
		}
	}

	assert.Contains(t, pending, "pending")
	assert.NotContains(t, pending, "#")
}

func TestReportGroup(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)

	tests := []struct {
		name  string
		group *migrate.MigrationGroup
		want  string
	}{
		{name: "nil group"},
		{name: "empty group", group: &migrate.MigrationGroup{}},
		{
			name: "applied group",
			group: &migrate.MigrationGroup{
				ID: 3,
				Migrations: migrate.MigrationSlice{
					{ID: 4, Name: "20260301000001", Comment: "initial_indexes", GroupID: 3, MigratedAt: time.Now()},
				},
			},
			want: "initial_indexes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			reportGroup(&buf, logger, "Applied", tt.group)

			if tt.want == "" {
				assert.Empty(t, buf.String())
				return
			}

			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), "#3")
		})
	}
}

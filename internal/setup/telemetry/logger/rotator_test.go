package logger_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatorKeepsRecentLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "worker.log")

	rotator, err := logger.NewRotator(path, 3)
	require.NoError(t, err)
	defer rotator.Close()

	for i := range 6 {
		_, err := fmt.Fprintf(rotator, "line %d\n", i)
		require.NoError(t, err)
	}

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Equal(t, []string{"line 3", "line 4", "line 5"}, lines)

	_, err = fmt.Fprintln(rotator, "line 6")
	require.NoError(t, err)

	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(content), "line 5\nline 6\n"))
}

func TestRotatorBelowCap(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main.log")

	rotator, err := logger.NewRotator(path, 10)
	require.NoError(t, err)
	defer rotator.Close()

	_, err = rotator.Write([]byte("first\nsecond\n"))
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(content))
}

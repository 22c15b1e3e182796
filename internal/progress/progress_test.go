package progress_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBar(t *testing.T) {
	t.Parallel()

	t.Run("step message moves the bar", func(t *testing.T) {
		t.Parallel()

		bar := progress.NewBar("ranking", 10)
		bar.SetStepMessage("Fetching pages", 50)

		assert.Equal(t, int64(50), bar.Percent())
		assert.Equal(t, "Fetching pages", bar.Step())
		assert.Contains(t, bar.String(), "[=====-----]")
		assert.Contains(t, bar.String(), "Fetching pages")
	})

	t.Run("percent is clamped", func(t *testing.T) {
		t.Parallel()

		bar := progress.NewBar("ranking", 10)
		bar.SetStepMessage("Overflow", 250)
		assert.Equal(t, int64(100), bar.Percent())

		bar.SetStepMessage("Underflow", -5)
		assert.Equal(t, int64(0), bar.Percent())
	})

	t.Run("reset clears the cycle", func(t *testing.T) {
		t.Parallel()

		bar := progress.NewBar("process", 10)
		bar.SetStepMessage("Completed", 100)
		bar.Reset()

		assert.Equal(t, int64(0), bar.Percent())
		assert.Empty(t, bar.Step())
		assert.Contains(t, bar.String(), "[----------]")
	})
}

func TestRendererStopsOnCancel(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	bar := progress.NewBar("purge", 4)
	bar.SetStepMessage("Purging", 100)
	renderer := progress.NewRenderer([]*progress.Bar{bar}, &out)

	ctx, cancel := context.WithTimeout(t.Context(), 3*progress.RefreshInterval)
	defer cancel()

	done := make(chan struct{})
	go func() {
		renderer.Render(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("renderer did not stop")
	}

	output := out.String()
	require.Contains(t, output, "Purging")
	assert.True(t, strings.HasSuffix(output, "\033[1A\033[K"))
}

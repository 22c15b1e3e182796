package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// RefreshInterval is how often the renderer redraws its bars.
const RefreshInterval = 100 * time.Millisecond

// clearLine moves the cursor up one line and erases it.
const clearLine = "\033[1A\033[K"

// Renderer redraws a set of progress bars in place on a terminal.
type Renderer struct {
	bars   []*Bar
	output io.Writer
	mu     sync.Mutex
	drawn  bool
}

// NewRenderer creates a Renderer writing to the given output.
func NewRenderer(bars []*Bar, output io.Writer) *Renderer {
	return &Renderer{
		bars:   bars,
		output: output,
	}
}

// Render redraws every bar each RefreshInterval until the context is done,
// then clears the bars from the screen.
func (r *Renderer) Render(ctx context.Context) {
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		r.Draw()

		select {
		case <-ctx.Done():
			r.Clear()
			return
		case <-ticker.C:
		}
	}
}

// Draw replaces the previously drawn bars with their current state.
func (r *Renderer) Draw() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clear()
	for _, bar := range r.bars {
		_, _ = fmt.Fprintln(r.output, bar.String())
	}
	r.drawn = true
}

// Clear erases the drawn bars.
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clear()
}

func (r *Renderer) clear() {
	if !r.drawn {
		return
	}
	for range r.bars {
		_, _ = fmt.Fprint(r.output, clearLine)
	}
	r.drawn = false
}

package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// historySize is the number of past cycle durations used for the ETA.
const historySize = 10

// Bar is a terminal progress indicator for one worker cycle. Progress is
// tracked as a percentage; every worker step reports its own position.
type Bar struct {
	mu          sync.Mutex
	name        string
	width       int
	percent     int64
	stepMessage string
	stepStart   time.Time
	cycleStart  time.Time
	cycles      []time.Duration
	now         func() time.Time
}

// NewBar creates a bar labelled with the worker name.
func NewBar(name string, width int) *Bar {
	now := time.Now()

	return &Bar{
		name:       name,
		width:      width,
		stepStart:  now,
		cycleStart: now,
		now:        time.Now,
	}
}

// SetStepMessage records the current step and moves the bar to the given
// percentage, clamped to [0, 100].
func (b *Bar) SetStepMessage(message string, percent int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stepMessage = message
	b.stepStart = b.now()
	b.percent = min(max(percent, 0), 100)
}

// Percent returns the current position.
func (b *Bar) Percent() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.percent
}

// Step returns the current step message.
func (b *Bar) Step() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.stepMessage
}

// String renders the bar with the step message, its duration, the cycle
// duration and an ETA averaged over previous cycles.
func (b *Bar) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	filled := int(b.percent) * b.width / 100
	bar := strings.Repeat("=", filled) + strings.Repeat("-", b.width-filled)

	now := b.now()
	stepDuration := now.Sub(b.stepStart).Round(time.Second)
	cycleDuration := now.Sub(b.cycleStart).Round(time.Second)

	return fmt.Sprintf("%-10s [%s] %3d%% | %s (%s) | Cycle: %s (ETA: %s)",
		b.name, bar, b.percent, b.stepMessage, stepDuration, cycleDuration, b.eta())
}

func (b *Bar) eta() string {
	if len(b.cycles) == 0 {
		return "0s"
	}

	var total time.Duration
	for _, d := range b.cycles {
		total += d
	}

	return (total / time.Duration(len(b.cycles))).Round(time.Second).String()
}

// Reset starts a new cycle, keeping the duration of the previous one for the ETA.
func (b *Bar) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if len(b.cycles) >= historySize {
		b.cycles = b.cycles[1:]
	}
	b.cycles = append(b.cycles, now.Sub(b.cycleStart))

	b.percent = 0
	b.stepMessage = ""
	b.stepStart = now
	b.cycleStart = now
}

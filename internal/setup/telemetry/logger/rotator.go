// Package logger provides the file writers behind the session loggers.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ring keeps the most recent lines written to a log file.
type ring struct {
	lines []string
	head  int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{lines: make([]string, capacity)}
}

func (r *ring) add(line string) {
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)

	if r.size < len(r.lines) {
		r.size++
	}
}

// snapshot returns the kept lines oldest first.
func (r *ring) snapshot() []string {
	result := make([]string, r.size)
	start := (r.head - r.size + len(r.lines)) % len(r.lines)

	for i := range r.size {
		result[i] = r.lines[(start+i)%len(r.lines)]
	}

	return result
}

// Rotator is an io.Writer that caps a log file to its most recent lines.
// Once the file has grown to twice the cap it is rewritten with the last
// maxLines lines.
type Rotator struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	recent   *ring
	maxLines int
	written  int
}

// NewRotator opens the log file at path for appending.
func NewRotator(path string, maxLines int) (*Rotator, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	if maxLines <= 0 {
		maxLines = 10000
	}

	return &Rotator{
		file:     file,
		path:     path,
		recent:   newRing(maxLines),
		maxLines: maxLines,
	}, nil
}

// Write implements io.Writer.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.file.Write(p)
	if err != nil {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}

		r.recent.add(line)
		r.written++

		if r.written >= r.maxLines*2 {
			if err := r.rotate(); err != nil {
				return n, fmt.Errorf("failed to rotate log file: %w", err)
			}
			r.written = r.recent.size
		}
	}

	return n, nil
}

// Sync flushes the file.
func (r *Rotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.file.Sync()
}

// Close closes the file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.file.Close()
}

// rotate replaces the file with the kept lines through a temporary file.
func (r *Rotator) rotate() error {
	temp, err := os.CreateTemp(filepath.Dir(r.path), "temp-log-")
	if err != nil {
		return err
	}

	content := strings.Join(r.recent.snapshot(), "\n") + "\n"
	if _, err := io.WriteString(temp, content); err != nil {
		temp.Close()
		os.Remove(temp.Name())

		return err
	}

	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return err
	}

	r.file.Close()

	if err := os.Rename(temp.Name(), r.path); err != nil {
		return err
	}

	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.file = file

	return nil
}

package utils

import (
	"sync"
	"time"
)

// TTLMap provides a thread-safe map with expiring entries.
type TTLMap[K comparable, V any] struct {
	mu      sync.RWMutex
	data    map[K]V
	expires map[K]time.Time
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

// NewTTLMap creates a new TTLMap with the specified TTL duration.
// Close stops the background cleanup.
func NewTTLMap[K comparable, V any](ttl time.Duration) *TTLMap[K, V] {
	m := &TTLMap[K, V]{
		data:    make(map[K]V),
		expires: make(map[K]time.Time),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}

	go m.cleanup()

	return m
}

// Get retrieves a value and whether it exists and has not expired.
func (m *TTLMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists || time.Now().After(m.expires[key]) {
		var zero V
		return zero, false
	}

	return value, true
}

// Set adds or updates a value in the map.
func (m *TTLMap[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	m.expires[key] = time.Now().Add(m.ttl)
}

// Delete removes a key from the map.
func (m *TTLMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	delete(m.expires, key)
}

// Len returns the number of stored entries, expired ones included until the
// next cleanup.
func (m *TTLMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (m *TTLMap[K, V]) Close() {
	m.once.Do(func() { close(m.stop) })
}

// cleanup periodically removes expired entries.
func (m *TTLMap[K, V]) cleanup() {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for key, expires := range m.expires {
				if now.After(expires) {
					delete(m.data, key)
					delete(m.expires, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

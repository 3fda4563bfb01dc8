// Package cache stores raw provider responses keyed by provider, model
// and prompt so repeated analyses of unchanged sources skip the network
// entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// Backend is the storage contract for cached provider responses.
type Backend interface {
	// Get returns the cached response for key; ok is false on miss or
	// expiry.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores a response under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes one entry; missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes every entry.
	Clear(ctx context.Context) error
	Close() error
}

// Key builds the cache key for one provider call. The prompt is hashed
// so keys stay bounded regardless of source size.
func Key(provider, model, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return provider + ":" + model + ":" + hex.EncodeToString(sum[:])
}

type memEntry struct {
	value     string
	storedAt  time.Time
	expiresAt time.Time
}

// Memory is an in-process Backend with TTL expiry and a bounded entry
// count; at capacity the oldest entry is evicted first.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	maxEntries int

	nowFunc func() time.Time
}

// NewMemory creates a memory backend holding at most maxEntries
// entries. Zero or negative means 1000.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Memory{
		entries:    make(map[string]memEntry),
		maxEntries: maxEntries,
		nowFunc:    time.Now,
	}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.nowFunc().After(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictOldest()
	}
	m.entries[key] = memEntry{value: value, storedAt: now, expiresAt: now.Add(ttl)}
	return nil
}

// evictOldest removes the entry stored longest ago. Caller holds the
// lock.
func (m *Memory) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range m.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Clear implements Backend.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memEntry)
	return nil
}

// Close implements Backend.
func (m *Memory) Close() error { return nil }

// Len reports the live entry count, expired entries included until
// their next Get.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Keys returns the stored keys in sorted order, for diagnostics.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Nop is a Backend that stores nothing, for cache.backend=off.
type Nop struct{}

// Get implements Backend.
func (Nop) Get(context.Context, string) (string, bool, error) { return "", false, nil }

// Set implements Backend.
func (Nop) Set(context.Context, string, string, time.Duration) error { return nil }

// Delete implements Backend.
func (Nop) Delete(context.Context, string) error { return nil }

// Clear implements Backend.
func (Nop) Clear(context.Context) error { return nil }

// Close implements Backend.
func (Nop) Close() error { return nil }

package jobstore

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value   []byte
	expires time.Time
}

// sweepInterval bounds how often a write scans for expired entries.
const sweepInterval = time.Minute

// MemoryBackend is an in-process Backend. Expiry is evaluated against Now,
// which tests may replace. Reads drop the key they find expired; writes
// also sweep the whole map at most once per sweepInterval.
type MemoryBackend struct {
	mu        sync.Mutex
	entries   map[string]memEntry
	nextSweep time.Time
	Now       func() time.Time
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memEntry), Now: time.Now}
}

func (m *MemoryBackend) live(key string) (memEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !m.Now().Before(e.expires) {
		delete(m.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *MemoryBackend) sweep() {
	now := m.Now()
	if now.Before(m.nextSweep) {
		return
	}
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	m.nextSweep = now.Add(sweepInterval)
}

func (m *MemoryBackend) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.entries[key] = memEntry{value: append([]byte(nil), value...), expires: m.Now().Add(ttl)}
	return true, nil
}

func (m *MemoryBackend) SetXX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	if _, ok := m.live(key); !ok {
		return false, nil
	}
	m.entries[key] = memEntry{value: append([]byte(nil), value...), expires: m.Now().Add(ttl)}
	return true, nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }

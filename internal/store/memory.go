package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. Expiry is lazy: expired records are
// dropped when read or listed.
type Memory struct {
	mu      sync.RWMutex
	records map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, sessionID string) (Record, error) {
	m.mu.RLock()
	entry, ok := m.records[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		delete(m.records, sessionID)
		m.mu.Unlock()
		return Record{}, ErrNotFound
	}
	return entry.rec, nil
}

func (m *Memory) Put(_ context.Context, sessionID string, rec Record, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.records[sessionID] = memoryEntry{rec: rec, expiresAt: expiresAt}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.records, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListActive(_ context.Context) ([]string, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id, entry := range m.records {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(m.records, id)
			continue
		}
		if entry.rec.Status == StatusActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) Close() error { return nil }

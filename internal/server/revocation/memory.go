package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/auth"
)

// Memory is a process-local revocation list. It is not shared between
// server instances and must not be used when more than one process serves
// the same tokens.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	reason auth.Reason
	until  time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Revoke(_ context.Context, jti string, reason auth.Reason, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[jti]; ok {
		return false, nil
	}
	m.entries[jti] = memoryEntry{reason: reason, until: until}
	return true, nil
}

func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[jti]
	return ok, nil
}

func (m *Memory) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for jti, e := range m.entries {
		if !e.until.After(now) {
			delete(m.entries, jti)
			n++
		}
	}
	return n, nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

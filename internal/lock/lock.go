// Package lock provides keyed mutual exclusion with expiry.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker acquires exclusive, expiring locks by key.
// TryLock never blocks waiting for a holder: ok is false when the key is taken.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Memory is a process-local Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]memoryLock
	now  func() time.Time
	seq  uint64
}

type memoryLock struct {
	id      uint64
	expires time.Time
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]memoryLock), now: time.Now}
}

// TryLock acquires key unless a non-expired holder exists.
func (m *Memory) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.held[key]; ok && now.Before(l.expires) {
		return nil, false, nil
	}
	m.seq++
	id := m.seq
	m.held[key] = memoryLock{id: id, expires: now.Add(ttl)}

	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if l, ok := m.held[key]; ok && l.id == id {
			delete(m.held, key)
		}
	}
	return release, true, nil
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/julianstephens/habitstreak/internal/models"
)

type entry struct {
	state   models.StreakState
	expires time.Time
}

// Memory is an in-process TTL cache.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[Key]entry
}

// NewMemory creates a cache whose entries live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Key]entry),
	}
}

// WithClock replaces the clock used for expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key Key) (models.StreakState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return models.StreakState{}, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return models.StreakState{}, false, nil
	}
	return e.state.Clone(), true, nil
}

func (m *Memory) Set(_ context.Context, key Key, state models.StreakState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{state: state.Clone(), expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len returns the number of entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

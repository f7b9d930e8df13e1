// Package cache stores computed per-user insights for a bounded time.
package cache

import (
	"context"
	"sync"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Clock is the time source used for expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var SystemClock Clock = systemClock{}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache. An entry expires once the clock reaches
// storedAt+ttl; expired entries are dropped on read.
type Memory struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]entry
}

func NewMemory(clock Clock) *Memory {
	if clock == nil {
		clock = SystemClock
	}
	return &Memory{clock: clock, entries: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return m.Delete(context.Background(), key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{
		value:     append([]byte(nil), value...),
		expiresAt: m.clock.Now().Add(ttl),
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func EffectsKey(userID string) string {
	return "effects:" + userID
}

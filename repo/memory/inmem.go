package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value    map[string]any
	expireAt time.Time
}

type eventList struct {
	items    []map[string]any
	expireAt time.Time
}

// InMemory 进程内短期记忆，redis 不可用或测试时使用
type InMemory struct {
	mu      sync.Mutex
	actions map[string]entry
	events  map[string]*eventList
	now     func() time.Time
}

// NewInMemory 创建进程内短期记忆
func NewInMemory() *InMemory {
	return &InMemory{
		actions: make(map[string]entry),
		events:  make(map[string]*eventList),
		now:     time.Now,
	}
}

func (m *InMemory) RecentAction(_ context.Context, userID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.actions[userID]
	if !ok {
		return nil, nil
	}
	if !e.expireAt.IsZero() && m.now().After(e.expireAt) {
		delete(m.actions, userID)
		return nil, nil
	}
	return e.value, nil
}

func (m *InMemory) SetRecentAction(_ context.Context, userID string, rec map[string]any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[userID] = entry{value: rec, expireAt: m.expiry(ttl)}
	return nil
}

func (m *InMemory) PushEvent(_ context.Context, userID string, rec map[string]any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.events[userID]
	if !ok || (!l.expireAt.IsZero() && m.now().After(l.expireAt)) {
		l = &eventList{}
		m.events[userID] = l
	}
	l.items = append([]map[string]any{rec}, l.items...)
	if len(l.items) > maxEvents {
		l.items = l.items[:maxEvents]
	}
	l.expireAt = m.expiry(ttl)
	return nil
}

// Events 最新的在前
func (m *InMemory) Events(userID string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.events[userID]
	if !ok {
		return nil
	}
	return append([]map[string]any(nil), l.items...)
}

func (m *InMemory) Ping(context.Context) error { return nil }

func (m *InMemory) Close() error { return nil }

func (m *InMemory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

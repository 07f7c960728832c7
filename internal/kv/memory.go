package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	expires int64
}

// Memory is a Table living in process memory.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, expires time.Time) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: append([]byte(nil), value...), expires: expiresNano(expires)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ScanExpired(ctx context.Context, now time.Time, fn func(key string, value []byte) error) error {
	limit := now.UnixNano()
	m.mu.RLock()
	var expired []entry
	for k, e := range m.entries {
		if e.expires != 0 && e.expires <= limit {
			expired = append(expired, entry{key: k, value: e.value})
		}
	}
	m.mu.RUnlock()
	sort.Slice(expired, func(i, j int) bool { return expired[i].key < expired[j].key })
	for _, e := range expired {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Count(ctx context.Context, prefix string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) Close() error {
	return nil
}

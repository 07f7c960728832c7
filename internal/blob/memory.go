package blob

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Memory is an in-process Store, used by tests and the "memory" blob type.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, name string, r io.Reader, overwrite bool) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	if !overwrite {
		m.mu.RLock()
		_, ok := m.blobs[name]
		m.mu.RUnlock()
		if ok {
			return 0, ErrAlreadyExists
		}
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[name]; ok && !overwrite {
		return 0, ErrAlreadyExists
	}
	// keep what arrived, like a file would
	m.blobs[name] = buf.Bytes()
	return n, err
}

func (m *Memory) Size(ctx context.Context, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[name]
	if !ok {
		return 0, ErrNotFound
	}
	return int64(len(b)), nil
}

func (m *Memory) Get(ctx context.Context, name string, w io.Writer, rng Range) error {
	m.mu.RLock()
	b, ok := m.blobs[name]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	offset, n, err := window(rng, int64(len(b)))
	if err != nil {
		return err
	}
	_, err = w.Write(b[offset : offset+n])
	return err
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	delete(m.blobs, name)
	m.mu.Unlock()
	return nil
}

// Names lists stored blob names.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		names = append(names, k)
	}
	return names
}

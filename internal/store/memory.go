package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It forgets everything on exit.
type Memory struct {
	mu     sync.Mutex
	fields map[string]string
	closed bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(ctx context.Context) (Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Preferences{}, ErrClosed
	}
	return decode(m.fields), nil
}

func (m *Memory) Save(ctx context.Context, p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.fields = encode(p)
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.fields = nil
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

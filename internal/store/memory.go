package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type memoryEntry struct {
	body    []byte
	version int64
}

// Memory is an in-process Store. Documents survive only for the lifetime
// of the process; it exists for tests and for running without a data file.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]memoryEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]memoryEntry)}
}

func (m *Memory) Create(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[collection]
	if !ok {
		col = make(map[string]memoryEntry)
		m.collections[collection] = col
	}
	if _, ok := col[id]; ok {
		return fmt.Errorf("%w: %s/%s", ErrExists, collection, id)
	}
	col[id] = memoryEntry{body: body, version: 1}
	return nil
}

func (m *Memory) Get(ctx context.Context, collection, id string, out any) error {
	m.mu.RLock()
	entry, ok := m.collections[collection][id]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return json.Unmarshal(entry.body, out)
}

func (m *Memory) Put(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	entry.body = body
	m.collections[collection][id] = entry
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	delete(m.collections[collection], id)
	return nil
}

func (m *Memory) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col := m.collections[collection]
	out := make([]json.RawMessage, 0, len(col))
	for _, entry := range col {
		body := make([]byte, len(entry.body))
		copy(body, entry.body)
		out = append(out, body)
	}
	return out, nil
}

func (m *Memory) CompareAndSwap(ctx context.Context, collection, id string, expected int64, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if entry.version != expected {
		return fmt.Errorf("%w: %s/%s have %d, expected %d", ErrVersionMismatch, collection, id, entry.version, expected)
	}
	m.collections[collection][id] = memoryEntry{body: body, version: expected + 1}
	return nil
}

func (m *Memory) Close() error {
	return nil
}

package settings

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/maxiofs/guardctl/internal/value"
)

// MemoryStore is an in-memory Store used by tests and dry experiments.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]value.Value

	// WriteHook, when set, may rewrite or reject a value before it is stored.
	WriteHook func(key string, v value.Value) (value.Value, error)

	// Writes counts successful Set/SetBool calls
	Writes int
}

// NewMemoryStore creates a store pre-populated with initial values
func NewMemoryStore(initial map[string]value.Value) *MemoryStore {
	m := &MemoryStore{values: make(map[string]value.Value, len(initial))}
	for k, v := range initial {
		m.values[k] = v
	}
	return m
}

// Get returns the stored value or Null
func (m *MemoryStore) Get(ctx context.Context, key string) (value.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return value.Null(), nil
	}
	return v, nil
}

// Set stores a value
func (m *MemoryStore) Set(ctx context.Context, key string, v value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteHook != nil {
		var err error
		v, err = m.WriteHook(key, v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWrite, key, err)
		}
	}
	if m.values == nil {
		m.values = make(map[string]value.Value)
	}
	m.values[key] = v
	m.Writes++
	return nil
}

// SetBool stores a boolean
func (m *MemoryStore) SetBool(ctx context.Context, key string, b bool) error {
	return m.Set(ctx, key, value.Bool(b))
}

// GetInt returns the value as an integer
func (m *MemoryStore) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := m.Get(ctx, key)
	return v.AsInt(), err
}

// GetBool returns the value as a boolean
func (m *MemoryStore) GetBool(ctx context.Context, key string) (bool, error) {
	v, err := m.Get(ctx, key)
	return v.AsBool(), err
}

// Keys lists keys in sorted order
func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Snapshot returns a copy of all values
func (m *MemoryStore) Snapshot() map[string]value.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]value.Value, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)

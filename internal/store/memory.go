package store

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
)

var _ cart.Storage = (*Memory)(nil)

// Memory is an in-process cart.Storage. Items are immutable and condition
// sets are cloned on the way in and out, so callers never share state with
// the store.
//
// Thread-safety: Memory is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	carts map[cart.Identity]*memoryCart
}

type memoryCart struct {
	items      []*cart.Item
	conditions *condition.Set
	metadata   map[string]json.RawMessage
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{carts: make(map[cart.Identity]*memoryCart)}
}

func (m *Memory) entry(id cart.Identity) *memoryCart {
	c, ok := m.carts[id]
	if !ok {
		c = &memoryCart{conditions: condition.NewSet(), metadata: make(map[string]json.RawMessage)}
		m.carts[id] = c
	}
	return c
}

// GetItems implements cart.Storage.
func (m *Memory) GetItems(_ context.Context, id cart.Identity) ([]*cart.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.carts[id]; ok {
		return slices.Clone(c.items), nil
	}
	return []*cart.Item{}, nil
}

// PutItems implements cart.Storage.
func (m *Memory) PutItems(_ context.Context, id cart.Identity, items []*cart.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(id).items = slices.Clone(items)
	return nil
}

// GetConditions implements cart.Storage.
func (m *Memory) GetConditions(_ context.Context, id cart.Identity) (*condition.Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.carts[id]; ok {
		return c.conditions.Clone(), nil
	}
	return condition.NewSet(), nil
}

// PutConditions implements cart.Storage.
func (m *Memory) PutConditions(_ context.Context, id cart.Identity, conds *condition.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(id).conditions = conds.Clone()
	return nil
}

// GetMetadata implements cart.Storage.
func (m *Memory) GetMetadata(_ context.Context, id cart.Identity, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.carts[id]; ok {
		return slices.Clone(c.metadata[key]), nil
	}
	return nil, nil
}

// AllMetadata implements cart.Storage.
func (m *Memory) AllMetadata(_ context.Context, id cart.Identity) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]json.RawMessage)
	if c, ok := m.carts[id]; ok {
		for k, v := range c.metadata {
			out[k] = slices.Clone(v)
		}
	}
	return out, nil
}

// PutMetadata implements cart.Storage.
func (m *Memory) PutMetadata(ctx context.Context, id cart.Identity, key string, value any) error {
	return m.PutMetadataBatch(ctx, id, map[string]any{key: value})
}

// PutMetadataBatch implements cart.Storage. Nothing is written if any
// value fails to encode.
func (m *Memory) PutMetadataBatch(_ context.Context, id cart.Identity, values map[string]any) error {
	encoded := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		data, err := marshalValue(v)
		if err != nil {
			return err
		}
		encoded[k] = json.RawMessage(data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.entry(id).metadata, encoded)
	return nil
}

// ClearMetadata implements cart.Storage.
func (m *Memory) ClearMetadata(_ context.Context, id cart.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[id]; ok {
		c.metadata = make(map[string]json.RawMessage)
	}
	return nil
}

// Has implements cart.Storage.
func (m *Memory) Has(_ context.Context, id cart.Identity) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.carts[id]
	return ok, nil
}

// SwapIdentifier implements cart.Storage.
func (m *Memory) SwapIdentifier(_ context.Context, instance, oldIdentifier, newIdentifier string) error {
	if oldIdentifier == newIdentifier {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	from := cart.Identity{Identifier: oldIdentifier, Instance: instance}
	to := cart.Identity{Identifier: newIdentifier, Instance: instance}
	delete(m.carts, to)
	if c, ok := m.carts[from]; ok {
		m.carts[to] = c
		delete(m.carts, from)
	}
	return nil
}

// Forget implements cart.Storage.
func (m *Memory) Forget(_ context.Context, id cart.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, id)
	return nil
}

// Package store provides the in-memory persistence primitive shared by the
// domain services. Every service repository wraps a Collection keyed by
// entity ID.
package store

import (
	"sync"

	"github.com/curalink/curalink/internal/bus/errs"
)

// Collection is a concurrency-safe map of entities keyed by ID. Values are
// stored and returned by value, so callers can mutate their copies freely
// and persist changes with an explicit Put.
type Collection[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewCollection returns an empty collection.
func NewCollection[T any]() *Collection[T] {
	return &Collection[T]{items: make(map[string]T)}
}

// Put stores the entity under the given ID, replacing any existing entry.
func (c *Collection[T]) Put(id string, item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = item
}

// Get returns the entity stored under the given ID, or errs.ErrNotFound.
func (c *Collection[T]) Get(id string) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		var zero T
		return zero, errs.ErrNotFound
	}
	return item, nil
}

// List returns every entity matching the filter. A nil filter matches all.
func (c *Collection[T]) List(filter func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.items))
	for _, item := range c.items {
		if filter == nil || filter(item) {
			out = append(out, item)
		}
	}
	return out
}

// Delete removes the entity stored under the given ID, if present.
func (c *Collection[T]) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
}

// Len reports the number of stored entities.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

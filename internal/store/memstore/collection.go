// Package memstore is the reference, in-memory implementation of the
// store.* repository interfaces (§4.1, §5). It exists so the engine is
// testable and the CLI demo runnable without a real document-store
// driver — the spec deliberately leaves that driver unimplemented (§1).
package memstore

import (
	"sync"

	"github.com/novaflow/ticketflow/internal/domain"
)

// collection is a generic, mutex-protected, version-CAS document map. Each
// entity repository wraps one collection of its own document type.
type collection[T any] struct {
	mu   sync.Mutex
	rows map[domain.ID]*T
}

func newCollection[T any]() *collection[T] {
	return &collection[T]{rows: make(map[domain.ID]*T)}
}

func (c *collection[T]) get(id domain.ID) (*T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[id]
	return row, ok
}

func (c *collection[T]) put(id domain.ID, row *T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[id] = row
}

func (c *collection[T]) all() []*T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*T, 0, len(c.rows))
	for _, row := range c.rows {
		out = append(out, row)
	}
	return out
}

// lock lets callers run a read-modify-write step fully under the
// collection's mutex, which is how the in-memory store provides the
// per-document conditional update the real driver would give via
// "WHERE id = X AND version = V" (§4.1).
func (c *collection[T]) lock() func() {
	c.mu.Lock()
	return c.mu.Unlock
}

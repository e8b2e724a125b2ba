package world

import (
	"sync"

	"netsync/replication"
)

// Table stores one attribute type keyed by entity handle and records which
// handles were written since the last Changed call.
type Table[T any] struct {
	mu      sync.RWMutex
	values  map[replication.Handle]T
	changed []replication.Handle
	dirty   map[replication.Handle]struct{}
}

// NewTable returns an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		values: make(map[replication.Handle]T),
		dirty:  make(map[replication.Handle]struct{}),
	}
}

var _ replication.Store[int] = (*Table[int])(nil)

// Insert attaches the attribute to h and marks it changed.
func (t *Table[T]) Insert(h replication.Handle, value T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[h] = value
	t.markLocked(h)
}

// Remove detaches the attribute from h.
func (t *Table[T]) Remove(h replication.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.values, h)
	if _, ok := t.dirty[h]; ok {
		delete(t.dirty, h)
		for i, pending := range t.changed {
			if pending == h {
				t.changed = append(t.changed[:i], t.changed[i+1:]...)
				break
			}
		}
	}
}

// Get returns the attribute value of h.
func (t *Table[T]) Get(h replication.Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	value, ok := t.values[h]
	return value, ok
}

// Set overwrites an existing attribute. Handles without the attribute are
// left alone and reported with false.
func (t *Table[T]) Set(h replication.Handle, value T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.values[h]; !ok {
		return false
	}
	t.values[h] = value
	t.markLocked(h)
	return true
}

// Update applies fn to the attribute in place.
func (t *Table[T]) Update(h replication.Handle, fn func(*T)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	value, ok := t.values[h]
	if !ok {
		return false
	}
	fn(&value)
	t.values[h] = value
	t.markLocked(h)
	return true
}

// Changed returns the handles written since the previous call, in write
// order, and clears the set.
func (t *Table[T]) Changed() []replication.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.changed) == 0 {
		return nil
	}
	changed := t.changed
	t.changed = nil
	clear(t.dirty)
	return changed
}

// Len reports how many handles carry the attribute.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

func (t *Table[T]) markLocked(h replication.Handle) {
	if _, ok := t.dirty[h]; ok {
		return
	}
	t.dirty[h] = struct{}{}
	t.changed = append(t.changed, h)
}

package world

import (
	"sync"

	"netsync/replication"
)

const indexBits = 32

// Entities allocates generational entity handles. A despawned slot is reused
// with a bumped generation, so stale handles never resolve to the new
// occupant.
type Entities struct {
	mu          sync.Mutex
	generations []uint32
	alive       []bool
	free        []uint32
	count       int
}

// NewEntities returns an empty allocator.
func NewEntities() *Entities {
	return &Entities{}
}

// Spawn allocates a live handle.
func (e *Entities) Spawn() replication.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	var index uint32
	if n := len(e.free); n > 0 {
		index = e.free[n-1]
		e.free = e.free[:n-1]
	} else {
		index = uint32(len(e.generations))
		e.generations = append(e.generations, 0)
		e.alive = append(e.alive, false)
	}
	e.alive[index] = true
	e.count++
	return makeHandle(index, e.generations[index])
}

// Despawn releases the handle. It reports false for dead or stale handles.
func (e *Entities) Despawn(h replication.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	index, generation := splitHandle(h)
	if !e.aliveLocked(index, generation) {
		return false
	}
	e.alive[index] = false
	e.generations[index]++
	e.free = append(e.free, index)
	e.count--
	return true
}

// Alive reports whether h refers to a live entity.
func (e *Entities) Alive(h replication.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	index, generation := splitHandle(h)
	return e.aliveLocked(index, generation)
}

// Len reports the number of live entities.
func (e *Entities) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func (e *Entities) aliveLocked(index, generation uint32) bool {
	if int(index) >= len(e.generations) {
		return false
	}
	return e.alive[index] && e.generations[index] == generation
}

func makeHandle(index, generation uint32) replication.Handle {
	return replication.Handle(uint64(generation)<<indexBits | uint64(index))
}

func splitHandle(h replication.Handle) (index, generation uint32) {
	return uint32(uint64(h)), uint32(uint64(h) >> indexBits)
}

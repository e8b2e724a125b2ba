package replication

import (
	"fmt"
	"slices"
)

// EntityID is the stable network identifier of a replicated entity. Its
// assignment policy belongs to the host.
type EntityID uint64

// Handle is the host runtime's local entity handle. Handles may be recycled
// by the host, which is why replication always goes through EntityID.
type Handle uint64

// IdentityMap binds network identifiers to local handles. Exactly one binding
// exists per replicated entity.
type IdentityMap struct {
	byID     map[EntityID]Handle
	byHandle map[Handle]EntityID
}

// NewIdentityMap constructs an empty map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{
		byID:     make(map[EntityID]Handle),
		byHandle: make(map[Handle]EntityID),
	}
}

// Bind records that id is replicated by the entity behind handle.
func (m *IdentityMap) Bind(id EntityID, handle Handle) error {
	if m == nil {
		return fmt.Errorf("bind entity %d: nil identity map", id)
	}
	if existing, ok := m.byID[id]; ok {
		return fmt.Errorf("bind entity %d to handle %d: already bound to %d: %w", id, handle, existing, ErrDuplicateEntity)
	}
	if existing, ok := m.byHandle[handle]; ok {
		return fmt.Errorf("bind entity %d to handle %d: handle already bound to entity %d: %w", id, handle, existing, ErrDuplicateEntity)
	}
	m.byID[id] = handle
	m.byHandle[handle] = id
	return nil
}

// Unbind removes the binding for id. Unknown ids are ignored.
func (m *IdentityMap) Unbind(id EntityID) {
	if m == nil {
		return
	}
	handle, ok := m.byID[id]
	if !ok {
		return
	}
	delete(m.byID, id)
	delete(m.byHandle, handle)
}

// Resolve returns the local handle for id. Unknown ids yield false.
func (m *IdentityMap) Resolve(id EntityID) (Handle, bool) {
	if m == nil {
		return 0, false
	}
	handle, ok := m.byID[id]
	return handle, ok
}

// Lookup returns the network id bound to handle.
func (m *IdentityMap) Lookup(handle Handle) (EntityID, bool) {
	if m == nil {
		return 0, false
	}
	id, ok := m.byHandle[handle]
	return id, ok
}

// Len reports the number of bound entities.
func (m *IdentityMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byID)
}

// Each visits every binding in ascending id order until fn returns false.
func (m *IdentityMap) Each(fn func(EntityID, Handle) bool) {
	if m == nil || fn == nil {
		return
	}
	ids := make([]EntityID, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if !fn(id, m.byID[id]) {
			return
		}
	}
}

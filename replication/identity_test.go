package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityMapBindResolve(t *testing.T) {
	ids := NewIdentityMap()
	require.NoError(t, ids.Bind(7, 100))
	require.NoError(t, ids.Bind(3, 101))

	handle, ok := ids.Resolve(7)
	require.True(t, ok)
	assert.Equal(t, Handle(100), handle)

	id, ok := ids.Lookup(101)
	require.True(t, ok)
	assert.Equal(t, EntityID(3), id)

	_, ok = ids.Resolve(99)
	assert.False(t, ok, "unknown ids resolve to absence")
}

func TestIdentityMapRejectsDuplicates(t *testing.T) {
	ids := NewIdentityMap()
	require.NoError(t, ids.Bind(7, 100))

	assert.ErrorIs(t, ids.Bind(7, 200), ErrDuplicateEntity)
	assert.ErrorIs(t, ids.Bind(8, 100), ErrDuplicateEntity)
	assert.Equal(t, 1, ids.Len())
}

func TestIdentityMapUnbindAllowsHandleReuse(t *testing.T) {
	ids := NewIdentityMap()
	require.NoError(t, ids.Bind(7, 100))
	ids.Unbind(7)
	ids.Unbind(7)

	_, ok := ids.Resolve(7)
	assert.False(t, ok)
	require.NoError(t, ids.Bind(8, 100), "recycled handles can be bound again")
}

func TestIdentityMapEachIsOrdered(t *testing.T) {
	ids := NewIdentityMap()
	for _, id := range []EntityID{9, 2, 5} {
		require.NoError(t, ids.Bind(id, Handle(id*10)))
	}

	var seen []EntityID
	ids.Each(func(id EntityID, handle Handle) bool {
		assert.Equal(t, Handle(id*10), handle)
		seen = append(seen, id)
		return true
	})
	assert.Equal(t, []EntityID{2, 5, 9}, seen)

	seen = nil
	ids.Each(func(id EntityID, _ Handle) bool {
		seen = append(seen, id)
		return false
	})
	assert.Equal(t, []EntityID{2}, seen)
}

func TestNilIdentityMap(t *testing.T) {
	var ids *IdentityMap
	_, ok := ids.Resolve(1)
	assert.False(t, ok)
	assert.Error(t, ids.Bind(1, 1))
	assert.Zero(t, ids.Len())
}

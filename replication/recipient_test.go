package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecipientSpecMatches(t *testing.T) {
	cases := []struct {
		name string
		spec RecipientSpec
		id   ConnID
		want bool
	}{
		{"all", All(), 42, true},
		{"none", None(), 42, false},
		{"include hit", Include(3, 5), 5, true},
		{"include miss", Include(3, 5), 4, false},
		{"include empty", Include(), 0, false},
		{"except hit", Except(3), 3, false},
		{"except miss", Except(3), 4, true},
		{"except empty", Except(), 9, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.spec.Matches(tc.id))
		})
	}
}

func TestRecipientSpecOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b RecipientSpec
		want bool
	}{
		{"all all", All(), All(), true},
		{"all none", All(), None(), false},
		{"none none", None(), None(), false},
		{"all include", All(), Include(1), true},
		{"all empty include", All(), Include(), false},
		{"all except", All(), Except(1, 2, 3), true},
		{"include disjoint", Include(1, 2), Include(3, 4), false},
		{"include shared", Include(1, 2), Include(2, 4), true},
		{"include except overlap", Include(3, 5), Except(3), true},
		{"include except covered", Include(3), Except(3, 4), false},
		{"except except", Except(1), Except(2), true},
		{"none include", None(), Include(1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Overlaps(tc.b), "a.Overlaps(b)")
			assert.Equal(t, tc.want, tc.b.Overlaps(tc.a), "overlap must be symmetric")
		})
	}
}

func TestRecipientSpecIsImmutable(t *testing.T) {
	ids := []ConnID{5, 3, 3}
	spec := Include(ids...)
	ids[0] = 99

	assert.True(t, spec.Matches(5))
	assert.False(t, spec.Matches(99))
	assert.Equal(t, []ConnID{3, 5}, spec.IDs())

	listed := spec.IDs()
	listed[0] = 7
	assert.False(t, spec.Matches(7))
}

func TestRecipientSpecString(t *testing.T) {
	assert.Equal(t, "All", All().String())
	assert.Equal(t, "None", None().String())
	assert.Equal(t, "Include(3,5)", Include(5, 3).String())
	assert.Equal(t, "Except(1)", Except(1).String())
}

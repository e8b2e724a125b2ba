package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorityDirectionAccessors(t *testing.T) {
	_, ok := AuthorityNone().To()
	assert.False(t, ok)
	_, ok = AuthorityNone().From()
	assert.False(t, ok)

	to, ok := AuthorityTo(Include(1)).To()
	assert.True(t, ok)
	assert.True(t, to.Matches(1))
	_, ok = AuthorityTo(Include(1)).From()
	assert.False(t, ok)

	from, ok := AuthorityFrom(Except(2)).From()
	assert.True(t, ok)
	assert.False(t, from.Matches(2))
	_, ok = AuthorityFrom(Except(2)).To()
	assert.False(t, ok)

	dir := AuthorityToFrom(Include(1), Include(2))
	to, _ = dir.To()
	from, _ = dir.From()
	assert.Equal(t, "Include(1)", to.String())
	assert.Equal(t, "Include(2)", from.String())
	assert.Equal(t, "ToFrom(Include(1), Include(2))", dir.String())
}

func TestAuthorityDirectionHazard(t *testing.T) {
	assert.True(t, AuthorityToFrom(All(), All()).Hazard())
	assert.True(t, AuthorityToFrom(Include(3, 5), Except(3)).Hazard())
	assert.False(t, AuthorityToFrom(Include(1), Include(2)).Hazard())
	assert.False(t, AuthorityTo(All()).Hazard())
	assert.False(t, AuthorityFrom(All()).Hazard())
}

func TestPeerDirection(t *testing.T) {
	assert.False(t, PeerNone.To())
	assert.False(t, PeerNone.From())
	assert.True(t, PeerTo.To())
	assert.False(t, PeerTo.From())
	assert.True(t, PeerFrom.From())
	assert.False(t, PeerFrom.To())
	assert.Equal(t, "From", PeerFrom.String())
}

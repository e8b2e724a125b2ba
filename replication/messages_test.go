package replication

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type netLabel struct {
	Text string
}

func TestMessageTableRejectsDuplicates(t *testing.T) {
	table := NewMessageTable()
	require.NoError(t, table.Register("position", UnreliableSequenced))

	err := table.Register("position", ReliableOrdered)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)

	var regErr *RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, MessageType("position"), regErr.Message)

	class, ok := table.Lookup("position")
	require.True(t, ok)
	assert.Equal(t, UnreliableSequenced, class, "the first registration is kept")
}

func TestMessageTableMustRegisterPanics(t *testing.T) {
	table := NewMessageTable()
	table.MustRegister("name", ReliableOrdered)
	assert.Panics(t, func() { table.MustRegister("name", ReliableOrdered) })
}

func TestMessageTableTypesSorted(t *testing.T) {
	table := NewMessageTable()
	table.MustRegister("b", ReliableOrdered)
	table.MustRegister("a", ReliableOrdered)
	assert.Equal(t, []MessageType{"a", "b"}, table.Types())
}

func TestMessageTypeOf(t *testing.T) {
	assert.Equal(t, MessageType("netsync::netsync/replication.netLabel"), MessageTypeOf[netLabel]())
	assert.Equal(t, MessageType("netsync::string"), MessageTypeOf[string]())
}

func TestReliabilityRoundTrip(t *testing.T) {
	for _, r := range []Reliability{ReliableOrdered, ReliableUnordered, UnreliableUnordered, UnreliableSequenced} {
		parsed, err := ParseReliability(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := ParseReliability("carrier-pigeon")
	assert.Error(t, err)
}

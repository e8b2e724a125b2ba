package loopback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsync/internal/attrs"
	"netsync/replication"
)

func TestLoopbackDelivery(t *testing.T) {
	n := New()
	a := n.Connect()
	b := n.Connect()
	assert.Equal(t, []replication.ConnID{1, 2}, n.Authority().Connections())

	require.NoError(t, a.Send("name", replication.Envelope{Entity: 1, Sender: 99}))
	batch := n.Authority().Drain("name")
	require.Len(t, batch, 1)
	assert.Equal(t, a.ID(), batch[0].Sender)

	require.NoError(t, n.Authority().SendTo(b.ID(), "name", replication.Envelope{Entity: 2}))
	assert.Empty(t, a.Drain("name"))
	assert.Len(t, b.Drain("name"), 1)
	assert.Empty(t, b.Drain("name"), "drain empties the inbox")
}

func TestLoopbackDisconnect(t *testing.T) {
	n := New()
	p := n.Connect()
	p.Disconnect()

	assert.Empty(t, n.Authority().Connections())
	assert.ErrorIs(t, n.Authority().SendTo(p.ID(), "name", replication.Envelope{}), ErrDisconnected)
	assert.ErrorIs(t, p.Send("name", replication.Envelope{}), ErrDisconnected)
}

type world struct {
	repl   *replication.Replicator
	tables attrs.Tables
	chans  attrs.Channels
}

func newWorld(t *testing.T, repl *replication.Replicator) world {
	t.Helper()
	tables := attrs.NewTables()
	chans, err := attrs.Sync(repl, replication.NewMessageTable(), tables)
	require.NoError(t, err)
	return world{repl: repl, tables: tables, chans: chans}
}

func (w world) spawn(t *testing.T, id replication.EntityID, h replication.Handle, pos attrs.Position, rec replication.Record) {
	t.Helper()
	w.tables.Positions.Insert(h, pos)
	w.tables.Names.Insert(h, "")
	w.tables.Visibility.Insert(h, attrs.Visible)
	require.NoError(t, w.repl.Identities().Bind(id, h))
	require.NoError(t, w.chans.Track(id, rec))
}

func step(ctx context.Context, repls ...*replication.Replicator) {
	for _, r := range repls {
		r.BeginTick(ctx)
	}
	for _, r := range repls {
		r.EndTick(ctx)
	}
}

func TestAuthorityAndPeerConverge(t *testing.T) {
	ctx := context.Background()
	n := New()
	peerLink := n.Connect()

	server := newWorld(t, replication.NewAuthority(n.Authority(), replication.Options{}))
	client := newWorld(t, replication.NewPeer(peerLink, replication.Options{}))

	serverOwned := replication.NewRecord(replication.AuthorityTo(replication.All()), replication.PeerFrom)
	clientOwned := replication.NewRecord(replication.AuthorityFrom(replication.Include(peerLink.ID())), replication.PeerTo)

	server.spawn(t, 1, 10, attrs.Position{X: 0.1, Y: 2}, serverOwned)
	client.spawn(t, 1, 500, attrs.Position{}, serverOwned)
	server.spawn(t, 2, 11, attrs.Position{}, clientOwned)
	client.spawn(t, 2, 501, attrs.Position{X: 7, Y: 8}, clientOwned)

	step(ctx, server.repl, client.repl)
	step(ctx, server.repl, client.repl)

	got, ok := client.tables.Positions.Get(500)
	require.True(t, ok)
	assert.Equal(t, float64(float32(0.1)), got.X, "the wire narrows to float32")
	assert.Equal(t, 2.0, got.Y)

	got, ok = server.tables.Positions.Get(11)
	require.True(t, ok)
	assert.Equal(t, attrs.Position{X: 7, Y: 8}, got)

	require.True(t, client.tables.Positions.Set(500, attrs.Position{X: 99}))
	step(ctx, server.repl, client.repl)
	got, _ = server.tables.Positions.Get(10)
	assert.Equal(t, 0.1, got.X, "peers cannot write attributes the authority owns")
}

func TestLateJoinerReceivesResync(t *testing.T) {
	ctx := context.Background()
	n := New()
	server := newWorld(t, replication.NewAuthority(n.Authority(), replication.Options{}))
	owned := replication.NewRecord(replication.AuthorityTo(replication.All()), replication.PeerFrom)
	server.spawn(t, 1, 10, attrs.Position{X: 4}, owned)
	step(ctx, server.repl)

	late := n.Connect()
	client := newWorld(t, replication.NewPeer(late, replication.Options{}))
	client.spawn(t, 1, 77, attrs.Position{}, owned)

	step(ctx, server.repl, client.repl)
	got, _ := client.tables.Positions.Get(77)
	assert.Equal(t, attrs.Position{}, got, "nothing changed so nothing was sent")

	server.repl.ResyncAll()
	step(ctx, server.repl, client.repl)
	step(ctx, client.repl)
	got, _ = client.tables.Positions.Get(77)
	assert.Equal(t, attrs.Position{X: 4}, got)
}

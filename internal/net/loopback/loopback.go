// Package loopback connects an authority and its peers in process. Sends are
// delivered into the receiver's inbox immediately and become visible at the
// receiver's next Drain.
package loopback

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"netsync/replication"
)

// ErrDisconnected is returned when either end of a link is gone.
var ErrDisconnected = errors.New("loopback: disconnected")

type mailbox map[replication.MessageType][]replication.Envelope

func (m mailbox) take(msg replication.MessageType) []replication.Envelope {
	batch := m[msg]
	delete(m, msg)
	return batch
}

// Network is an in-process authority with any number of peers.
type Network struct {
	mu     sync.Mutex
	inbox  mailbox
	peers  map[replication.ConnID]*Peer
	nextID replication.ConnID
}

// New returns an empty network.
func New() *Network {
	return &Network{
		inbox: make(mailbox),
		peers: make(map[replication.ConnID]*Peer),
	}
}

// Authority returns the authority end of the network.
func (n *Network) Authority() replication.AuthorityTransport {
	return (*authority)(n)
}

// Connect adds a peer. Connection ids start at 1.
func (n *Network) Connect() *Peer {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	p := &Peer{net: n, id: n.nextID, inbox: make(mailbox)}
	n.peers[p.id] = p
	return p
}

// Inject places an envelope in the authority's inbox as if sent by
// env.Sender, whether or not that connection exists.
func (n *Network) Inject(msg replication.MessageType, env replication.Envelope) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inbox[msg] = append(n.inbox[msg], env)
}

type authority Network

func (a *authority) Connections() []replication.ConnID {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]replication.ConnID, 0, len(a.peers))
	for id := range a.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (a *authority) SendTo(conn replication.ConnID, msg replication.MessageType, env replication.Envelope) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.peers[conn]
	if !ok {
		return fmt.Errorf("send to %d: %w", conn, ErrDisconnected)
	}
	env.Sender = replication.AuthorityConn
	env.Payload = slices.Clone(env.Payload)
	p.inbox[msg] = append(p.inbox[msg], env)
	return nil
}

func (a *authority) Drain(msg replication.MessageType) []replication.Envelope {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inbox.take(msg)
}

// Peer is one peer's end of the network.
type Peer struct {
	net   *Network
	id    replication.ConnID
	inbox mailbox
	gone  bool
}

var _ replication.PeerTransport = (*Peer)(nil)

// ID reports the connection id the authority sees for this peer.
func (p *Peer) ID() replication.ConnID {
	return p.id
}

func (p *Peer) Send(msg replication.MessageType, env replication.Envelope) error {
	p.net.mu.Lock()
	defer p.net.mu.Unlock()
	if p.gone {
		return ErrDisconnected
	}
	env.Sender = p.id
	env.Payload = slices.Clone(env.Payload)
	p.net.inbox[msg] = append(p.net.inbox[msg], env)
	return nil
}

func (p *Peer) Drain(msg replication.MessageType) []replication.Envelope {
	p.net.mu.Lock()
	defer p.net.mu.Unlock()
	return p.inbox.take(msg)
}

// Inject places an envelope in the peer's inbox.
func (p *Peer) Inject(msg replication.MessageType, env replication.Envelope) {
	p.net.mu.Lock()
	defer p.net.mu.Unlock()
	p.inbox[msg] = append(p.inbox[msg], env)
}

// Disconnect removes the peer. Buffered inbound envelopes are discarded and
// later sends in either direction fail.
func (p *Peer) Disconnect() {
	p.net.mu.Lock()
	defer p.net.mu.Unlock()
	if p.gone {
		return
	}
	p.gone = true
	delete(p.net.peers, p.id)
	clear(p.inbox)
}

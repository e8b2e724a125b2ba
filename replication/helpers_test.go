package replication

import (
	"errors"
	"slices"
)

type sentEnvelope struct {
	Conn     ConnID
	Message  MessageType
	Envelope Envelope
}

type fakeAuthority struct {
	conns  []ConnID
	fail   map[ConnID]error
	sent   []sentEnvelope
	inbox  map[MessageType][]Envelope
	drains int
}

func newFakeAuthority(conns ...ConnID) *fakeAuthority {
	return &fakeAuthority{
		conns: conns,
		fail:  make(map[ConnID]error),
		inbox: make(map[MessageType][]Envelope),
	}
}

func (f *fakeAuthority) Connections() []ConnID {
	return slices.Clone(f.conns)
}

func (f *fakeAuthority) SendTo(conn ConnID, msg MessageType, env Envelope) error {
	if err := f.fail[conn]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentEnvelope{Conn: conn, Message: msg, Envelope: env})
	return nil
}

func (f *fakeAuthority) Drain(msg MessageType) []Envelope {
	f.drains++
	batch := f.inbox[msg]
	delete(f.inbox, msg)
	return batch
}

func (f *fakeAuthority) deliver(msg MessageType, envs ...Envelope) {
	f.inbox[msg] = append(f.inbox[msg], envs...)
}

func (f *fakeAuthority) takeSent() []sentEnvelope {
	sent := f.sent
	f.sent = nil
	return sent
}

type fakePeer struct {
	err   error
	sent  []Envelope
	inbox map[MessageType][]Envelope
}

func newFakePeer() *fakePeer {
	return &fakePeer{inbox: make(map[MessageType][]Envelope)}
}

func (f *fakePeer) Send(_ MessageType, env Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakePeer) Drain(msg MessageType) []Envelope {
	batch := f.inbox[msg]
	delete(f.inbox, msg)
	return batch
}

func (f *fakePeer) deliver(msg MessageType, envs ...Envelope) {
	f.inbox[msg] = append(f.inbox[msg], envs...)
}

// mapStore is a minimal Store that counts writes per handle.
type mapStore[T any] struct {
	values  map[Handle]T
	changed []Handle
	writes  map[Handle]int
}

func newMapStore[T any]() *mapStore[T] {
	return &mapStore[T]{values: make(map[Handle]T), writes: make(map[Handle]int)}
}

func (s *mapStore[T]) Get(h Handle) (T, bool) {
	v, ok := s.values[h]
	return v, ok
}

func (s *mapStore[T]) Set(h Handle, v T) bool {
	if _, ok := s.values[h]; !ok {
		return false
	}
	s.values[h] = v
	s.writes[h]++
	s.changed = append(s.changed, h)
	return true
}

func (s *mapStore[T]) Changed() []Handle {
	changed := s.changed
	s.changed = nil
	return changed
}

// spawn inserts an initial value without marking it changed.
func (s *mapStore[T]) spawn(h Handle, v T) {
	s.values[h] = v
}

var errPeerGone = errors.New("peer disconnected")

func payload(s string) []byte {
	data, _ := JSONCodec[string]{}.Encode(s)
	return data
}

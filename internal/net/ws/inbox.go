package ws

import (
	"sync"

	"netsync/replication"
)

// inbox buffers decoded envelopes per message type until the tick drains
// them.
type inbox struct {
	mu     sync.Mutex
	byType map[replication.MessageType][]replication.Envelope
	limit  int
}

func newInbox(limit int) *inbox {
	return &inbox{byType: make(map[replication.MessageType][]replication.Envelope), limit: limit}
}

// push reports false when the per-type backlog is full.
func (b *inbox) push(msg replication.MessageType, env replication.Envelope) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && len(b.byType[msg]) >= b.limit {
		return false
	}
	b.byType[msg] = append(b.byType[msg], env)
	return true
}

func (b *inbox) drain(msg replication.MessageType) []replication.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.byType[msg]
	delete(b.byType, msg)
	return batch
}

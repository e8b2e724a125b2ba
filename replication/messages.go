package replication

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// MessageType names the envelope stream of one attribute/encoding pair.
type MessageType string

// Reliability is the delivery class a message type is registered with.
type Reliability uint8

const (
	ReliableOrdered Reliability = iota
	ReliableUnordered
	UnreliableUnordered
	UnreliableSequenced
)

func (r Reliability) String() string {
	switch r {
	case ReliableOrdered:
		return "reliable-ordered"
	case ReliableUnordered:
		return "reliable-unordered"
	case UnreliableUnordered:
		return "unreliable-unordered"
	case UnreliableSequenced:
		return "unreliable-sequenced"
	default:
		return fmt.Sprintf("reliability(%d)", uint8(r))
	}
}

// ParseReliability maps the names produced by String back to a class.
func ParseReliability(name string) (Reliability, error) {
	for _, r := range []Reliability{ReliableOrdered, ReliableUnordered, UnreliableUnordered, UnreliableSequenced} {
		if r.String() == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown reliability %q", name)
}

const messageTypePrefix = "netsync::"

// MessageTypeOf derives a stable message type from the mirror type M, so both
// ends of a connection agree on ids without sharing registration order.
func MessageTypeOf[M any]() MessageType {
	t := reflect.TypeFor[M]()
	name := t.String()
	if t.PkgPath() != "" {
		name = t.PkgPath() + "." + t.Name()
	}
	return MessageType(messageTypePrefix + name)
}

// MessageTable records every message type known to a transport together with
// its delivery class. Transports consult it to reject unknown frames.
type MessageTable struct {
	mu      sync.RWMutex
	entries map[MessageType]Reliability
}

// NewMessageTable constructs an empty table.
func NewMessageTable() *MessageTable {
	return &MessageTable{entries: make(map[MessageType]Reliability)}
}

// Register adds msg with the given delivery class. Registering the same type
// twice is a configuration error.
func (t *MessageTable) Register(msg MessageType, class Reliability) error {
	if t == nil {
		return &RegistrationError{Message: msg, Err: fmt.Errorf("nil message table")}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[msg]; exists {
		return &RegistrationError{Message: msg, Err: ErrDuplicateRegistration}
	}
	t.entries[msg] = class
	return nil
}

// MustRegister is Register for callers that guarantee uniqueness; it panics on
// error.
func (t *MessageTable) MustRegister(msg MessageType, class Reliability) {
	if err := t.Register(msg, class); err != nil {
		panic(err)
	}
}

// Lookup returns the delivery class of msg.
func (t *MessageTable) Lookup(msg MessageType) (Reliability, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	class, ok := t.entries[msg]
	return class, ok
}

// Types lists the registered message types in sorted order.
func (t *MessageTable) Types() []MessageType {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	types := make([]MessageType, 0, len(t.entries))
	for msg := range t.entries {
		types = append(types, msg)
	}
	t.mu.RUnlock()
	slices.Sort(types)
	return types
}

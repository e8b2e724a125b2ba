package replication

import "fmt"

// SendTime is an optional logical send time. The zero value carries no time.
type SendTime struct {
	value uint32
	ok    bool
}

// NoTime is a SendTime without a value.
var NoTime = SendTime{}

// At returns a SendTime carrying t.
func At(t uint32) SendTime {
	return SendTime{value: t, ok: true}
}

// Value returns the time and whether one is present.
func (t SendTime) Value() (uint32, bool) {
	return t.value, t.ok
}

// Valid reports whether a time is present.
func (t SendTime) Valid() bool {
	return t.ok
}

// Pointer converts the time to the optional form used on the wire.
func (t SendTime) Pointer() *uint32 {
	if !t.ok {
		return nil
	}
	v := t.value
	return &v
}

// SendTimeFrom converts the optional wire form back into a SendTime.
func SendTimeFrom(v *uint32) SendTime {
	if v == nil {
		return NoTime
	}
	return At(*v)
}

func (t SendTime) String() string {
	if !t.ok {
		return "none"
	}
	return fmt.Sprintf("%d", t.value)
}

// Envelope is the unit exchanged between peers. Sender is filled in by the
// receiving transport and is never part of the payload.
type Envelope struct {
	Entity  EntityID
	Payload []byte
	Time    SendTime
	Sender  ConnID
}

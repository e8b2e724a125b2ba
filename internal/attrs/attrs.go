// Package attrs defines the attributes the demo host replicates and the wire
// forms they travel in.
package attrs

import (
	"errors"
	"fmt"

	"netsync/internal/world"
	"netsync/replication"
)

// Message types are derived from the wire forms so both ends agree on them.
var (
	PositionMessage   = replication.MessageTypeOf[NetPosition]()
	NameMessage       = replication.MessageTypeOf[NetName]()
	VisibilityMessage = replication.MessageTypeOf[NetVisibility]()
)

// aliases are the short names accepted in configuration.
var aliases = map[string]replication.MessageType{
	"position":   PositionMessage,
	"name":       NameMessage,
	"visibility": VisibilityMessage,
}

// Lookup resolves a configured message name. Both the short alias and the
// full message type are accepted.
func Lookup(name string) (replication.MessageType, bool) {
	if msg, ok := aliases[name]; ok {
		return msg, true
	}
	for _, msg := range aliases {
		if string(msg) == name {
			return msg, true
		}
	}
	return "", false
}

// Position is stored in float64. It travels as float32, so a peer observes
// the value narrowed to single precision.
type Position struct {
	X float64
	Y float64
}

// NetPosition is the wire form of Position.
type NetPosition struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// PositionCodec narrows positions to float32 on the wire.
func PositionCodec() replication.Codec[Position] {
	return replication.Mirror(
		func(p Position) NetPosition { return NetPosition{X: float32(p.X), Y: float32(p.Y)} },
		func(w NetPosition) Position { return Position{X: float64(w.X), Y: float64(w.Y)} },
	)
}

// Name is a display name.
type Name string

// NetName is the wire form of Name.
type NetName struct {
	Value string `json:"value"`
}

func NameCodec() replication.Codec[Name] {
	return replication.Mirror(
		func(n Name) NetName { return NetName{Value: string(n)} },
		func(w NetName) Name { return Name(w.Value) },
	)
}

// Visibility controls whether an entity is drawn.
type Visibility uint8

const (
	Hidden Visibility = iota
	Visible
	Ghosted
)

func (v Visibility) String() string {
	switch v {
	case Hidden:
		return "hidden"
	case Visible:
		return "visible"
	case Ghosted:
		return "ghosted"
	default:
		return fmt.Sprintf("visibility(%d)", uint8(v))
	}
}

// ParseVisibility maps the String form back to a Visibility.
func ParseVisibility(s string) (Visibility, error) {
	for _, v := range []Visibility{Hidden, Visible, Ghosted} {
		if v.String() == s {
			return v, nil
		}
	}
	return Hidden, fmt.Errorf("unknown visibility %q", s)
}

// NetVisibility is the wire form of Visibility.
type NetVisibility struct {
	Mode string `json:"mode"`
}

// VisibilityCodec encodes the enum by name so unknown values fail to decode
// instead of aliasing.
func VisibilityCodec() replication.Codec[Visibility] {
	return visibilityCodec{}
}

type visibilityCodec struct{}

func (visibilityCodec) Encode(v Visibility) ([]byte, error) {
	return replication.JSONCodec[NetVisibility]{}.Encode(NetVisibility{Mode: v.String()})
}

func (visibilityCodec) Decode(data []byte) (Visibility, error) {
	w, err := replication.JSONCodec[NetVisibility]{}.Decode(data)
	if err != nil {
		return Hidden, err
	}
	return ParseVisibility(w.Mode)
}

// Tables holds the host-side storage of every demo attribute.
type Tables struct {
	Positions  *world.Table[Position]
	Names      *world.Table[Name]
	Visibility *world.Table[Visibility]
}

func NewTables() Tables {
	return Tables{
		Positions:  world.NewTable[Position](),
		Names:      world.NewTable[Name](),
		Visibility: world.NewTable[Visibility](),
	}
}

// Remove detaches every attribute from h.
func (t Tables) Remove(h replication.Handle) {
	t.Positions.Remove(h)
	t.Names.Remove(h)
	t.Visibility.Remove(h)
}

// Channels are the replication channels wired for Tables.
type Channels struct {
	Position   *replication.Channel[Position]
	Name       *replication.Channel[Name]
	Visibility *replication.Channel[Visibility]
}

// Sync wires one channel per attribute. Positions are sequenced and
// unreliable; names and visibility are reliable.
func Sync(r *replication.Replicator, table *replication.MessageTable, tables Tables) (Channels, error) {
	var (
		chans Channels
		err   error
	)
	chans.Position, err = replication.TrySync(r, table, replication.Binding[Position]{
		Message:     PositionMessage,
		Reliability: replication.UnreliableSequenced,
		Codec:       PositionCodec(),
		Store:       tables.Positions,
	})
	if err != nil {
		return Channels{}, err
	}
	chans.Name, err = replication.TrySync(r, table, replication.Binding[Name]{
		Message:     NameMessage,
		Reliability: replication.ReliableOrdered,
		Codec:       NameCodec(),
		Store:       tables.Names,
	})
	if err != nil {
		return Channels{}, err
	}
	chans.Visibility, err = replication.TrySync(r, table, replication.Binding[Visibility]{
		Message:     VisibilityMessage,
		Reliability: replication.ReliableUnordered,
		Codec:       VisibilityCodec(),
		Store:       tables.Visibility,
	})
	if err != nil {
		return Channels{}, err
	}
	return chans, nil
}

// Track attaches rec to id on every channel.
func (c Channels) Track(id replication.EntityID, rec replication.Record) error {
	return errors.Join(
		c.Position.Track(id, rec),
		c.Name.Track(id, rec),
		c.Visibility.Track(id, rec),
	)
}

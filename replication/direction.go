package replication

type authorityKind uint8

const (
	authorityNone authorityKind = iota
	authorityTo
	authorityFrom
	authorityToFrom
)

// AuthorityDirection describes how the authority treats an attribute: which
// peers it sends to and which peers it accepts updates from.
type AuthorityDirection struct {
	kind authorityKind
	to   RecipientSpec
	from RecipientSpec
}

// AuthorityNone neither sends nor receives the attribute.
func AuthorityNone() AuthorityDirection {
	return AuthorityDirection{}
}

// AuthorityTo sends the attribute to the peers matched by spec.
func AuthorityTo(spec RecipientSpec) AuthorityDirection {
	return AuthorityDirection{kind: authorityTo, to: spec}
}

// AuthorityFrom accepts updates from the peers matched by spec.
func AuthorityFrom(spec RecipientSpec) AuthorityDirection {
	return AuthorityDirection{kind: authorityFrom, from: spec}
}

// AuthorityToFrom sends to the peers matched by to and accepts updates from
// the peers matched by from.
func AuthorityToFrom(to, from RecipientSpec) AuthorityDirection {
	return AuthorityDirection{kind: authorityToFrom, to: to, from: from}
}

// To returns the send filter, if the direction sends.
func (d AuthorityDirection) To() (RecipientSpec, bool) {
	if d.kind == authorityTo || d.kind == authorityToFrom {
		return d.to, true
	}
	return RecipientSpec{}, false
}

// From returns the acceptance filter, if the direction receives.
func (d AuthorityDirection) From() (RecipientSpec, bool) {
	if d.kind == authorityFrom || d.kind == authorityToFrom {
		return d.from, true
	}
	return RecipientSpec{}, false
}

// Hazard reports a ToFrom direction whose filters overlap. The configuration
// is legal but the same peer can both feed and receive the attribute.
func (d AuthorityDirection) Hazard() bool {
	return d.kind == authorityToFrom && d.to.Overlaps(d.from)
}

func (d AuthorityDirection) String() string {
	switch d.kind {
	case authorityTo:
		return "To(" + d.to.String() + ")"
	case authorityFrom:
		return "From(" + d.from.String() + ")"
	case authorityToFrom:
		return "ToFrom(" + d.to.String() + ", " + d.from.String() + ")"
	default:
		return "None"
	}
}

// PeerDirection describes how a peer treats an attribute. A peer only talks to
// the authority so no recipient spec is needed.
type PeerDirection uint8

const (
	PeerNone PeerDirection = iota
	PeerTo
	PeerFrom
)

// To reports whether the peer sends the attribute to the authority.
func (d PeerDirection) To() bool {
	return d == PeerTo
}

// From reports whether the peer accepts the attribute from the authority.
func (d PeerDirection) From() bool {
	return d == PeerFrom
}

func (d PeerDirection) String() string {
	switch d {
	case PeerTo:
		return "To"
	case PeerFrom:
		return "From"
	default:
		return "None"
	}
}

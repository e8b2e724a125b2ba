package replication

// Store is the host runtime's view of one attribute type. Set counts as a
// mutation; Changed drains the handles mutated since the previous call.
type Store[T any] interface {
	Get(Handle) (T, bool)
	Set(Handle, T) bool
	Changed() []Handle
}

// AuthorityTransport is the authority side of the network. SendTo and Drain
// must not block; Drain removes what it returns.
type AuthorityTransport interface {
	Connections() []ConnID
	SendTo(conn ConnID, msg MessageType, env Envelope) error
	Drain(msg MessageType) []Envelope
}

// PeerTransport is a peer's link to its single authority.
type PeerTransport interface {
	Send(msg MessageType, env Envelope) error
	Drain(msg MessageType) []Envelope
}

// Role selects which direction of a Record applies.
type Role uint8

const (
	RoleAuthority Role = iota
	RolePeer
)

func (r Role) String() string {
	if r == RoleAuthority {
		return "authority"
	}
	return "peer"
}

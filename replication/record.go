package replication

// Record is the replication state of one attribute on one entity. The
// direction fields are declarative; only the Inbound Pipeline writes
// LastApplied. A record carries both role directions so the same setup code
// serves the authority and its peers.
type Record struct {
	Authority   AuthorityDirection
	Peer        PeerDirection
	LastApplied SendTime

	hazardReported bool
}

// NewRecord returns a record with no recency marker.
func NewRecord(authority AuthorityDirection, peer PeerDirection) Record {
	return Record{Authority: authority, Peer: peer}
}

// sends reports whether the record produces outbound updates for role.
func (r *Record) sends(role Role) bool {
	if role == RoleAuthority {
		_, ok := r.Authority.To()
		return ok
	}
	return r.Peer.To()
}

// acceptor returns the sender filter for role, or nil if the record does not
// receive in that role.
func (r *Record) acceptor(role Role) func(ConnID) bool {
	if role == RoleAuthority {
		from, ok := r.Authority.From()
		if !ok {
			return nil
		}
		return from.Matches
	}
	if !r.Peer.From() {
		return nil
	}
	return acceptAll
}

func acceptAll(ConnID) bool { return true }

package replication

import (
	"fmt"
	"slices"
	"strings"
)

// ConnID identifies one connected peer for the lifetime of its connection.
type ConnID uint64

// AuthorityConn is the sender recorded on every envelope a peer receives.
const AuthorityConn ConnID = 0

type specKind uint8

const (
	specNone specKind = iota
	specAll
	specInclude
	specExcept
)

// RecipientSpec is an immutable predicate over connection identifiers. The
// authority uses it to pick send targets and receivers use it to decide which
// senders they trust.
type RecipientSpec struct {
	kind specKind
	ids  []ConnID
}

// All matches every connection.
func All() RecipientSpec {
	return RecipientSpec{kind: specAll}
}

// None matches no connection.
func None() RecipientSpec {
	return RecipientSpec{kind: specNone}
}

// Include matches exactly the listed connections.
func Include(ids ...ConnID) RecipientSpec {
	return RecipientSpec{kind: specInclude, ids: normalizeIDs(ids)}
}

// Except matches every connection that is not listed.
func Except(ids ...ConnID) RecipientSpec {
	return RecipientSpec{kind: specExcept, ids: normalizeIDs(ids)}
}

func normalizeIDs(ids []ConnID) []ConnID {
	if len(ids) == 0 {
		return nil
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

// Matches reports whether the connection is accepted by the spec.
func (s RecipientSpec) Matches(id ConnID) bool {
	switch s.kind {
	case specAll:
		return true
	case specInclude:
		_, found := slices.BinarySearch(s.ids, id)
		return found
	case specExcept:
		_, found := slices.BinarySearch(s.ids, id)
		return !found
	default:
		return false
	}
}

// Overlaps reports whether at least one connection is accepted by both specs.
// The identifier space is the full uint64 range, so a finite exclusion list
// can never exhaust it.
func (s RecipientSpec) Overlaps(other RecipientSpec) bool {
	if s.empty() || other.empty() {
		return false
	}
	switch {
	case s.kind == specAll || other.kind == specAll:
		return true
	case s.kind == specExcept && other.kind == specExcept:
		return true
	case s.kind == specInclude && other.kind == specInclude:
		return intersects(s.ids, other.ids)
	case s.kind == specInclude:
		return hasOutside(s.ids, other.ids)
	default:
		return hasOutside(other.ids, s.ids)
	}
}

func (s RecipientSpec) empty() bool {
	return s.kind == specNone || (s.kind == specInclude && len(s.ids) == 0)
}

// IDs returns a copy of the listed connections for Include and Except specs.
func (s RecipientSpec) IDs() []ConnID {
	return slices.Clone(s.ids)
}

// String renders the spec as All, None, Include(1,2) or Except(3).
func (s RecipientSpec) String() string {
	switch s.kind {
	case specAll:
		return "All"
	case specInclude:
		return "Include(" + joinIDs(s.ids) + ")"
	case specExcept:
		return "Except(" + joinIDs(s.ids) + ")"
	default:
		return "None"
	}
}

func joinIDs(ids []ConnID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

func intersects(a, b []ConnID) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			return true
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// hasOutside reports whether include \ exclude is non-empty.
func hasOutside(include, exclude []ConnID) bool {
	for _, id := range include {
		if _, found := slices.BinarySearch(exclude, id); !found {
			return true
		}
	}
	return false
}

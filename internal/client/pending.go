package client

import "mapsync/internal/entry"

// PendingState is the lifecycle of a local edit.
type PendingState int

const (
	// Speculative edits are applied locally and awaiting the server.
	Speculative PendingState = iota
	// Confirmed edits were accepted by the server.
	Confirmed
	// RolledBack edits were rejected or superseded; the replica holds the
	// authoritative value again.
	RolledBack
)

func (s PendingState) String() string {
	switch s {
	case Speculative:
		return "speculative"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// pending tracks the local edits of one entry that the server has not
// answered yet.
type pending struct {
	entry       entry.Entry
	state       PendingState
	outstanding int
	// base is the last authoritative value of the entry.
	base entry.Mapping
	// superseded is set once another user's change overtook the edits.
	superseded bool
}

// answered records one server answer and reports whether the entry has no
// more edits in flight.
func (p *pending) answered(accepted bool) bool {
	p.outstanding--
	if !accepted {
		p.superseded = true
	}
	if p.outstanding > 0 {
		return false
	}
	if p.superseded {
		p.state = RolledBack
	} else {
		p.state = Confirmed
	}
	return true
}

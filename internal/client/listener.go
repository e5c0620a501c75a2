package client

import (
	"mapsync/internal/entry"
	"mapsync/internal/protocol"
)

// Listener observes a client. Callbacks run on the client's read
// goroutine, or on the caller's goroutine for local edits, and never with
// client locks held.
type Listener interface {
	// MappingChanged reports the new replica value of e; ok is false when
	// e no longer has a mapping.
	MappingChanged(e entry.Entry, m entry.Mapping, ok bool)
	// EditResolved reports that every outstanding local edit of e has been
	// answered by the server.
	EditResolved(e entry.Entry, state PendingState)
	// Conflict reports a change by another user to an entry with local
	// edits in flight. theirs is now the replica value.
	Conflict(e entry.Entry, mine, theirs entry.Mapping)
	UsersChanged(users []string)
	MessageReceived(m protocol.Message)
	// Disconnected is called once when the session ends. reason is the
	// kick reason, if the server sent one.
	Disconnected(reason string, err error)
}

// NopListener ignores every event. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) MappingChanged(entry.Entry, entry.Mapping, bool) {}
func (NopListener) EditResolved(entry.Entry, PendingState) {}
func (NopListener) Conflict(entry.Entry, entry.Mapping, entry.Mapping) {}
func (NopListener) UsersChanged([]string) {}
func (NopListener) MessageReceived(protocol.Message) {}
func (NopListener) Disconnected(string, error) {}

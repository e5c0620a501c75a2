package server

import (
	"time"

	"github.com/google/uuid"

	"mapsync/internal/entry"
	"mapsync/internal/protocol"
)

// MutationKind names the edit operations a session can request.
type MutationKind string

const (
	MutationRename           MutationKind = "rename"
	MutationRemoveMapping    MutationKind = "remove_mapping"
	MutationChangeDocs       MutationKind = "change_docs"
	MutationMarkDeobfuscated MutationKind = "mark_deobfuscated"
)

// Change describes one accepted mutation of the authoritative tree.
type Change struct {
	SyncID  protocol.SyncID
	Session uuid.UUID
	User    string
	Kind    MutationKind
	Entry   entry.Entry
	Before  entry.Mapping
	After   entry.Mapping
	At      time.Time
}

// Journal receives every accepted change in sync order. Record is called
// with the server mutex held and must not block.
type Journal interface {
	Record(c Change)
}

// request is a decoded edit awaiting the authority checks.
type request struct {
	kind         MutationKind
	entry        entry.Entry
	name         string
	docs         string
	deobfuscated bool
}

// apply computes the mapping after r from the current one.
func (r request) apply(cur entry.Mapping) entry.Mapping {
	switch r.kind {
	case MutationRename:
		return cur.WithName(r.name)
	case MutationChangeDocs:
		return cur.WithDocs(r.docs)
	case MutationMarkDeobfuscated:
		return entry.WithDeobfuscated(r.entry, cur, r.deobfuscated)
	default:
		return entry.Mapping{}
	}
}

// notification is the packet broadcast to the other sessions.
func (r request) notification(id protocol.SyncID) protocol.Clientbound {
	switch r.kind {
	case MutationRename:
		return &protocol.RenameS2C{SyncID: id, Entry: r.entry, NewName: r.name}
	case MutationChangeDocs:
		return &protocol.ChangeDocsS2C{SyncID: id, Entry: r.entry, Docs: r.docs}
	case MutationMarkDeobfuscated:
		return &protocol.MarkDeobfuscatedS2C{SyncID: id, Entry: r.entry, Deobfuscated: r.deobfuscated}
	default:
		return &protocol.RemoveMappingS2C{SyncID: id, Entry: r.entry}
	}
}

// echo is the rejection sent back to the requester, carrying the current
// authoritative value.
func (r request) echo(cur entry.Mapping) protocol.Clientbound {
	if r.kind == MutationChangeDocs {
		return &protocol.ChangeDocsS2C{SyncID: protocol.NoSyncID, Entry: r.entry, Docs: cur.Docs}
	}
	return &protocol.RenameS2C{SyncID: protocol.NoSyncID, Entry: r.entry, NewName: cur.TargetName}
}

// activity is the log line broadcast for an accepted change.
func (r request) activity(user string) protocol.Message {
	switch r.kind {
	case MutationRename:
		return protocol.RenameMessage(user, r.entry, r.name)
	case MutationChangeDocs:
		return protocol.EditDocsMessage(user, r.entry)
	case MutationMarkDeobfuscated:
		return protocol.MarkDeobfuscatedMessage(user, r.entry)
	default:
		return protocol.RemoveMappingMessage(user, r.entry)
	}
}

package server

import (
	"github.com/google/uuid"

	"mapsync/internal/entry"
	"mapsync/internal/protocol"
)

type lockRecord struct {
	key     entry.Key
	owner   uuid.UUID
	syncID  protocol.SyncID
	pending map[uuid.UUID]struct{}
}

// LockTable tracks which session last changed each entry and which other
// sessions have yet to confirm that change. It is owned by a Server and
// guarded by the server mutex.
//
// A session may modify an entry when no record exists, when it owns the
// record, or when it has confirmed the record's latest change.
type LockTable struct {
	records map[entry.Key]*lockRecord
	bySync  map[protocol.SyncID]*lockRecord
	next    protocol.SyncID
}

// NewLockTable returns an empty table whose first sync id is 0.
func NewLockTable() *LockTable {
	return &LockTable{
		records: make(map[entry.Key]*lockRecord),
		bySync:  make(map[protocol.SyncID]*lockRecord),
	}
}

// CanModify reports whether session may edit e.
func (t *LockTable) CanModify(session uuid.UUID, e entry.Entry) bool {
	rec, ok := t.records[e.Key()]
	if !ok || rec.owner == session {
		return true
	}
	_, waiting := rec.pending[session]
	return !waiting
}

// Owner returns the session holding the record for e.
func (t *LockTable) Owner(e entry.Entry) (uuid.UUID, bool) {
	rec, ok := t.records[e.Key()]
	if !ok {
		return uuid.Nil, false
	}
	return rec.owner, true
}

// Acquire records an accepted change of e by owner, assigns it a fresh sync
// id and arms a confirmation for every session in others.
func (t *LockTable) Acquire(owner uuid.UUID, e entry.Entry, others []uuid.UUID) protocol.SyncID {
	id := t.nextID()
	if stale, ok := t.bySync[id]; ok {
		// The id wrapped around while an old change was still unconfirmed.
		t.drop(stale)
	}
	key := e.Key()
	if old, ok := t.records[key]; ok {
		delete(t.bySync, old.syncID)
	}

	rec := &lockRecord{
		key:     key,
		owner:   owner,
		syncID:  id,
		pending: make(map[uuid.UUID]struct{}, len(others)),
	}
	for _, s := range others {
		if s != owner {
			rec.pending[s] = struct{}{}
		}
	}
	t.records[key] = rec
	t.bySync[id] = rec
	return id
}

func (t *LockTable) nextID() protocol.SyncID {
	id := t.next
	t.next++
	if t.next == protocol.NoSyncID {
		t.next = 0
	}
	return id
}

// Confirm marks the change with the given sync id as applied by session.
// It reports whether the id matched a live record. The owner's hold on the
// entry is never released by a confirmation.
func (t *LockTable) Confirm(session uuid.UUID, id protocol.SyncID) bool {
	rec, ok := t.bySync[id]
	if !ok {
		return false
	}
	delete(rec.pending, session)
	return true
}

// ReleaseSession drops every record owned by session and removes it from
// all confirmation sets. It returns the number of records released.
func (t *LockTable) ReleaseSession(session uuid.UUID) int {
	released := 0
	for _, rec := range t.records {
		if rec.owner == session {
			t.drop(rec)
			released++
			continue
		}
		delete(rec.pending, session)
	}
	return released
}

// Len returns the number of live records.
func (t *LockTable) Len() int { return len(t.records) }

func (t *LockTable) drop(rec *lockRecord) {
	if cur, ok := t.records[rec.key]; ok && cur == rec {
		delete(t.records, rec.key)
	}
	if cur, ok := t.bySync[rec.syncID]; ok && cur == rec {
		delete(t.bySync, rec.syncID)
	}
}

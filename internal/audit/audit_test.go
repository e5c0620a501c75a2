package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapsync/internal/entry"
	"mapsync/internal/protocol"
	"mapsync/internal/server"
	"mapsync/internal/slogutil"
)

var (
	classABC = entry.NewClass("a.b.C")
	inner    = entry.NewInnerClass(classABC, "D")
	fieldE   = entry.NewField(inner, "e", "I")
	classXYZ = entry.NewClass("x.y.Z")
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal", "audit.db"), slogutil.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func change(id int, user string, kind server.MutationKind, e entry.Entry, after entry.Mapping) server.Change {
	return server.Change{
		SyncID:  protocol.SyncID(id),
		Session: uuid.New(),
		User:    user,
		Kind:    kind,
		Entry:   e,
		After:   after,
		At:      time.Date(2026, 1, 2, 3, 4, id, 0, time.UTC),
	}
}

func TestEventFromChange(t *testing.T) {
	c := change(7, "alice", server.MutationRename, fieldE,
		entry.NewMapping("depth").WithAccess(entry.AccessPrivate).WithDocs("How deep."))
	c.Before = entry.NewMapping("old")

	ev := EventFromChange(c)
	assert.Equal(t, uint16(7), ev.SyncID)
	assert.Equal(t, "alice", ev.User)
	assert.Equal(t, "rename", ev.Kind)
	assert.Equal(t, "a.b.C", ev.Class)
	assert.Equal(t, fieldE.String(), ev.Entry)
	assert.Equal(t, entry.KindField.String(), ev.EntryKind)
	assert.Equal(t, "old", ev.BeforeName)
	assert.Equal(t, "depth", ev.TargetName)
	assert.Equal(t, "private", ev.Access)
	assert.Equal(t, "How deep.", ev.Docs)
	assert.Equal(t, c.Session.String(), ev.Session)

	assert.Empty(t, EventFromChange(change(1, "bob", server.MutationRemoveMapping, classABC, entry.Mapping{})).Access)
}

func TestStore_RecordAndList(t *testing.T) {
	s := openStore(t)

	events := []server.Change{
		change(0, "alice", server.MutationRename, classABC, entry.NewMapping("Widget")),
		change(1, "bob", server.MutationChangeDocs, fieldE, entry.Mapping{Docs: "How deep."}),
		change(2, "alice", server.MutationRename, classXYZ, entry.NewMapping("Gadget")),
		change(3, "alice", server.MutationRemoveMapping, classABC, entry.Mapping{}),
	}
	for _, c := range events {
		_, err := s.Record(EventFromChange(c))
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		opts  ListOptions
		total int
		ids   []uint16
	}{
		{"all newest first", ListOptions{}, 4, []uint16{3, 2, 1, 0}},
		{"by user", ListOptions{User: "alice"}, 3, []uint16{3, 2, 0}},
		{"by kind", ListOptions{Kinds: []string{"rename", "change_docs"}}, 3, []uint16{2, 1, 0}},
		{"by class", ListOptions{Class: "a.b.C"}, 3, []uint16{3, 1, 0}},
		{"since", ListOptions{Since: time.Date(2026, 1, 2, 3, 4, 2, 0, time.UTC)}, 2, []uint16{3, 2}},
		{"paged", ListOptions{Limit: 2, Offset: 1}, 4, []uint16{2, 1}},
		{"no match", ListOptions{User: "carol"}, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.List(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.total, resp.TotalCount)
			var ids []uint16
			for _, ev := range resp.Events {
				ids = append(ids, ev.SyncID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}

	resp, err := s.List(ListOptions{Kinds: []string{"change_docs"}})
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	ev := resp.Events[0]
	assert.Equal(t, "bob", ev.User)
	assert.Equal(t, "How deep.", ev.Docs)
	assert.Empty(t, ev.TargetName)
	assert.True(t, ev.At.Equal(time.Date(2026, 1, 2, 3, 4, 1, 0, time.UTC)))
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	_, err = s.Record(EventFromChange(change(0, "alice", server.MutationRename, classABC, entry.NewMapping("W"))))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	defer s.Close()
	resp, err := s.List(ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, path, s.Path())
}

func TestStore_Prune(t *testing.T) {
	s := openStore(t)
	old := EventFromChange(change(0, "alice", server.MutationRename, classABC, entry.NewMapping("W")))
	old.At = time.Now().Add(-48 * time.Hour)
	recent := EventFromChange(change(1, "alice", server.MutationRename, classXYZ, entry.NewMapping("G")))
	recent.At = time.Now()
	for _, ev := range []Event{old, recent} {
		_, err := s.Record(ev)
		require.NoError(t, err)
	}

	n, err := s.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	resp, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, uint16(1), resp.Events[0].SyncID)
}

func TestRecorder_WritesInOrder(t *testing.T) {
	s := openStore(t)
	r := NewRecorder(s, slogutil.NewDiscardLogger(), 0)

	for i := 0; i < 20; i++ {
		r.Record(change(i, "alice", server.MutationRename, classABC, entry.NewMapping("W")))
	}
	r.Close()
	r.Close()
	r.Record(change(99, "alice", server.MutationRename, classABC, entry.NewMapping("late")))

	assert.Equal(t, int64(20), r.Recorded())
	assert.Equal(t, int64(0), r.Dropped())
	resp, err := s.List(ListOptions{Limit: 100})
	require.NoError(t, err)
	require.Len(t, resp.Events, 20)
	assert.Equal(t, uint16(19), resp.Events[0].SyncID)
	assert.Equal(t, uint16(0), resp.Events[19].SyncID)
}

func TestRecorder_DropsOnOverflow(t *testing.T) {
	s := openStore(t)
	// No writer goroutine, so the buffer never drains.
	r := &Recorder{store: s, logger: slogutil.NewDiscardLogger(), events: make(chan Event, 2)}

	for i := 0; i < 5; i++ {
		r.Record(change(i, "alice", server.MutationRename, classABC, entry.NewMapping("W")))
	}
	assert.Equal(t, int64(3), r.Dropped())
	assert.Len(t, r.events, 2)
}

// Package audit journals accepted mapping changes to SQLite so operators
// can review who changed what. The journal is an activity log only; the
// server never restores its tree from it.
package audit

import (
	"time"

	"mapsync/internal/entry"
	"mapsync/internal/server"
)

// Event is one journaled change.
type Event struct {
	ID         int64     `json:"id"`
	SyncID     uint16    `json:"syncId"`
	Session    string    `json:"session"`
	User       string    `json:"user"`
	Kind       string    `json:"kind"`
	EntryKind  string    `json:"entryKind"`
	Entry      string    `json:"entry"`
	Class      string    `json:"class"`
	BeforeName string    `json:"beforeName,omitempty"`
	TargetName string    `json:"targetName,omitempty"`
	Access     string    `json:"access,omitempty"`
	Docs       string    `json:"docs,omitempty"`
	At         time.Time `json:"at"`
}

// EventFromChange flattens an accepted server change into a journal event.
func EventFromChange(c server.Change) Event {
	ev := Event{
		SyncID:     uint16(c.SyncID),
		Session:    c.Session.String(),
		User:       c.User,
		Kind:       string(c.Kind),
		EntryKind:  c.Entry.Kind().String(),
		Entry:      c.Entry.String(),
		BeforeName: c.Before.TargetName,
		TargetName: c.After.TargetName,
		Docs:       c.After.Docs,
		At:         c.At.UTC(),
	}
	if top := entry.TopLevelClass(c.Entry); top != nil {
		ev.Class = top.Name()
	}
	if c.After.Access != entry.AccessUnchanged {
		ev.Access = c.After.Access.String()
	}
	return ev
}

// ListOptions filters a journal query. Zero values match everything.
type ListOptions struct {
	User  string
	Kinds []string
	// Class restricts results to changes inside one top-level class,
	// given by its obfuscated name.
	Class  string
	Since  time.Time
	Limit  int
	Offset int
}

// ListResponse is one page of events, newest first.
type ListResponse struct {
	Events     []Event `json:"events"`
	TotalCount int     `json:"totalCount"`
}

package client

import (
	"bufio"
	"io"

	"mapsync/internal/entry"
	"mapsync/internal/errors"
	"mapsync/internal/protocol"
)

func (c *Client) readLoop() {
	r := bufio.NewReader(c.conn)
	var err error
	for {
		var p protocol.Clientbound
		p, err = protocol.ReadClientbound(r)
		if err != nil {
			break
		}
		if kick, ok := p.(*protocol.KickS2C); ok {
			c.mu.Lock()
			c.kickReason = kick.Reason
			c.mu.Unlock()
			c.logger.Info("kicked by server", "reason", kick.Reason)
			err = nil
			break
		}
		c.handle(p)
	}
	c.finish(err)
}

func (c *Client) finish(err error) {
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		select {
		case <-c.synced:
			c.logger.Warn("connection lost", "error", err)
		default:
		}
	}
	_ = c.conn.Close()

	c.mu.Lock()
	c.err = err
	reason := c.kickReason
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })
	c.listener.Disconnected(reason, err)
}

func (c *Client) handle(p protocol.Clientbound) {
	switch p := p.(type) {
	case *protocol.SyncMappingsS2C:
		c.mu.Lock()
		c.replica = p.Mappings
		c.pending = make(map[entry.Key]*pending)
		c.mu.Unlock()
		c.logger.Debug("received mappings", "entries", p.Mappings.Len())
		c.syncOnce.Do(func() { close(c.synced) })

	case *protocol.ChangeAcceptedS2C:
		c.accepted(p)

	case *protocol.RenameS2C:
		c.changed(p.SyncID, p.Entry, func(m entry.Mapping) entry.Mapping { return m.WithName(p.NewName) })
	case *protocol.RemoveMappingS2C:
		c.changed(p.SyncID, p.Entry, func(entry.Mapping) entry.Mapping { return entry.Mapping{} })
	case *protocol.ChangeDocsS2C:
		c.changed(p.SyncID, p.Entry, func(m entry.Mapping) entry.Mapping { return m.WithDocs(p.Docs) })
	case *protocol.MarkDeobfuscatedS2C:
		c.changed(p.SyncID, p.Entry, func(m entry.Mapping) entry.Mapping {
			return entry.WithDeobfuscated(p.Entry, m, p.Deobfuscated)
		})

	case *protocol.UserListS2C:
		c.mu.Lock()
		c.users = p.Users
		c.mu.Unlock()
		c.listener.UsersChanged(append([]string(nil), p.Users...))

	case *protocol.MessageS2C:
		c.logger.Info(p.Message.String(), "activity", p.Message.Kind.String())
		c.listener.MessageReceived(p.Message)
	}
}

// accepted confirms one local edit and acknowledges the sync id.
func (c *Client) accepted(p *protocol.ChangeAcceptedS2C) {
	c.mu.Lock()
	key := p.Entry.Key()
	pe, ok := c.pending[key]
	resolved := false
	var state PendingState
	if ok {
		resolved = pe.answered(true)
		pe.base, _ = c.replica.Get(p.Entry)
		if resolved {
			state = pe.state
			delete(c.pending, key)
		}
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("acceptance for an entry with no local edit", "entry", p.Entry.String())
	}
	if resolved {
		c.listener.EditResolved(p.Entry, state)
	}
	c.confirm(p.SyncID)
}

// changed applies a server notification. A real sync id is another user's
// accepted change and overwrites the replica; NoSyncID is a rejection echo
// of one of our edits carrying the authoritative value of one field.
func (c *Client) changed(id protocol.SyncID, e entry.Entry, change func(entry.Mapping) entry.Mapping) {
	if id == protocol.NoSyncID {
		c.rejected(e, change)
		return
	}

	c.mu.Lock()
	key := e.Key()
	mine, _ := c.replica.Get(e)
	pe, conflict := c.pending[key]
	var theirs entry.Mapping
	if conflict {
		theirs = change(pe.base)
		pe.base = theirs
		pe.superseded = true
		pe.state = RolledBack
	} else {
		theirs = change(mine)
	}
	c.store(e, theirs)
	stored, has := c.replica.Get(e)
	c.mu.Unlock()

	if conflict {
		c.logger.Info("local edit overtaken by another user", "entry", e.String())
		c.listener.Conflict(e, mine, stored)
	}
	c.listener.MappingChanged(e, stored, has)
	c.confirm(id)
}

// rejected rolls the replica back to the authoritative value carried by
// an echo. Fields the echo does not carry come from the base.
func (c *Client) rejected(e entry.Entry, change func(entry.Mapping) entry.Mapping) {
	c.mu.Lock()
	key := e.Key()
	base, _ := c.replica.Get(e)
	pe, ok := c.pending[key]
	if ok {
		base = pe.base
	}
	restored := change(base)
	c.store(e, restored)
	stored, has := c.replica.Get(e)

	resolved := false
	var state PendingState
	if ok {
		pe.base = restored
		resolved = pe.answered(false)
		if resolved {
			state = pe.state
			delete(c.pending, key)
		}
	}
	c.mu.Unlock()

	c.logger.Info("edit rejected by server", "entry", e.String())
	c.listener.MappingChanged(e, stored, has)
	if resolved {
		c.listener.EditResolved(e, state)
	}
}

func (c *Client) confirm(id protocol.SyncID) {
	if err := c.send(&protocol.ConfirmChangeC2S{SyncID: id}); err != nil && !errors.Is(err, errors.TransportFailure) {
		c.logger.Warn("failed to confirm change", "sync_id", id, "error", err)
	}
}

package protocol

import (
	"mapsync/internal/entry"
	"mapsync/internal/errors"
	"mapsync/internal/tree"
	"mapsync/internal/wire"
)

// KickS2C ends the session. The server closes the connection after it.
type KickS2C struct {
	Reason string
}

func (*KickS2C) clientbound() {}

func (p *KickS2C) Write(w *wire.Writer) error { return w.String(p.Reason) }

func (p *KickS2C) Read(r *wire.Reader) (err error) {
	p.Reason, err = r.String()
	return err
}

// SyncMappingsS2C carries the full authoritative tree sent after login.
type SyncMappingsS2C struct {
	Mappings *tree.EntryTree[entry.Mapping]
}

func (*SyncMappingsS2C) clientbound() {}

func (p *SyncMappingsS2C) Write(w *wire.Writer) error {
	if p.Mappings == nil {
		w.Uint32(0)
		return nil
	}
	roots := p.Mappings.Roots()
	w.Uint32(uint32(len(roots)))
	for _, n := range roots {
		if err := writeNode(w, n); err != nil {
			return err
		}
	}
	return nil
}

func writeNode(w *wire.Writer, n *tree.Node[entry.Mapping]) error {
	if err := w.EntryWithParent(n.Entry(), false); err != nil {
		return err
	}
	m, ok := n.Value()
	w.Bool(ok)
	if ok {
		if err := w.OptionalString(m.TargetName); err != nil {
			return err
		}
		w.Uint8(uint8(m.Access))
		if err := w.OptionalString(m.Docs); err != nil {
			return err
		}
	}
	children := n.Children()
	w.Uint32(uint32(len(children)))
	for _, c := range children {
		if err := writeNode(w, c); err != nil {
			return err
		}
	}
	return nil
}

func (p *SyncMappingsS2C) Read(r *wire.Reader) error {
	p.Mappings = tree.New[entry.Mapping]()
	roots, err := r.Uint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < roots; i++ {
		if err := readNode(r, nil, p.Mappings); err != nil {
			return err
		}
	}
	return nil
}

func readNode(r *wire.Reader, parent entry.Entry, t *tree.EntryTree[entry.Mapping]) error {
	e, err := r.EntryWithParent(parent)
	if err != nil {
		return err
	}
	hasValue, err := r.Bool()
	if err != nil {
		return err
	}
	if hasValue {
		var m entry.Mapping
		if m.TargetName, err = r.OptionalString(); err != nil {
			return err
		}
		access, err := r.Uint8()
		if err != nil {
			return err
		}
		m.Access = entry.AccessModifier(access)
		if !m.Access.Valid() {
			return errors.Newf(errors.MalformedPacket, "unknown access modifier %d", access)
		}
		if m.Docs, err = r.OptionalString(); err != nil {
			return err
		}
		t.Insert(e, m)
	}
	children, err := r.Uint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < children; i++ {
		if err := readNode(r, e, t); err != nil {
			return err
		}
	}
	return nil
}

// RenameS2C announces a new name. A NoSyncID echo is a rejection that
// carries the current authoritative name.
type RenameS2C struct {
	SyncID  SyncID
	Entry   entry.Entry
	NewName string
}

func (*RenameS2C) clientbound() {}

func (p *RenameS2C) Write(w *wire.Writer) error {
	w.Uint16(uint16(p.SyncID))
	if err := writeEntry(w, p.Entry); err != nil {
		return err
	}
	return w.String(p.NewName)
}

func (p *RenameS2C) Read(r *wire.Reader) (err error) {
	if err = readSyncID(r, &p.SyncID); err != nil {
		return err
	}
	if p.Entry, err = r.Entry(); err != nil {
		return err
	}
	p.NewName, err = r.String()
	return err
}

// RemoveMappingS2C announces that an entry reverted to its obfuscated name.
type RemoveMappingS2C struct {
	SyncID SyncID
	Entry  entry.Entry
}

func (*RemoveMappingS2C) clientbound() {}

func (p *RemoveMappingS2C) Write(w *wire.Writer) error {
	w.Uint16(uint16(p.SyncID))
	return writeEntry(w, p.Entry)
}

func (p *RemoveMappingS2C) Read(r *wire.Reader) (err error) {
	if err = readSyncID(r, &p.SyncID); err != nil {
		return err
	}
	p.Entry, err = r.Entry()
	return err
}

// ChangeDocsS2C announces new documentation, or echoes the current docs on
// rejection.
type ChangeDocsS2C struct {
	SyncID SyncID
	Entry  entry.Entry
	Docs   string
}

func (*ChangeDocsS2C) clientbound() {}

func (p *ChangeDocsS2C) Write(w *wire.Writer) error {
	w.Uint16(uint16(p.SyncID))
	if err := writeEntry(w, p.Entry); err != nil {
		return err
	}
	return w.String(p.Docs)
}

func (p *ChangeDocsS2C) Read(r *wire.Reader) (err error) {
	if err = readSyncID(r, &p.SyncID); err != nil {
		return err
	}
	if p.Entry, err = r.Entry(); err != nil {
		return err
	}
	p.Docs, err = r.String()
	return err
}

// MarkDeobfuscatedS2C announces a deobfuscation mark change.
type MarkDeobfuscatedS2C struct {
	SyncID       SyncID
	Entry        entry.Entry
	Deobfuscated bool
}

func (*MarkDeobfuscatedS2C) clientbound() {}

func (p *MarkDeobfuscatedS2C) Write(w *wire.Writer) error {
	w.Uint16(uint16(p.SyncID))
	if err := writeEntry(w, p.Entry); err != nil {
		return err
	}
	w.Bool(p.Deobfuscated)
	return nil
}

func (p *MarkDeobfuscatedS2C) Read(r *wire.Reader) (err error) {
	if err = readSyncID(r, &p.SyncID); err != nil {
		return err
	}
	if p.Entry, err = r.Entry(); err != nil {
		return err
	}
	p.Deobfuscated, err = r.Bool()
	return err
}

// MessageS2C delivers a chat or activity line.
type MessageS2C struct {
	Message Message
}

func (*MessageS2C) clientbound() {}

func (p *MessageS2C) Write(w *wire.Writer) error { return p.Message.write(w) }

func (p *MessageS2C) Read(r *wire.Reader) (err error) {
	p.Message, err = readMessage(r)
	return err
}

// UserListS2C carries the full roster of connected usernames.
type UserListS2C struct {
	Users []string
}

func (*UserListS2C) clientbound() {}

func (p *UserListS2C) Write(w *wire.Writer) error {
	if len(p.Users) > 0xFFFF {
		return errors.Newf(errors.InternalError, "too many users: %d", len(p.Users))
	}
	w.Uint16(uint16(len(p.Users)))
	for _, u := range p.Users {
		if err := w.String(u); err != nil {
			return err
		}
	}
	return nil
}

func (p *UserListS2C) Read(r *wire.Reader) error {
	n, err := r.Uint16()
	if err != nil {
		return err
	}
	p.Users = make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		u, err := r.String()
		if err != nil {
			return err
		}
		p.Users = append(p.Users, u)
	}
	return nil
}

// ChangeAcceptedS2C tells the originator of an edit that it was applied
// under SyncID and that it now holds the entry's lock.
type ChangeAcceptedS2C struct {
	SyncID SyncID
	Entry  entry.Entry
}

func (*ChangeAcceptedS2C) clientbound() {}

func (p *ChangeAcceptedS2C) Write(w *wire.Writer) error {
	w.Uint16(uint16(p.SyncID))
	return writeEntry(w, p.Entry)
}

func (p *ChangeAcceptedS2C) Read(r *wire.Reader) (err error) {
	if err = readSyncID(r, &p.SyncID); err != nil {
		return err
	}
	p.Entry, err = r.Entry()
	return err
}

func readSyncID(r *wire.Reader, id *SyncID) error {
	v, err := r.Uint16()
	*id = SyncID(v)
	return err
}

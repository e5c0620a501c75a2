package protocol

import (
	"mapsync/internal/entry"
	"mapsync/internal/errors"
	"mapsync/internal/wire"
)

func writeEntry(w *wire.Writer, e entry.Entry) error {
	if e == nil {
		return errors.Newf(errors.InternalError, "packet has no entry")
	}
	return w.Entry(e)
}

// LoginC2S is the first packet of every connection.
type LoginC2S struct {
	ProtocolVersion uint16
	Username        string
}

func (*LoginC2S) serverbound() {}

func (p *LoginC2S) Write(w *wire.Writer) error {
	w.Uint16(p.ProtocolVersion)
	return w.String(p.Username)
}

func (p *LoginC2S) Read(r *wire.Reader) (err error) {
	if p.ProtocolVersion, err = r.Uint16(); err != nil {
		return err
	}
	p.Username, err = r.String()
	return err
}

// ConfirmChangeC2S acknowledges that a broadcast mutation was applied.
type ConfirmChangeC2S struct {
	SyncID SyncID
}

func (*ConfirmChangeC2S) serverbound() {}

func (p *ConfirmChangeC2S) Write(w *wire.Writer) error {
	w.Uint16(uint16(p.SyncID))
	return nil
}

func (p *ConfirmChangeC2S) Read(r *wire.Reader) error {
	id, err := r.Uint16()
	p.SyncID = SyncID(id)
	return err
}

// RenameC2S requests a new deobfuscated name for an entry.
type RenameC2S struct {
	Entry   entry.Entry
	NewName string
}

func (*RenameC2S) serverbound() {}

func (p *RenameC2S) Write(w *wire.Writer) error {
	if err := writeEntry(w, p.Entry); err != nil {
		return err
	}
	return w.String(p.NewName)
}

func (p *RenameC2S) Read(r *wire.Reader) (err error) {
	if p.Entry, err = r.Entry(); err != nil {
		return err
	}
	p.NewName, err = r.String()
	return err
}

// RemoveMappingC2S requests that an entry revert to its obfuscated name.
type RemoveMappingC2S struct {
	Entry entry.Entry
}

func (*RemoveMappingC2S) serverbound() {}

func (p *RemoveMappingC2S) Write(w *wire.Writer) error { return writeEntry(w, p.Entry) }

func (p *RemoveMappingC2S) Read(r *wire.Reader) (err error) {
	p.Entry, err = r.Entry()
	return err
}

// ChangeDocsC2S sets or clears the documentation of an entry. Empty Docs
// clears.
type ChangeDocsC2S struct {
	Entry entry.Entry
	Docs  string
}

func (*ChangeDocsC2S) serverbound() {}

func (p *ChangeDocsC2S) Write(w *wire.Writer) error {
	if err := writeEntry(w, p.Entry); err != nil {
		return err
	}
	return w.String(p.Docs)
}

func (p *ChangeDocsC2S) Read(r *wire.Reader) (err error) {
	if p.Entry, err = r.Entry(); err != nil {
		return err
	}
	p.Docs, err = r.String()
	return err
}

// MarkDeobfuscatedC2S marks an entry as deobfuscated under its own name,
// or unmarks it.
type MarkDeobfuscatedC2S struct {
	Entry        entry.Entry
	Deobfuscated bool
}

func (*MarkDeobfuscatedC2S) serverbound() {}

func (p *MarkDeobfuscatedC2S) Write(w *wire.Writer) error {
	if err := writeEntry(w, p.Entry); err != nil {
		return err
	}
	w.Bool(p.Deobfuscated)
	return nil
}

func (p *MarkDeobfuscatedC2S) Read(r *wire.Reader) (err error) {
	if p.Entry, err = r.Entry(); err != nil {
		return err
	}
	p.Deobfuscated, err = r.Bool()
	return err
}

// MessageC2S is a chat line.
type MessageC2S struct {
	Text string
}

func (*MessageC2S) serverbound() {}

func (p *MessageC2S) Write(w *wire.Writer) error { return w.String(p.Text) }

func (p *MessageC2S) Read(r *wire.Reader) (err error) {
	p.Text, err = r.String()
	return err
}

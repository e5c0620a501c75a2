// Package wire implements the binary encoding shared by every packet:
// big-endian integers, u16 length-prefixed UTF-8 strings and recursively
// tagged entries.
package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"mapsync/internal/entry"
	"mapsync/internal/errors"
)

// MaxStringLength is the largest UTF-8 byte count a string may encode to.
const MaxStringLength = 65535

// MaxEntryDepth bounds the length of an entry's parent chain, the entry
// itself included. Decoding stops at this depth instead of recursing on
// whatever the peer sends.
const MaxEntryDepth = 255

// Writer accumulates an encoded body in memory. Callers flush Bytes to the
// network only once the whole packet has encoded.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }
func (w *Writer) Len() int { return w.buf.Len() }

func (w *Writer) Uint8(v uint8) { w.buf.WriteByte(v) }

func (w *Writer) Bool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) Uint16(v uint16) {
	w.buf.Write(binary.BigEndian.AppendUint16(nil, v))
}

func (w *Writer) Uint32(v uint32) {
	w.buf.Write(binary.BigEndian.AppendUint32(nil, v))
}

// String writes s with a u16 byte-count prefix. Strings over
// MaxStringLength bytes fail without writing anything.
func (w *Writer) String(s string) error {
	if len(s) > MaxStringLength {
		return errors.Newf(errors.StringTooLong,
			"string too long, was %d bytes, max %d allowed", len(s), MaxStringLength)
	}
	w.Uint16(uint16(len(s)))
	w.buf.WriteString(s)
	return nil
}

// OptionalString writes a presence flag followed by s when non-empty.
func (w *Writer) OptionalString(s string) error {
	if s == "" {
		w.Bool(false)
		return nil
	}
	mark := w.buf.Len()
	w.Bool(true)
	if err := w.String(s); err != nil {
		w.buf.Truncate(mark)
		return err
	}
	return nil
}

// Entry writes e including its full parent chain.
func (w *Writer) Entry(e entry.Entry) error {
	return w.EntryWithParent(e, true)
}

// EntryWithParent writes e, omitting the parent chain when includeParent
// is false and the recipient knows the parent from context. On error the
// writer is left as it was before the call.
func (w *Writer) EntryWithParent(e entry.Entry, includeParent bool) error {
	if depth := chainLength(e); depth > MaxEntryDepth {
		return errors.Newf(errors.MalformedPacket, "entry nesting of %d exceeds %d", depth, MaxEntryDepth)
	}
	mark := w.buf.Len()
	if err := w.entry(e, includeParent); err != nil {
		w.buf.Truncate(mark)
		return err
	}
	return nil
}

func (w *Writer) entry(e entry.Entry, includeParent bool) error {
	w.Uint8(uint8(e.Kind()))

	if includeParent {
		parent := e.Parent()
		w.Bool(parent != nil)
		if parent != nil {
			if err := w.entry(parent, true); err != nil {
				return err
			}
		}
	}

	if err := w.String(e.Name()); err != nil {
		return err
	}
	if err := w.OptionalString(e.Docs()); err != nil {
		return err
	}

	switch v := e.(type) {
	case *entry.ClassEntry:
	case *entry.FieldEntry:
		return w.String(v.Desc())
	case *entry.MethodEntry:
		return w.String(v.Desc())
	case *entry.LocalVariableEntry:
		w.Uint16(v.Index())
		w.Bool(v.IsParameter())
	}
	return nil
}

// Reader decodes values from a stream, reading exactly the bytes each
// value occupies.
type Reader struct {
	r       io.Reader
	scratch [4]byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) read(n int) ([]byte, error) {
	b := r.scratch[:n]
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.Newf(errors.MalformedPacket, "invalid boolean byte %d", v)
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// String reads a u16 length-prefixed UTF-8 string.
func (r *Reader) String() (string, error) {
	n, err := r.Uint16()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.Newf(errors.MalformedPacket, "string is not valid UTF-8")
	}
	return string(b), nil
}

// OptionalString reads a presence flag and, if set, a string.
func (r *Reader) OptionalString() (string, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return "", err
	}
	return r.String()
}

// Entry reads an entry encoded with its parent chain.
func (r *Reader) Entry() (entry.Entry, error) {
	return r.entry(nil, true, 1)
}

// EntryWithParent reads an entry whose parent chain was omitted; parent
// supplies it from context and must satisfy the kind constraint.
func (r *Reader) EntryWithParent(parent entry.Entry) (entry.Entry, error) {
	depth := 1
	if parent != nil {
		depth += chainLength(parent)
	}
	if depth > MaxEntryDepth {
		return nil, errors.Newf(errors.MalformedPacket, "entry nesting exceeds %d", MaxEntryDepth)
	}
	return r.entry(parent, false, depth)
}

// entry decodes one entry at depth, counted from the entry being read
// towards its outermost ancestor.
func (r *Reader) entry(parent entry.Entry, includeParent bool, depth int) (entry.Entry, error) {
	tag, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	kind := entry.Kind(tag)
	if !kind.Valid() {
		return nil, errors.Newf(errors.MalformedPacket, "received unknown entry type %d", tag)
	}

	if includeParent {
		hasParent, err := r.Bool()
		if err != nil {
			return nil, err
		}
		if hasParent {
			if depth >= MaxEntryDepth {
				return nil, errors.Newf(errors.MalformedPacket, "entry nesting exceeds %d", MaxEntryDepth)
			}
			if parent, err = r.entry(nil, true, depth+1); err != nil {
				return nil, err
			}
		}
	}

	parts := entry.Parts{Kind: kind, Parent: parent}
	if parts.Name, err = r.String(); err != nil {
		return nil, err
	}
	if parts.Docs, err = r.OptionalString(); err != nil {
		return nil, err
	}

	// Reject before consuming the kind-specific tail.
	if err := entry.CheckParent(kind, parent); err != nil {
		return nil, err
	}

	switch kind {
	case entry.KindField, entry.KindMethod:
		if parts.Desc, err = r.String(); err != nil {
			return nil, err
		}
	case entry.KindLocalVariable:
		if parts.Index, err = r.Uint16(); err != nil {
			return nil, err
		}
		if parts.Parameter, err = r.Bool(); err != nil {
			return nil, err
		}
	}
	return entry.Build(parts)
}

func chainLength(e entry.Entry) int {
	n := 0
	for ; e != nil; e = e.Parent() {
		n++
	}
	return n
}

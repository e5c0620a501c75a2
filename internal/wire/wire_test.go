package wire

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"

	"mapsync/internal/entry"
	"mapsync/internal/errors"
)

func sampleEntries() []entry.Entry {
	c := entry.NewClass("a.b.C")
	inner := entry.NewInnerClass(c, "Inner")
	m := entry.NewMethod(inner, "foo", "(ILjava/lang/String;)V")
	return []entry.Entry{
		c,
		inner,
		entry.NewField(c, "d", "I"),
		m,
		entry.NewLocalVariable(m, 0, "x", true),
		entry.NewLocalVariable(m, 65535, "tmp", false),
		entry.NewClass("ünïcødé/Klass"),
	}
}

func TestEntryRoundTrip(t *testing.T) {
	for _, base := range sampleEntries() {
		for _, docs := range []string{"", "Some documentation.", "multi\nline ✓"} {
			e := base.WithDocs(docs)
			t.Run(e.String()+"/"+docs, func(t *testing.T) {
				w := NewWriter()
				if err := w.Entry(e); err != nil {
					t.Fatalf("Entry() error = %v", err)
				}

				r := bytes.NewReader(w.Bytes())
				got, err := NewReader(r).Entry()
				if err != nil {
					t.Fatalf("decode error = %v", err)
				}
				if !reflect.DeepEqual(got, e) {
					t.Errorf("decode(encode(e)) = %#v, want %#v", got, e)
				}
				if r.Len() != 0 {
					t.Errorf("%d trailing bytes left unread", r.Len())
				}
			})
		}
	}
}

func TestEntryParentDocsRoundTrip(t *testing.T) {
	c := entry.NewClass("a.b.C").WithDocs("outer docs").(*entry.ClassEntry)
	f := entry.NewField(c, "d", "I").WithDocs("field docs")

	w := NewWriter()
	if err := w.Entry(f); err != nil {
		t.Fatalf("Entry() error = %v", err)
	}
	got, err := NewReader(bytes.NewReader(w.Bytes())).Entry()
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if got.Parent().Docs() != "outer docs" {
		t.Errorf("parent Docs() = %q, want %q", got.Parent().Docs(), "outer docs")
	}
}

func TestEntryWithoutParent(t *testing.T) {
	c := entry.NewClass("a.b.C")
	m := entry.NewMethod(c, "foo", "()V")
	local := entry.NewLocalVariable(m, 2, "i", false)

	w := NewWriter()
	if err := w.EntryWithParent(local, false); err != nil {
		t.Fatalf("EntryWithParent() error = %v", err)
	}

	full := NewWriter()
	_ = full.Entry(local)
	if w.Len() >= full.Len() {
		t.Errorf("omitting the parent should be smaller: %d >= %d", w.Len(), full.Len())
	}

	got, err := NewReader(bytes.NewReader(w.Bytes())).EntryWithParent(m)
	if err != nil {
		t.Fatalf("EntryWithParent() decode error = %v", err)
	}
	if !reflect.DeepEqual(got, local) {
		t.Errorf("decoded %#v, want %#v", got, local)
	}

	// The context parent is still checked.
	_, err = NewReader(bytes.NewReader(w.Bytes())).EntryWithParent(c)
	if errors.CodeOf(err) != errors.ParentKindMismatch {
		t.Errorf("wrong context parent error = %v, want %v", err, errors.ParentKindMismatch)
	}
}

// encodeRaw writes an entry header by hand so parent-kind violations the
// constructors cannot express can be fed to the decoder.
func encodeRaw(t *testing.T, kind entry.Kind, parent entry.Entry, name string, tail func(w *Writer)) []byte {
	t.Helper()
	w := NewWriter()
	w.Uint8(uint8(kind))
	w.Bool(parent != nil)
	if parent != nil {
		if err := w.Entry(parent); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.String(name); err != nil {
		t.Fatal(err)
	}
	w.Bool(false)
	if tail != nil {
		tail(w)
	}
	return w.Bytes()
}

func TestParentKindInvariant(t *testing.T) {
	c := entry.NewClass("a.b.C")
	f := entry.NewField(c, "d", "I")
	m := entry.NewMethod(c, "foo", "()V")
	local := entry.NewLocalVariable(m, 0, "x", false)
	desc := func(w *Writer) { _ = w.String("I") }
	slot := func(w *Writer) { w.Uint16(0); w.Bool(false) }

	tests := []struct {
		name string
		data []byte
	}{
		{"field without parent", encodeRaw(t, entry.KindField, nil, "d", desc)},
		{"field under method", encodeRaw(t, entry.KindField, m, "d", desc)},
		{"field under field", encodeRaw(t, entry.KindField, f, "d", desc)},
		{"method without parent", encodeRaw(t, entry.KindMethod, nil, "foo", desc)},
		{"method under local", encodeRaw(t, entry.KindMethod, local, "foo", desc)},
		{"local without parent", encodeRaw(t, entry.KindLocalVariable, nil, "x", slot)},
		{"local under class", encodeRaw(t, entry.KindLocalVariable, c, "x", slot)},
		{"local under field", encodeRaw(t, entry.KindLocalVariable, f, "x", slot)},
		{"class under method", encodeRaw(t, entry.KindClass, m, "Inner", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data)).Entry()
			if err == nil {
				t.Fatal("decode succeeded, want parent kind error")
			}
			if !errors.IsProtocol(err) {
				t.Errorf("error %v is not a protocol error", err)
			}
			if errors.CodeOf(err) != errors.ParentKindMismatch {
				t.Errorf("CodeOf() = %v, want %v", errors.CodeOf(err), errors.ParentKindMismatch)
			}
		})
	}
}

func TestUnknownEntryKind(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{9, 0, 0, 0, 0})).Entry()
	if errors.CodeOf(err) != errors.MalformedPacket {
		t.Errorf("CodeOf() = %v, want %v", errors.CodeOf(err), errors.MalformedPacket)
	}
}

func TestStringBound(t *testing.T) {
	w := NewWriter()
	if err := w.String(strings.Repeat("x", MaxStringLength)); err != nil {
		t.Fatalf("max length string error = %v", err)
	}
	if w.Len() != 2+MaxStringLength {
		t.Errorf("Len() = %d, want %d", w.Len(), 2+MaxStringLength)
	}

	w = NewWriter()
	w.Uint8(7)
	// 21846 three-byte runes is 65538 bytes.
	err := w.String(strings.Repeat("€", 21846))
	if errors.CodeOf(err) != errors.StringTooLong {
		t.Errorf("String() error = %v, want %v", err, errors.StringTooLong)
	}
	if w.Len() != 1 {
		t.Errorf("oversize string left a partial write: Len() = %d, want 1", w.Len())
	}
}

func TestEntryOversizeLeavesNoPartialWrite(t *testing.T) {
	c := entry.NewClass("a.b.C")
	f := entry.NewField(c, "d", strings.Repeat("L", MaxStringLength+1))

	w := NewWriter()
	w.Uint16(42)
	err := w.Entry(f)
	if errors.CodeOf(err) != errors.StringTooLong {
		t.Fatalf("Entry() error = %v, want %v", err, errors.StringTooLong)
	}
	if w.Len() != 2 {
		t.Errorf("Len() = %d, want 2", w.Len())
	}

	w = NewWriter()
	err = w.OptionalString(strings.Repeat("d", MaxStringLength+1))
	if err == nil || w.Len() != 0 {
		t.Errorf("OptionalString() err = %v, Len() = %d, want error and 0", err, w.Len())
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	data := []byte{0, 2, 0xff, 0xfe}
	_, err := NewReader(bytes.NewReader(data)).String()
	if errors.CodeOf(err) != errors.MalformedPacket {
		t.Errorf("String() error = %v, want %v", err, errors.MalformedPacket)
	}
}

func TestTruncatedInput(t *testing.T) {
	w := NewWriter()
	_ = w.Entry(entry.NewMethod(entry.NewClass("a.b.C"), "foo", "()V"))
	data := w.Bytes()

	for n := 0; n < len(data); n++ {
		_, err := NewReader(bytes.NewReader(data[:n])).Entry()
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			t.Errorf("decode of %d/%d bytes error = %v, want EOF", n, len(data), err)
		}
	}
}

func TestIntegers(t *testing.T) {
	w := NewWriter()
	w.Uint8(0xAB)
	w.Uint16(0xBEEF)
	w.Uint32(0xDEADBEEF)
	w.Bool(true)

	want := []byte{0xAB, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF, 1}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("Bytes() = % x, want % x", w.Bytes(), want)
	}

	r := NewReader(bytes.NewReader(want))
	u8, _ := r.Uint8()
	u16, _ := r.Uint16()
	u32, _ := r.Uint32()
	b, _ := r.Bool()
	if u8 != 0xAB || u16 != 0xBEEF || u32 != 0xDEADBEEF || !b {
		t.Errorf("decoded %x %x %x %v", u8, u16, u32, b)
	}

	if _, err := NewReader(bytes.NewReader([]byte{2})).Bool(); errors.CodeOf(err) != errors.MalformedPacket {
		t.Errorf("Bool() on byte 2 error = %v, want %v", err, errors.MalformedPacket)
	}
}

// endlessNesting yields class tags that each claim a parent, forever.
type endlessNesting struct{ n int }

func (e *endlessNesting) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(e.n % 2)
		e.n++
	}
	return len(p), nil
}

// nestedClasses returns a class nested depth levels deep.
func nestedClasses(depth int) *entry.ClassEntry {
	var c *entry.ClassEntry
	for i := 0; i < depth; i++ {
		c = entry.NewInnerClass(c, "C")
	}
	return c
}

func TestEntryNestingBound(t *testing.T) {
	_, err := NewReader(&endlessNesting{}).Entry()
	if errors.CodeOf(err) != errors.MalformedPacket {
		t.Fatalf("Entry() on endless nesting error = %v, want %v", err, errors.MalformedPacket)
	}

	deepest := nestedClasses(MaxEntryDepth)
	w := NewWriter()
	if err := w.Entry(deepest); err != nil {
		t.Fatalf("Entry() at max depth error = %v", err)
	}
	got, err := NewReader(bytes.NewReader(w.Bytes())).Entry()
	if err != nil {
		t.Fatalf("decode at max depth error = %v", err)
	}
	if !entry.Equal(got, deepest) {
		t.Errorf("decoded %v, want %v", got, deepest)
	}

	tooDeep := entry.NewField(deepest, "f", "I")
	w = NewWriter()
	if err := w.Entry(tooDeep); errors.CodeOf(err) != errors.MalformedPacket {
		t.Errorf("Entry() past max depth error = %v, want %v", err, errors.MalformedPacket)
	}
	if w.Len() != 0 {
		t.Errorf("rejected entry left a partial write: Len() = %d", w.Len())
	}

	// Hand-encode one level past the bound: every class but the outermost
	// claims a parent, then each level carries its name and no docs.
	var raw bytes.Buffer
	for i := 0; i < MaxEntryDepth; i++ {
		raw.Write([]byte{byte(entry.KindClass), 1})
	}
	raw.Write([]byte{byte(entry.KindClass), 0})
	for i := 0; i <= MaxEntryDepth; i++ {
		raw.Write([]byte{0, 1, 'C', 0})
	}
	if _, err := NewReader(bytes.NewReader(raw.Bytes())).Entry(); errors.CodeOf(err) != errors.MalformedPacket {
		t.Errorf("decode past max depth error = %v, want %v", err, errors.MalformedPacket)
	}

	if _, err := NewReader(bytes.NewReader(nil)).EntryWithParent(deepest); errors.CodeOf(err) != errors.MalformedPacket {
		t.Errorf("EntryWithParent() below max depth error = %v, want %v", err, errors.MalformedPacket)
	}
}

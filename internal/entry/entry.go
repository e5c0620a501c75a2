// Package entry defines the identifiers stored in a mapping tree: classes,
// fields, methods and local variables, each optionally owned by a parent
// entry, and the mapping value attached to them.
package entry

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant of an Entry. The numeric values are the wire tags.
type Kind uint8

const (
	KindClass Kind = iota
	KindField
	KindMethod
	KindLocalVariable
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindField:
		return "field"
	case KindMethod:
		return "method"
	case KindLocalVariable:
		return "local"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Valid reports whether k is one of the four entry kinds.
func (k Kind) Valid() bool {
	return k <= KindLocalVariable
}

// Key is the structural identity of an entry. Two entries with the same
// key denote the same symbol regardless of their documentation.
type Key string

// Entry is a closed sum type over *ClassEntry, *FieldEntry, *MethodEntry
// and *LocalVariableEntry. Entries are immutable and safe to share.
type Entry interface {
	Kind() Kind
	Name() string
	Docs() string
	// Parent returns nil for a top-level class.
	Parent() Entry
	Key() Key
	WithDocs(docs string) Entry
	String() string

	isEntry()
}

// Equal reports whether a and b identify the same symbol.
func Equal(a, b Entry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

const keySep = "\x1f"

// keyEscaper keeps the separators out of key components so that distinct
// name and descriptor splits never produce the same key.
var keyEscaper = strings.NewReplacer(`\`, `\\`, ":", `\c`, keySep, `\s`)

func childKey(parent Key, k Kind, parts ...string) Key {
	var b strings.Builder
	if parent != "" {
		b.WriteString(string(parent))
		b.WriteString(keySep)
	}
	b.WriteByte("CFML"[k])
	for _, p := range parts {
		b.WriteByte(':')
		keyEscaper.WriteString(&b, p)
	}
	return Key(b.String())
}

// ClassEntry is a class, optionally nested in an outer class.
type ClassEntry struct {
	outer *ClassEntry
	name  string
	docs  string
}

// NewClass returns a top-level class entry.
func NewClass(name string) *ClassEntry {
	return &ClassEntry{name: name}
}

// NewInnerClass returns a class nested in outer. A nil outer yields a
// top-level class.
func NewInnerClass(outer *ClassEntry, name string) *ClassEntry {
	return &ClassEntry{outer: outer, name: name}
}

func (c *ClassEntry) Kind() Kind { return KindClass }
func (c *ClassEntry) Name() string { return c.name }
func (c *ClassEntry) Docs() string { return c.docs }
func (c *ClassEntry) Outer() *ClassEntry { return c.outer }
func (c *ClassEntry) IsInner() bool { return c.outer != nil }
func (c *ClassEntry) isEntry() {}
func (c *ClassEntry) WithDocs(d string) Entry {
	cp := *c
	cp.docs = d
	return &cp
}

func (c *ClassEntry) Parent() Entry {
	if c.outer == nil {
		return nil
	}
	return c.outer
}

func (c *ClassEntry) Key() Key {
	var parent Key
	if c.outer != nil {
		parent = c.outer.Key()
	}
	return childKey(parent, KindClass, c.name)
}

func (c *ClassEntry) String() string {
	if c.outer != nil {
		return c.outer.String() + "$" + c.name
	}
	return c.name
}

// FieldEntry is a field owned by a class.
type FieldEntry struct {
	owner *ClassEntry
	name  string
	desc  string
	docs  string
}

// NewField returns a field of owner with the given type descriptor.
func NewField(owner *ClassEntry, name, desc string) *FieldEntry {
	return &FieldEntry{owner: owner, name: name, desc: desc}
}

func (f *FieldEntry) Kind() Kind { return KindField }
func (f *FieldEntry) Name() string { return f.name }
func (f *FieldEntry) Docs() string { return f.docs }
func (f *FieldEntry) Desc() string { return f.desc }
func (f *FieldEntry) Owner() *ClassEntry { return f.owner }
func (f *FieldEntry) Parent() Entry { return f.owner }
func (f *FieldEntry) isEntry() {}
func (f *FieldEntry) WithDocs(d string) Entry {
	cp := *f
	cp.docs = d
	return &cp
}

func (f *FieldEntry) Key() Key {
	return childKey(f.owner.Key(), KindField, f.name, f.desc)
}

func (f *FieldEntry) String() string {
	return f.owner.String() + "." + f.name
}

// MethodEntry is a method owned by a class.
type MethodEntry struct {
	owner *ClassEntry
	name  string
	desc  string
	docs  string
}

// NewMethod returns a method of owner with the given method descriptor.
func NewMethod(owner *ClassEntry, name, desc string) *MethodEntry {
	return &MethodEntry{owner: owner, name: name, desc: desc}
}

func (m *MethodEntry) Kind() Kind { return KindMethod }
func (m *MethodEntry) Name() string { return m.name }
func (m *MethodEntry) Docs() string { return m.docs }
func (m *MethodEntry) Desc() string { return m.desc }
func (m *MethodEntry) Owner() *ClassEntry { return m.owner }
func (m *MethodEntry) Parent() Entry { return m.owner }
func (m *MethodEntry) isEntry() {}
func (m *MethodEntry) WithDocs(d string) Entry {
	cp := *m
	cp.docs = d
	return &cp
}

// IsConstructor reports whether m is an instance or static initializer.
func (m *MethodEntry) IsConstructor() bool {
	return m.name == "<init>" || m.name == "<clinit>"
}

func (m *MethodEntry) Key() Key {
	return childKey(m.owner.Key(), KindMethod, m.name, m.desc)
}

func (m *MethodEntry) String() string {
	return m.owner.String() + "." + m.name + m.desc
}

// LocalVariableEntry is a local variable or parameter of a method. Its
// identity is the owning method and slot index; the name is informative.
type LocalVariableEntry struct {
	method    *MethodEntry
	index     uint16
	name      string
	parameter bool
	docs      string
}

// NewLocalVariable returns the local in slot index of method.
func NewLocalVariable(method *MethodEntry, index uint16, name string, parameter bool) *LocalVariableEntry {
	return &LocalVariableEntry{method: method, index: index, name: name, parameter: parameter}
}

func (l *LocalVariableEntry) Kind() Kind { return KindLocalVariable }
func (l *LocalVariableEntry) Name() string { return l.name }
func (l *LocalVariableEntry) Docs() string { return l.docs }
func (l *LocalVariableEntry) Index() uint16 { return l.index }
func (l *LocalVariableEntry) IsParameter() bool { return l.parameter }
func (l *LocalVariableEntry) Method() *MethodEntry { return l.method }
func (l *LocalVariableEntry) Parent() Entry { return l.method }
func (l *LocalVariableEntry) isEntry() {}
func (l *LocalVariableEntry) WithDocs(d string) Entry {
	cp := *l
	cp.docs = d
	return &cp
}

func (l *LocalVariableEntry) Key() Key {
	return childKey(l.method.Key(), KindLocalVariable, strconv.Itoa(int(l.index)))
}

func (l *LocalVariableEntry) String() string {
	return fmt.Sprintf("%s#%d", l.method.String(), l.index)
}

// Ancestors returns the parent chain of e, outermost first, excluding e.
func Ancestors(e Entry) []Entry {
	var chain []Entry
	for p := e.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// TopLevelClass returns the outermost class containing e.
func TopLevelClass(e Entry) *ClassEntry {
	for {
		p := e.Parent()
		if p == nil {
			c, _ := e.(*ClassEntry)
			return c
		}
		e = p
	}
}

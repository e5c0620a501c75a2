package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"mapsync/internal/entry"
	"mapsync/internal/tree"
	"mapsync/internal/wire"
)

// View is the read access a policy needs to the current mappings.
type View interface {
	Get(e entry.Entry) (entry.Mapping, bool)
	// Siblings returns the entries sharing e's parent, e included if known.
	Siblings(e entry.Entry) []entry.Entry
}

type treeView struct {
	t *tree.EntryTree[entry.Mapping]
}

// TreeView exposes a mapping tree as a View.
func TreeView(t *tree.EntryTree[entry.Mapping]) View {
	return treeView{t: t}
}

func (v treeView) Get(e entry.Entry) (entry.Mapping, bool) { return v.t.Get(e) }

func (v treeView) Siblings(e entry.Entry) []entry.Entry {
	if p := e.Parent(); p != nil {
		return v.t.Children(p)
	}
	roots := v.t.Roots()
	out := make([]entry.Entry, len(roots))
	for i, n := range roots {
		out[i] = n.Entry()
	}
	return out
}

// Policy decides whether an edit may be applied.
type Policy interface {
	ValidateRename(v View, e entry.Entry, newName string) *Report
	ValidateDocs(e entry.Entry, docs string) *Report
}

// DefaultPolicy enforces Java naming rules and sibling uniqueness.
type DefaultPolicy struct{}

func (DefaultPolicy) ValidateRename(v View, e entry.Entry, newName string) *Report {
	r := NewReport()
	if newName == "" {
		r.Errorf(CodeEmptyName, "name of %s must not be empty", e)
		return r
	}
	if !utf8.ValidString(newName) || len(newName) > wire.MaxStringLength {
		r.Errorf(CodeInvalidText, "name of %s cannot be transmitted", e)
		return r
	}
	if m, ok := e.(*entry.MethodEntry); ok && m.IsConstructor() {
		r.Errorf(CodeConstructorRename, "%s is a constructor and cannot be renamed", e)
		return r
	}

	if c, ok := e.(*entry.ClassEntry); ok && !c.IsInner() {
		checkQualifiedName(r, newName)
	} else {
		checkIdentifier(r, newName)
	}
	if !r.CanProceed() {
		return r
	}

	checkSiblings(r, v, e, newName)
	return r
}

func (DefaultPolicy) ValidateDocs(e entry.Entry, docs string) *Report {
	r := NewReport()
	if !utf8.ValidString(docs) {
		r.Errorf(CodeInvalidText, "documentation of %s is not valid UTF-8", e)
	} else if len(docs) > wire.MaxStringLength {
		r.Errorf(CodeDocsTooLong, "documentation of %s is %d bytes, max %d allowed", e, len(docs), wire.MaxStringLength)
	}
	return r
}

// checkQualifiedName accepts package-qualified class names separated by
// '/' or '.'.
func checkQualifiedName(r *Report, name string) {
	for _, part := range strings.Split(normalizeClassName(name), "/") {
		if part == "" {
			r.Errorf(CodeInvalidIdentifier, "%q has an empty package segment", name)
			return
		}
		checkIdentifier(r, part)
	}
}

func checkIdentifier(r *Report, name string) {
	for i, c := range name {
		if i == 0 && !isIdentifierStart(c) {
			r.Errorf(CodeInvalidIdentifier, "%q cannot start with %q", name, c)
			return
		}
		if !isIdentifierPart(c) {
			r.Errorf(CodeInvalidIdentifier, "%q contains invalid character %q", name, c)
			return
		}
	}
	if IsReserved(name) {
		r.Errorf(CodeReservedKeyword, "%q is a reserved keyword", name)
	}
}

func isIdentifierStart(c rune) bool {
	return unicode.IsLetter(c) || c == '_' || c == '$'
}

func isIdentifierPart(c rune) bool {
	return isIdentifierStart(c) || unicode.IsDigit(c)
}

func normalizeClassName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// checkSiblings rejects a name already used by a sibling that would clash
// with e: same-kind siblings with the same target name, methods only when
// their descriptors also match.
func checkSiblings(r *Report, v View, e entry.Entry, newName string) {
	key := e.Key()
	want := newName
	if e.Kind() == entry.KindClass {
		want = normalizeClassName(newName)
	}
	for _, s := range v.Siblings(e) {
		if s.Key() == key || s.Kind() != e.Kind() {
			continue
		}
		m, _ := v.Get(s)
		name := entry.DisplayName(s, m)
		if e.Kind() == entry.KindClass {
			name = normalizeClassName(name)
		}
		if name != want {
			continue
		}
		if em, ok := e.(*entry.MethodEntry); ok && em.Desc() != s.(*entry.MethodEntry).Desc() {
			continue
		}
		r.Errorf(CodeDuplicateName, "name %q is already used by %s", newName, s)
		return
	}
}

var reserved = map[string]struct{}{}

func init() {
	for _, k := range strings.Fields(`abstract assert boolean break byte case catch char class const
		continue default do double else enum extends final finally float for goto if implements
		import instanceof int interface long native new package private protected public return
		short static strictfp super switch synchronized this throw throws transient try void
		volatile while true false null _`) {
		reserved[k] = struct{}{}
	}
}

// IsReserved reports whether name is a Java keyword or literal.
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

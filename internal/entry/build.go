package entry

import (
	"mapsync/internal/errors"
)

// Parts carries the decoded fields of an entry before its variant is
// known. Desc applies to fields and methods, Index and Parameter to locals.
type Parts struct {
	Kind      Kind
	Parent    Entry
	Name      string
	Docs      string
	Desc      string
	Index     uint16
	Parameter bool
}

// CheckParent verifies that parent is an acceptable parent for an entry
// of kind k: classes take an optional class, fields and methods require a
// class, locals require a method.
func CheckParent(k Kind, parent Entry) error {
	switch k {
	case KindClass:
		if parent != nil && parent.Kind() != KindClass {
			return errors.Newf(errors.ParentKindMismatch, "class requires class parent, got %s", parent.Kind())
		}
	case KindField, KindMethod:
		if parent == nil {
			return errors.Newf(errors.ParentKindMismatch, "%s requires class parent", k)
		}
		if parent.Kind() != KindClass {
			return errors.Newf(errors.ParentKindMismatch, "%s requires class parent, got %s", k, parent.Kind())
		}
	case KindLocalVariable:
		if parent == nil {
			return errors.Newf(errors.ParentKindMismatch, "local variable requires method parent")
		}
		if parent.Kind() != KindMethod {
			return errors.Newf(errors.ParentKindMismatch, "local variable requires method parent, got %s", parent.Kind())
		}
	default:
		return errors.Newf(errors.MalformedPacket, "unknown entry kind %d", uint8(k))
	}
	return nil
}

// Build assembles an entry from its parts, rejecting parent-kind
// violations instead of coercing them.
func Build(p Parts) (Entry, error) {
	if err := CheckParent(p.Kind, p.Parent); err != nil {
		return nil, err
	}
	switch p.Kind {
	case KindClass:
		var outer *ClassEntry
		if p.Parent != nil {
			outer = p.Parent.(*ClassEntry)
		}
		return &ClassEntry{outer: outer, name: p.Name, docs: p.Docs}, nil
	case KindField:
		return &FieldEntry{owner: p.Parent.(*ClassEntry), name: p.Name, desc: p.Desc, docs: p.Docs}, nil
	case KindMethod:
		return &MethodEntry{owner: p.Parent.(*ClassEntry), name: p.Name, desc: p.Desc, docs: p.Docs}, nil
	default:
		return &LocalVariableEntry{
			method:    p.Parent.(*MethodEntry),
			index:     p.Index,
			name:      p.Name,
			parameter: p.Parameter,
			docs:      p.Docs,
		}, nil
	}
}

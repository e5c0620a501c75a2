package main

import (
	"fmt"
	"strconv"
	"strings"

	"mapsync/internal/entry"
)

const entrySpecHelp = `Entry specs:
  class:a.b.C                    class (inner classes as a.b.C$D)
  field:a.b.C:d:I                field d of type I
  method:a.b.C:foo:(I)V          method foo with descriptor (I)V
  local:a.b.C:foo:(I)V:0[:param] local in slot 0, optionally a parameter`

// parseEntry decodes a command-line entry spec.
func parseEntry(spec string) (entry.Entry, error) {
	kind, rest, ok := strings.Cut(spec, ":")
	if !ok || rest == "" {
		return nil, fmt.Errorf("invalid entry %q: expected kind:...", spec)
	}
	parts := strings.Split(rest, ":")

	want := map[string][]int{
		"class":  {1},
		"field":  {3},
		"method": {3},
		"local":  {4, 5},
	}
	counts, known := want[kind]
	if !known {
		return nil, fmt.Errorf("invalid entry %q: unknown kind %q", spec, kind)
	}
	if !containsInt(counts, len(parts)) {
		return nil, fmt.Errorf("invalid entry %q: %s takes %s", spec, kind, arity(counts))
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid entry %q: empty component", spec)
		}
	}

	owner, err := parseClass(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid entry %q: %w", spec, err)
	}
	switch kind {
	case "class":
		return owner, nil
	case "field":
		return entry.NewField(owner, parts[1], parts[2]), nil
	case "method":
		return entry.NewMethod(owner, parts[1], parts[2]), nil
	}

	index, err := strconv.ParseUint(parts[3], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid entry %q: bad local index %q", spec, parts[3])
	}
	param := false
	if len(parts) == 5 {
		if parts[4] != "param" {
			return nil, fmt.Errorf("invalid entry %q: expected \"param\", got %q", spec, parts[4])
		}
		param = true
	}
	method := entry.NewMethod(owner, parts[1], parts[2])
	return entry.NewLocalVariable(method, uint16(index), "", param), nil
}

// parseClass splits a$b$c into nested class entries.
func parseClass(name string) (*entry.ClassEntry, error) {
	segments := strings.Split(name, "$")
	var c *entry.ClassEntry
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("empty class segment in %q", name)
		}
		c = entry.NewInnerClass(c, s)
	}
	return c, nil
}

// formatEntry renders e in the syntax parseEntry accepts.
func formatEntry(e entry.Entry) string {
	switch e := e.(type) {
	case *entry.ClassEntry:
		return "class:" + e.String()
	case *entry.FieldEntry:
		return "field:" + e.Owner().String() + ":" + e.Name() + ":" + e.Desc()
	case *entry.MethodEntry:
		return "method:" + e.Owner().String() + ":" + e.Name() + ":" + e.Desc()
	case *entry.LocalVariableEntry:
		m := e.Method()
		s := fmt.Sprintf("local:%s:%s:%s:%d", m.Owner().String(), m.Name(), m.Desc(), e.Index())
		if e.IsParameter() {
			s += ":param"
		}
		return s
	default:
		return e.String()
	}
}

func containsInt(xs []int, n int) bool {
	for _, x := range xs {
		if x == n {
			return true
		}
	}
	return false
}

func arity(counts []int) string {
	if len(counts) == 1 {
		return fmt.Sprintf("%d components", counts[0])
	}
	return fmt.Sprintf("%d or %d components", counts[0], counts[1])
}

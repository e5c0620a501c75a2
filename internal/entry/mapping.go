package entry

import "strings"

// AccessModifier overrides the visibility of a mapped symbol.
type AccessModifier uint8

const (
	AccessUnchanged AccessModifier = iota
	AccessPublic
	AccessProtected
	AccessPrivate
)

func (a AccessModifier) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessProtected:
		return "protected"
	case AccessPrivate:
		return "private"
	default:
		return "unchanged"
	}
}

// Valid reports whether a is a known modifier.
func (a AccessModifier) Valid() bool {
	return a <= AccessPrivate
}

// ParseAccessModifier is the inverse of AccessModifier.String.
func ParseAccessModifier(s string) (AccessModifier, bool) {
	switch strings.ToLower(s) {
	case "", "unchanged":
		return AccessUnchanged, true
	case "public":
		return AccessPublic, true
	case "protected":
		return AccessProtected, true
	case "private":
		return AccessPrivate, true
	}
	return AccessUnchanged, false
}

// Mapping is the value attached to an entry in a mapping tree. An empty
// TargetName means the entry is unmapped; empty Docs means no
// documentation. Mappings are values: the With methods return copies.
type Mapping struct {
	TargetName string
	Access     AccessModifier
	Docs       string
}

// NewMapping returns a mapping renaming an entry to name.
func NewMapping(name string) Mapping {
	return Mapping{TargetName: name}
}

func (m Mapping) WithName(name string) Mapping {
	m.TargetName = name
	return m
}

// WithDocs replaces the documentation; blank text clears it.
func (m Mapping) WithDocs(docs string) Mapping {
	m.Docs = NormalizeDocs(docs)
	return m
}

func (m Mapping) WithAccess(a AccessModifier) Mapping {
	m.Access = a
	return m
}

// IsEmpty reports whether m carries neither a name, an access change nor
// documentation.
func (m Mapping) IsEmpty() bool {
	return m.TargetName == "" && m.Access == AccessUnchanged && m.Docs == ""
}

// NormalizeDocs maps blank documentation to "no documentation".
func NormalizeDocs(docs string) string {
	if strings.TrimSpace(docs) == "" {
		return ""
	}
	return docs
}

// DisplayName returns the mapped name of e, or its own name when unmapped.
func DisplayName(e Entry, m Mapping) string {
	if m.TargetName != "" {
		return m.TargetName
	}
	return e.Name()
}

// WithDeobfuscated marks e as deobfuscated by mapping it to its own name.
// Unmarking clears the name and keeps access and docs.
func WithDeobfuscated(e Entry, m Mapping, deobfuscated bool) Mapping {
	if deobfuscated {
		return m.WithName(e.Name())
	}
	return m.WithName("")
}

// IsDeobfuscated reports whether m maps e to its own name.
func IsDeobfuscated(e Entry, m Mapping) bool {
	return m.TargetName != "" && m.TargetName == e.Name()
}

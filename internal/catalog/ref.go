package catalog

import (
	"fmt"
	"strings"
)

// Ref identifies a resource in the catalog by type name and title, e.g.
// file[/etc/motd] or class[apache]. Type names are normalized to lower case;
// titles are case sensitive.
type Ref struct {
	Type  string
	Title string
}

// NewRef builds a normalized Ref.
func NewRef(typeName, title string) Ref {
	return Ref{Type: NormalizeName(typeName), Title: title}
}

// ParseRef parses a textual resource reference of the form Type[title].
func ParseRef(s string) (Ref, error) {
	open := strings.IndexByte(s, '[')
	if open <= 0 || !strings.HasSuffix(s, "]") {
		return Ref{}, fmt.Errorf("expected a resource reference of the form Type[title] but found %q", s)
	}
	typeName := NormalizeName(s[:open])
	title := s[open+1 : len(s)-1]
	if typeName == "" || title == "" {
		return Ref{}, fmt.Errorf("expected a resource reference of the form Type[title] but found %q", s)
	}
	return Ref{Type: typeName, Title: title}, nil
}

// String renders the reference in Type[title] form.
func (r Ref) String() string {
	return r.Type + "[" + r.Title + "]"
}

// IsClass reports whether the reference names a class resource.
func (r Ref) IsClass() bool {
	return r.Type == "class"
}

// NormalizeName lower-cases a type, class, or defined-type name and strips a
// leading global qualifier.
func NormalizeName(name string) string {
	name = strings.TrimPrefix(name, "::")
	return strings.ToLower(name)
}

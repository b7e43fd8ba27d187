// Package manifest defines the format-agnostic model of manifest
// definitions and the scanner that extracts them from parsed HCL files.
// Bodies and expressions are carried lazily; the evaluator decides when (and
// whether) to evaluate them.
package manifest

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Class is a named, parameterized template declared at most once per
// compilation.
type Class struct {
	Name      string
	Body      hcl.Body
	DeclRange hcl.Range
}

// DefinedType is a named template that may be instantiated many times.
type DefinedType struct {
	Name      string
	Body      hcl.Body
	DeclRange hcl.Range
}

// TypeAlias is a named shorthand for a type expression, resolved lazily.
type TypeAlias struct {
	Name      string
	Expr      hcl.Expression
	DeclRange hcl.Range
}

// Hostname is one name a node definition applies to: an exact name, a
// regular expression written /like-this/, or the literal "default".
type Hostname struct {
	Raw       string
	Regex     bool
	Default   bool
	DeclRange hcl.Range
}

// Pattern returns the regex pattern without its surrounding slashes.
func (h Hostname) Pattern() string {
	return strings.TrimSuffix(strings.TrimPrefix(h.Raw, "/"), "/")
}

func (h Hostname) String() string { return h.Raw }

// NodeDefinition matches one or more hostnames to a manifest body.
type NodeDefinition struct {
	Hostnames []Hostname
	Body      hcl.Body
	DeclRange hcl.Range
}

// ParseHostname classifies a raw node label.
func ParseHostname(raw string, rng hcl.Range) Hostname {
	h := Hostname{Raw: raw, DeclRange: rng}
	if raw == "default" {
		h.Default = true
	} else if len(raw) >= 2 && strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") {
		h.Regex = true
	}
	return h
}

package eval

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/manifestc/internal/catalog"
)

// AssignmentSite records where a variable was assigned.
type AssignmentSite struct {
	Path string
	Line int
}

func siteOf(rng hcl.Range) AssignmentSite {
	return AssignmentSite{Path: rng.Filename, Line: rng.Start.Line}
}

type binding struct {
	value cty.Value
	site  AssignmentSite
}

// Scope is a hierarchical variable container. The top scope has no parent
// and no associated resource; every other scope has exactly one parent.
// Scopes are shared: closures and child scopes may outlive the construct
// that created them, so a Scope is never mutated after it becomes a parent
// except through Set, which only adds bindings.
type Scope struct {
	parent   *Scope
	resource *catalog.Resource
	bindings map[string]binding
	defaults map[string][]*catalog.Attribute
}

// NewTopScope creates the top scope, pre-bound with the node's facts.
func NewTopScope(facts map[string]cty.Value) *Scope {
	s := &Scope{
		bindings: make(map[string]binding, len(facts)),
		defaults: make(map[string][]*catalog.Attribute),
	}
	for name, value := range facts {
		s.bindings[name] = binding{value: value, site: AssignmentSite{Path: "<facts>"}}
	}
	return s
}

// NewScope creates a child scope. The resource is the one whose body is
// being evaluated in this scope, or nil for node scopes and closures.
func NewScope(parent *Scope, resource *catalog.Resource) *Scope {
	if parent == nil {
		panic("eval: non-top scopes require a parent")
	}
	return &Scope{
		parent:   parent,
		resource: resource,
		bindings: make(map[string]binding),
		defaults: make(map[string][]*catalog.Attribute),
	}
}

// Parent returns the parent scope, or nil for the top scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Resource returns the resource associated with the scope, or nil.
func (s *Scope) Resource() *catalog.Resource { return s.resource }

// Lookup walks the parent chain and returns the nearest binding.
func (s *Scope) Lookup(name string) (cty.Value, bool) {
	for scope := s; scope != nil; scope = scope.parent {
		if b, ok := scope.bindings[name]; ok {
			return b.value, true
		}
	}
	return cty.NilVal, false
}

// Set binds a variable in this scope. If the name is already bound here, the
// binding is left untouched and the prior assignment site is returned;
// shadowing a binding from an outer scope is allowed and returns nil.
func (s *Scope) Set(name string, value cty.Value, site AssignmentSite) *AssignmentSite {
	if existing, ok := s.bindings[name]; ok {
		prior := existing.site
		return &prior
	}
	s.bindings[name] = binding{value: value, site: site}
	return nil
}

// Qualify returns the name qualified by the scope's class title, or the bare
// name for the top and node scopes.
func (s *Scope) Qualify(name string) string {
	if s.resource == nil {
		return name
	}
	return s.resource.Ref().Title + "::" + name
}

// Names returns the variable names bound directly in this scope.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.bindings))
	for name := range s.bindings {
		names = append(names, name)
	}
	return names
}

// AddDefaults records default attribute assignments for the given resource
// type in this scope. A default for an attribute already defaulted for the
// same type in this scope is rejected by returning the prior attribute.
func (s *Scope) AddDefaults(typeName string, attrs []*catalog.Attribute) *catalog.Attribute {
	typeName = catalog.NormalizeName(typeName)
	existing := s.defaults[typeName]
	for _, attr := range attrs {
		for _, prior := range existing {
			if prior.Name == attr.Name {
				return prior
			}
		}
		existing = append(existing, attr)
	}
	s.defaults[typeName] = existing
	return nil
}

// FindDefault searches this scope and its parents for a default attribute of
// the given resource type and name. The first match wins.
func (s *Scope) FindDefault(typeName, attrName string) *catalog.Attribute {
	typeName = catalog.NormalizeName(typeName)
	for scope := s; scope != nil; scope = scope.parent {
		for _, attr := range scope.defaults[typeName] {
			if attr.Name == attrName {
				return attr
			}
		}
	}
	return nil
}

// EachDefault visits the default attributes for the given resource type from
// this scope outward. The seen set skips attributes already assigned more
// specifically and is updated as defaults are visited.
func (s *Scope) EachDefault(typeName string, seen map[string]bool, fn func(attr *catalog.Attribute) bool) {
	typeName = catalog.NormalizeName(typeName)
	for scope := s; scope != nil; scope = scope.parent {
		for _, attr := range scope.defaults[typeName] {
			if seen[attr.Name] {
				continue
			}
			seen[attr.Name] = true
			if !fn(attr) {
				return
			}
		}
	}
}

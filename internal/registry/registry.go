// Package registry provides the per-compilation-unit symbol tables: classes,
// defined types, type aliases, resource-type descriptors, functions, chain
// operators, and node definitions. Name collisions are detected at
// registration, not at use. The registry is not safe for concurrent
// mutation; the surrounding environment serializes access when a registry is
// shared across node compilations.
package registry

import (
	"fmt"

	"github.com/vk/manifestc/internal/catalog"
	"github.com/vk/manifestc/internal/manifest"
)

// Registry holds all the registered definitions and descriptors for one
// compilation unit.
type Registry struct {
	classes       map[string]*manifest.Class
	definedTypes  map[string]*manifest.DefinedType
	typeAliases   map[string]*manifest.TypeAlias
	resourceTypes map[string]*ResourceType
	functions     map[string]*FunctionDescriptor
	operators     map[string]*OperatorDescriptor

	nodes       []*manifest.NodeDefinition
	namedNodes  map[string]int
	regexNodes  []regexNode
	defaultNode *int

	importer Importer
	// typeMisses remembers import lookups that found nothing, so the
	// extension host is asked about each name at most once.
	typeMisses     map[string]bool
	functionMisses map[string]bool
}

// New creates an empty registry. The importer may be nil, which disables
// on-demand import from the extension host.
func New(importer Importer) *Registry {
	return &Registry{
		classes:        make(map[string]*manifest.Class),
		definedTypes:   make(map[string]*manifest.DefinedType),
		typeAliases:    make(map[string]*manifest.TypeAlias),
		resourceTypes:  make(map[string]*ResourceType),
		functions:      make(map[string]*FunctionDescriptor),
		operators:      make(map[string]*OperatorDescriptor),
		namedNodes:     make(map[string]int),
		importer:       importer,
		typeMisses:     make(map[string]bool),
		functionMisses: make(map[string]bool),
	}
}

// RegisterClass registers a class definition. A name may be registered as at
// most one of class or defined type.
func (r *Registry) RegisterClass(c *manifest.Class) error {
	name := catalog.NormalizeName(c.Name)
	if existing, ok := r.classes[name]; ok {
		return fmt.Errorf("%s: class '%s' was previously defined at %s", c.DeclRange, name, existing.DeclRange)
	}
	if existing, ok := r.definedTypes[name]; ok {
		return fmt.Errorf("%s: '%s' was previously defined as a defined type at %s", c.DeclRange, name, existing.DeclRange)
	}
	r.classes[name] = c
	return nil
}

// FindClass returns the class with the given name, or nil.
func (r *Registry) FindClass(name string) *manifest.Class {
	return r.classes[catalog.NormalizeName(name)]
}

// RegisterDefinedType registers a defined type.
func (r *Registry) RegisterDefinedType(d *manifest.DefinedType) error {
	name := catalog.NormalizeName(d.Name)
	if existing, ok := r.definedTypes[name]; ok {
		return fmt.Errorf("%s: defined type '%s' was previously defined at %s", d.DeclRange, name, existing.DeclRange)
	}
	if existing, ok := r.classes[name]; ok {
		return fmt.Errorf("%s: '%s' was previously defined as a class at %s", d.DeclRange, name, existing.DeclRange)
	}
	r.definedTypes[name] = d
	return nil
}

// FindDefinedType returns the defined type with the given name, or nil.
func (r *Registry) FindDefinedType(name string) *manifest.DefinedType {
	return r.definedTypes[catalog.NormalizeName(name)]
}

// RegisterTypeAlias registers a type alias.
func (r *Registry) RegisterTypeAlias(a *manifest.TypeAlias) error {
	name := catalog.NormalizeName(a.Name)
	if existing, ok := r.typeAliases[name]; ok {
		return fmt.Errorf("%s: type alias '%s' was previously defined at %s", a.DeclRange, a.Name, existing.DeclRange)
	}
	r.typeAliases[name] = a
	return nil
}

// FindTypeAlias returns the type alias with the given name, or nil.
func (r *Registry) FindTypeAlias(name string) *manifest.TypeAlias {
	return r.typeAliases[catalog.NormalizeName(name)]
}

// RegisterResourceType registers a resource-type descriptor. Registering the
// same name twice is a programmer error; manifest-sourced conflicts never
// reach here.
func (r *Registry) RegisterResourceType(t *ResourceType) {
	name := catalog.NormalizeName(t.Name)
	if _, ok := r.resourceTypes[name]; ok {
		panic(fmt.Sprintf("resource type '%s' already registered", name))
	}
	r.resourceTypes[name] = t
}

// RegisterFunction registers a function descriptor.
func (r *Registry) RegisterFunction(f *FunctionDescriptor) {
	if _, ok := r.functions[f.Name]; ok {
		panic(fmt.Sprintf("function '%s' already registered", f.Name))
	}
	r.functions[f.Name] = f
}

// RegisterOperator registers a chain operator descriptor.
func (r *Registry) RegisterOperator(o *OperatorDescriptor) {
	if _, ok := r.operators[o.Symbol]; ok {
		panic(fmt.Sprintf("operator '%s' already registered", o.Symbol))
	}
	r.operators[o.Symbol] = o
}

// FindOperator returns the operator descriptor for the given symbol, or nil.
func (r *Registry) FindOperator(symbol string) *OperatorDescriptor {
	return r.operators[symbol]
}

// FunctionNames returns the names of all locally registered functions.
func (r *Registry) FunctionNames() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	return names
}

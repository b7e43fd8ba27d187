package registry

import (
	"context"
	"fmt"

	"github.com/vk/manifestc/internal/catalog"
	"github.com/vk/manifestc/internal/ctxlog"
)

// ResourceTypeParameter describes one parameter of a resource type.
type ResourceTypeParameter struct {
	Name    string
	Namevar bool
}

// ResourceType describes a registered resource type (file, service, ...),
// either built in or imported from the extension host. Not to be confused
// with a defined type, which is manifest code.
type ResourceType struct {
	Name       string
	File       string
	Line       int
	Parameters []ResourceTypeParameter
}

// FunctionDescriptor pairs a function name with its implementation. Fn is
// stored as `any` and asserted by the dispatcher to the evaluator's call
// signature; imported functions carry a closure that proxies to the host.
type FunctionDescriptor struct {
	Name string
	Fn   any
}

// OperatorDescriptor describes a chain operator. Reversed operators swap
// their operands; Kind is the relationship the operator establishes.
type OperatorDescriptor struct {
	Symbol   string
	Kind     catalog.RelationshipKind
	Reversed bool
}

// Importer discovers symbols on demand from the out-of-process extension
// host. A nil result with a nil error means the host does not know the name.
type Importer interface {
	ImportType(ctx context.Context, environment, name string) (*ResourceType, error)
	ImportFunction(ctx context.Context, environment, name string) (*FunctionDescriptor, error)
}

// FindResourceType returns the resource type with the given name, importing
// it from the extension host on first use if it is not registered locally.
func (r *Registry) FindResourceType(ctx context.Context, environment, name string) (*ResourceType, error) {
	name = catalog.NormalizeName(name)
	if t, ok := r.resourceTypes[name]; ok {
		return t, nil
	}
	if r.importer == nil || r.typeMisses[name] {
		return nil, nil
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Importing resource type from extension host.", "name", name)

	t, err := r.importer.ImportType(ctx, environment, name)
	if err != nil {
		return nil, fmt.Errorf("failed to import resource type '%s': %w", name, err)
	}
	if t == nil {
		r.typeMisses[name] = true
		return nil, nil
	}
	r.resourceTypes[name] = t
	return t, nil
}

// FindFunction returns the function descriptor with the given name,
// importing it from the extension host on first use if it is not registered
// locally.
func (r *Registry) FindFunction(ctx context.Context, environment, name string) (*FunctionDescriptor, error) {
	if f, ok := r.functions[name]; ok {
		return f, nil
	}
	if r.importer == nil || r.functionMisses[name] {
		return nil, nil
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Importing function from extension host.", "name", name)

	f, err := r.importer.ImportFunction(ctx, environment, name)
	if err != nil {
		return nil, fmt.Errorf("failed to import function '%s': %w", name, err)
	}
	if f == nil {
		r.functionMisses[name] = true
		return nil, nil
	}
	r.functions[name] = f
	return f, nil
}

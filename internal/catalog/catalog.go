// Package catalog holds the per-node catalog: the set of declared resources
// and the relationships between them, and its projection into a dependency
// graph once compilation finishes.
package catalog

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"

	"github.com/vk/manifestc/internal/ctxlog"
	"github.com/vk/manifestc/internal/dag"
)

// RelationshipKind is the kind of edge between two resources.
type RelationshipKind string

const (
	// Contains means the target is logically owned by the source (stage ->
	// class, class -> declared resource).
	Contains RelationshipKind = "contains"
	// Before means the source is applied before the target.
	Before RelationshipKind = "before"
	// Notify is Before plus a refresh event on change.
	Notify RelationshipKind = "notify"
)

// Edge is one relationship in the catalog.
type Edge struct {
	Kind   RelationshipKind
	Source *Resource
	Target *Resource
}

// Catalog is the graph of resources for one node. It is single-writer: the
// compilation that owns it mutates it, and nothing reads it concurrently
// until finalization completes.
type Catalog struct {
	node      string
	resources map[Ref]*Resource
	order     []*Resource
	edges     []Edge
}

// New creates an empty catalog for the given node name.
func New(node string) *Catalog {
	return &Catalog{
		node:      node,
		resources: make(map[Ref]*Resource),
	}
}

// Node returns the name of the node the catalog is compiled for.
func (c *Catalog) Node() string { return c.node }

// AddOptions control how a resource is added to the catalog.
type AddOptions struct {
	Container *Resource
	DeclRange hcl.Range
	Virtual   bool
	Exported  bool
}

// Add declares a resource. It returns nil if a resource with the same
// reference already exists; the caller decides whether that is an error.
func (c *Catalog) Add(ref Ref, opts AddOptions) *Resource {
	if _, ok := c.resources[ref]; ok {
		return nil
	}
	res := &Resource{
		ref:        ref,
		container:  opts.Container,
		declRange:  opts.DeclRange,
		virtual:    opts.Virtual,
		exported:   opts.Exported,
		attributes: make(map[string]*Attribute),
	}
	if err := res.validateContainer(); err != nil {
		// Containment is established by the evaluator walking scopes, which
		// cannot produce a loop; treat one as a programmer error.
		panic(err)
	}
	c.resources[ref] = res
	c.order = append(c.order, res)
	return res
}

// Find returns the resource with the given reference, or nil. Virtual
// resources are found; the caller checks Virtual where it matters.
func (c *Catalog) Find(ref Ref) *Resource {
	return c.resources[ref]
}

// Realize makes a virtual or exported resource concrete.
func (c *Catalog) Realize(res *Resource) {
	res.virtual = false
	res.exported = false
}

// Relate records a relationship edge. Duplicate edges are collapsed.
func (c *Catalog) Relate(kind RelationshipKind, source, target *Resource) {
	for _, e := range c.edges {
		if e.Kind == kind && e.Source == source && e.Target == target {
			return
		}
	}
	c.edges = append(c.edges, Edge{Kind: kind, Source: source, Target: target})
}

// Resources returns all resources in declaration order.
func (c *Catalog) Resources() []*Resource {
	return c.order
}

// OfType returns the resources of the given (normalized) type name in
// declaration order.
func (c *Catalog) OfType(typeName string) []*Resource {
	typeName = NormalizeName(typeName)
	var out []*Resource
	for _, res := range c.order {
		if res.ref.Type == typeName {
			out = append(out, res)
		}
	}
	return out
}

// Edges returns the recorded relationship edges.
func (c *Catalog) Edges() []Edge {
	return c.edges
}

// PopulateGraph projects the concrete resources and their relationships into
// a dependency graph and checks it for cycles. Virtual resources that were
// never realized are omitted.
func (c *Catalog) PopulateGraph(ctx context.Context) (*dag.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	graph := dag.New()
	for _, res := range c.order {
		if res.Virtual() {
			logger.Debug("Omitting unrealized resource from graph.", "resource", res.String())
			continue
		}
		graph.AddVertex(res.ref.String())
	}

	for _, edge := range c.edges {
		if edge.Source.Virtual() || edge.Target.Virtual() {
			continue
		}
		if err := graph.AddEdge(string(edge.Kind), edge.Source.ref.String(), edge.Target.ref.String()); err != nil {
			return nil, fmt.Errorf("failed to add %s edge: %w", edge.Kind, err)
		}
	}

	if err := graph.DetectCycles(); err != nil {
		return nil, err
	}

	logger.Debug("Catalog graph populated.", "vertices", graph.Len(), "edges", len(c.edges))
	return graph, nil
}

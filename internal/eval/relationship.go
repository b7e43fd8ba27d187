package eval

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/manifestc/internal/catalog"
)

// Relationship is a deferred ordering/notification edge request. Each
// endpoint value may denote a set of resources via reference strings and
// collections thereof; endpoints are resolved against the catalog only at
// drain time, so either side may name resources declared later.
type Relationship struct {
	Kind        catalog.RelationshipKind
	Source      cty.Value
	SourceRange hcl.Range
	Target      cty.Value
	TargetRange hcl.Range
}

// Evaluate resolves both endpoints and records the edges. A missing or
// still-virtual endpoint is fatal, as is a resource forming a relationship
// with itself.
func (r *Relationship) Evaluate(c *Context) error {
	targets, err := r.resolveEndpoint(c, r.Target, r.TargetRange)
	if err != nil {
		return err
	}
	sources, err := r.resolveEndpoint(c, r.Source, r.SourceRange)
	if err != nil {
		return err
	}

	for _, source := range sources {
		for _, target := range targets {
			if source == target {
				return c.errorf(&r.SourceRange, "resource %s cannot form a relationship with itself", source.Ref())
			}
			c.cat.Relate(r.Kind, source, target)
		}
	}
	return nil
}

func (r *Relationship) resolveEndpoint(c *Context, v cty.Value, rng hcl.Range) ([]*catalog.Resource, error) {
	refs, err := ExpandRefs(v)
	if err != nil {
		return nil, c.errorf(&rng, "%v", err)
	}

	resources := make([]*catalog.Resource, 0, len(refs))
	for _, ref := range refs {
		res := c.cat.Find(ref)
		if res == nil || res.Virtual() {
			return nil, c.errorf(&rng, "cannot create relationship: resource %s does not exist in the catalog", ref)
		}
		resources = append(resources, res)
	}
	return resources, nil
}

// ExpandRefs expands a value into resource references: a reference string
// ("Type[title]"), or a list, set, or tuple of such values.
func ExpandRefs(v cty.Value) ([]catalog.Ref, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		ref, err := catalog.ParseRef(v.AsString())
		if err != nil {
			return nil, err
		}
		return []catalog.Ref{ref}, nil

	case ty.IsTupleType(), ty.IsListType(), ty.IsSetType():
		var refs []catalog.Ref
		for _, elem := range v.AsValueSlice() {
			expanded, err := ExpandRefs(elem)
			if err != nil {
				return nil, err
			}
			refs = append(refs, expanded...)
		}
		return refs, nil
	}
	return nil, &refError{v}
}

type refError struct {
	v cty.Value
}

func (e *refError) Error() string {
	return "expected a resource reference of the form Type[title] but found " + e.v.Type().FriendlyName()
}

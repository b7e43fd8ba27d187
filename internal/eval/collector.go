package eval

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/manifestc/internal/catalog"
	"github.com/vk/manifestc/internal/types"
)

// Collector runs a catalog query during finalization and realizes matching
// resources. Implementations track what they have already realized so each
// resource is processed once, and may enforce a minimum-match constraint at
// the end of compilation.
type Collector interface {
	Collect(ctx context.Context, ec *Context) error
	DetectUncollected(ctx context.Context, ec *Context) error
}

// QueryCollector realizes resources of one type that match an already-parsed
// query expression. A nil query matches every resource of the type. The
// exported form only considers resources declared as exported.
type QueryCollector struct {
	TypeName    string
	Query       hcl.Expression
	QuerySource string
	Exported    bool
	SourceRange hcl.Range
	Ops         []AttributeOperation
	Minimum     int

	realized map[*catalog.Resource]bool
}

// Collect runs the query against every resource of the collector's type,
// realizing matches and applying the collector's attribute operations. A
// resource already processed by this collector is skipped.
func (q *QueryCollector) Collect(ctx context.Context, ec *Context) error {
	if q.realized == nil {
		q.realized = make(map[*catalog.Resource]bool)
	}

	for _, res := range ec.cat.OfType(q.TypeName) {
		if q.realized[res] {
			continue
		}
		if q.Exported && !res.Exported() {
			continue
		}

		matched, err := q.matches(ec, res)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}

		ec.cat.Realize(res)
		for _, op := range q.Ops {
			switch op.Op {
			case OpAssign:
				res.Set(op.Attr)
			case OpAppend:
				if err := res.Append(op.Attr); err != nil {
					return ec.errorf(&op.Attr.NameRange, "%v", err)
				}
			}
		}
		q.realized[res] = true
	}
	return nil
}

// DetectUncollected fails if the collector's minimum-match constraint was
// not met by the end of compilation.
func (q *QueryCollector) DetectUncollected(ctx context.Context, ec *Context) error {
	if q.Minimum > 0 && len(q.realized) < q.Minimum {
		return ec.errorf(&q.SourceRange,
			"failed to collect resources matching %s: expected at least %d matching resources but found %d",
			q.describe(), q.Minimum, len(q.realized))
	}
	return nil
}

func (q *QueryCollector) describe() string {
	if q.QuerySource != "" {
		return q.TypeName + " <| " + q.QuerySource + " |>"
	}
	return q.TypeName + " <| |>"
}

// matches evaluates the query against one resource. The resource's title and
// attributes are exposed as variables; attributes the query names but the
// resource lacks evaluate as null.
func (q *QueryCollector) matches(ec *Context, res *catalog.Resource) (bool, error) {
	if q.Query == nil {
		return true, nil
	}

	variables := map[string]cty.Value{
		"title": cty.StringVal(res.Ref().Title),
	}
	for _, traversal := range q.Query.Variables() {
		name := traversal.RootName()
		if _, ok := variables[name]; !ok {
			variables[name] = cty.NullVal(cty.DynamicPseudoType)
		}
	}
	res.EachAttribute(func(attr *catalog.Attribute) bool {
		variables[attr.Name] = attr.Value
		return true
	})

	result, diags := q.Query.Value(&hcl.EvalContext{Variables: variables})
	if diags.HasErrors() {
		return false, ec.diagError(diags)
	}
	if result.IsNull() || !types.IsInstance(result, cty.Bool) {
		return false, ec.errorf(&q.SourceRange, "collector query must evaluate to a boolean")
	}
	return result.True(), nil
}

// RefCollector realizes an explicit set of resource references (the realize
// function). Every reference must exist in the catalog by the end of
// compilation.
type RefCollector struct {
	Refs        []catalog.Ref
	SourceRange hcl.Range

	realized map[catalog.Ref]bool
}

// Collect realizes whichever referenced resources exist so far.
func (r *RefCollector) Collect(ctx context.Context, ec *Context) error {
	if r.realized == nil {
		r.realized = make(map[catalog.Ref]bool)
	}
	for _, ref := range r.Refs {
		if r.realized[ref] {
			continue
		}
		if res := ec.cat.Find(ref); res != nil {
			ec.cat.Realize(res)
			r.realized[ref] = true
		}
	}
	return nil
}

// DetectUncollected fails on the first reference that never appeared.
func (r *RefCollector) DetectUncollected(ctx context.Context, ec *Context) error {
	for _, ref := range r.Refs {
		if !r.realized[ref] {
			return ec.errorf(&r.SourceRange, "resource %s cannot be realized because it does not exist in the catalog", ref)
		}
	}
	return nil
}

package types

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// AliasResolver resolves a type-alias name appearing inside a type
// expression. It returns the resolved type, which may be (or contain) the
// dynamic pseudo-type while the alias is still being resolved.
type AliasResolver func(name string, rng hcl.Range) (cty.Type, error)

// EvalTypeExpr evaluates a manifest type expression to a cty.Type.
//
// The grammar mirrors HCL's conventional type constraint syntax: the
// keywords string, number, bool and any; the constructors list(T), set(T),
// map(T), tuple([T, ...]) and object({name = T, ...}); and bare names that
// fall through to the alias resolver.
func EvalTypeExpr(expr hcl.Expression, resolve AliasResolver) (cty.Type, error) {
	switch e := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(e.Traversal) != 1 {
			return cty.NilType, exprErr(expr, "type names must not be qualified")
		}
		name := e.Traversal.RootName()
		switch name {
		case "string":
			return cty.String, nil
		case "number":
			return cty.Number, nil
		case "bool":
			return cty.Bool, nil
		case "any":
			return cty.DynamicPseudoType, nil
		}
		if resolve == nil {
			return cty.NilType, exprErr(expr, "unknown type name %q", name)
		}
		return resolve(name, expr.Range())

	case *hclsyntax.FunctionCallExpr:
		return evalTypeConstructor(e, resolve)

	case *hclsyntax.ObjectConsExpr:
		atys := make(map[string]cty.Type, len(e.Items))
		for _, item := range e.Items {
			key, diags := item.KeyExpr.Value(nil)
			if diags.HasErrors() || key.Type() != cty.String {
				return cty.NilType, exprErr(item.KeyExpr, "object type attribute names must be static strings")
			}
			aty, err := EvalTypeExpr(item.ValueExpr, resolve)
			if err != nil {
				return cty.NilType, err
			}
			atys[key.AsString()] = aty
		}
		return cty.Object(atys), nil

	case *hclsyntax.TupleConsExpr:
		etys := make([]cty.Type, 0, len(e.Exprs))
		for _, sub := range e.Exprs {
			ety, err := EvalTypeExpr(sub, resolve)
			if err != nil {
				return cty.NilType, err
			}
			etys = append(etys, ety)
		}
		return cty.Tuple(etys), nil
	}

	return cty.NilType, exprErr(expr, "expected a type expression")
}

func evalTypeConstructor(e *hclsyntax.FunctionCallExpr, resolve AliasResolver) (cty.Type, error) {
	if len(e.Args) != 1 {
		return cty.NilType, exprErr(e, "type constructor %q requires exactly one argument", e.Name)
	}

	switch e.Name {
	case "list", "set", "map":
		ety, err := EvalTypeExpr(e.Args[0], resolve)
		if err != nil {
			return cty.NilType, err
		}
		switch e.Name {
		case "list":
			return cty.List(ety), nil
		case "set":
			return cty.Set(ety), nil
		default:
			return cty.Map(ety), nil
		}

	case "tuple":
		tup, ok := e.Args[0].(*hclsyntax.TupleConsExpr)
		if !ok {
			return cty.NilType, exprErr(e, "tuple requires a list of element types")
		}
		return EvalTypeExpr(tup, resolve)

	case "object":
		obj, ok := e.Args[0].(*hclsyntax.ObjectConsExpr)
		if !ok {
			return cty.NilType, exprErr(e, "object requires a map of attribute types")
		}
		return EvalTypeExpr(obj, resolve)
	}

	return cty.NilType, exprErr(e, "unknown type constructor %q", e.Name)
}

func exprErr(expr hcl.Expression, format string, args ...any) error {
	return fmt.Errorf("%s: %s", expr.Range(), fmt.Sprintf(format, args...))
}

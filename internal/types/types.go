// Package types exposes the type operations the evaluator needs as a thin
// facade over go-cty. The evaluator treats these as a pure oracle; no state
// is carried between calls.
package types

import (
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// IsInstance reports whether the given value is acceptable where the given
// type is required. A dynamic constraint accepts anything.
func IsInstance(v cty.Value, t cty.Type) bool {
	return IsAssignable(v.Type(), t)
}

// IsAssignable reports whether a value of type `from` can be used where a
// value of type `to` is required. Primitives never coerce: a number is not
// assignable to string. Structural types are assignable when a lossless
// conversion exists, so a tuple of strings satisfies list(string).
func IsAssignable(from, to cty.Type) bool {
	if to.Equals(cty.DynamicPseudoType) || from.Equals(to) {
		return true
	}
	if from.IsPrimitiveType() || to.IsPrimitiveType() {
		return false
	}
	return convert.GetConversion(from, to) != nil
}

// Unify returns the most specific single type all the given types conform
// to, or cty.NilType if no such type exists.
func Unify(ts []cty.Type) cty.Type {
	if len(ts) == 0 {
		return cty.NilType
	}
	unified, _ := convert.UnifyUnsafe(ts)
	return unified
}

// Generalize widens structural types: tuples become lists and objects become
// maps of their unified element type. Primitive types are returned unchanged.
func Generalize(t cty.Type) cty.Type {
	switch {
	case t.IsTupleType():
		elem := Unify(t.TupleElementTypes())
		if elem == cty.NilType {
			elem = cty.DynamicPseudoType
		}
		return cty.List(elem)
	case t.IsObjectType():
		var elems []cty.Type
		for _, et := range t.AttributeTypes() {
			elems = append(elems, et)
		}
		elem := Unify(elems)
		if elem == cty.NilType {
			elem = cty.DynamicPseudoType
		}
		return cty.Map(elem)
	case t.IsListType(), t.IsSetType(), t.IsMapType():
		return t
	default:
		return t
	}
}

// ContainsDynamic reports whether the given type is, or contains, the
// dynamic pseudo-type. Alias resolution uses this to detect aliases that
// never bottom out in a concrete type.
func ContainsDynamic(t cty.Type) bool {
	return t.Equals(cty.DynamicPseudoType) || t.HasDynamicTypes()
}

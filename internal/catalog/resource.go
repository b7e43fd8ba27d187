package catalog

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/manifestc/internal/types"
)

// Attribute is a single named value on a resource, along with the source
// ranges of its name and value for diagnostics.
type Attribute struct {
	Name       string
	Value      cty.Value
	NameRange  hcl.Range
	ValueRange hcl.Range
}

// Resource is a typed, titled unit of configuration in the catalog.
type Resource struct {
	ref       Ref
	container *Resource
	declRange hcl.Range
	virtual   bool
	exported  bool

	attributes map[string]*Attribute
	order      []string
}

// Ref returns the resource's type/title reference.
func (r *Resource) Ref() Ref { return r.ref }

// Container returns the resource that declared this one, or nil.
func (r *Resource) Container() *Resource { return r.container }

// DeclRange returns where the resource was declared.
func (r *Resource) DeclRange() hcl.Range { return r.declRange }

// Virtual reports whether the resource is declared but not yet active.
// Exported resources are also virtual for the purposes of this compilation.
func (r *Resource) Virtual() bool { return r.virtual || r.exported }

// Exported reports whether the resource was declared as exported.
func (r *Resource) Exported() bool { return r.exported }

// Get returns the attribute with the given name, or nil.
func (r *Resource) Get(name string) *Attribute {
	return r.attributes[name]
}

// Set assigns an attribute, replacing any previous value.
func (r *Resource) Set(attr *Attribute) {
	if _, ok := r.attributes[attr.Name]; !ok {
		r.order = append(r.order, attr.Name)
	}
	r.attributes[attr.Name] = attr
}

// Remove deletes the attribute with the given name, if present.
func (r *Resource) Remove(name string) {
	if _, ok := r.attributes[name]; !ok {
		return
	}
	delete(r.attributes, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Append concatenates the given attribute's value onto the existing value.
// Elements of one type merge into a list of that type; mixed elements stay a
// tuple. An absent existing value behaves like Set.
func (r *Resource) Append(attr *Attribute) error {
	previous, ok := r.attributes[attr.Name]
	if !ok {
		r.Set(attr)
		return nil
	}

	elems := valueElements(previous.Value)
	elems = append(elems, valueElements(attr.Value)...)
	merged := *attr
	merged.Value = mergedValue(elems)
	r.attributes[attr.Name] = &merged
	return nil
}

// mergedValue joins appended elements, preferring a homogeneous list over a
// tuple when every element is assignable to the generalized element type.
func mergedValue(elems []cty.Value) cty.Value {
	tuple := cty.TupleVal(elems)
	generalized := types.Generalize(tuple.Type())
	if !generalized.IsListType() || types.ContainsDynamic(generalized) {
		return tuple
	}
	for _, elem := range elems {
		if !types.IsAssignable(elem.Type(), generalized.ElementType()) {
			return tuple
		}
	}
	list, err := convert.Convert(tuple, generalized)
	if err != nil {
		return tuple
	}
	return list
}

// EachAttribute visits the resource's attributes in declaration order.
func (r *Resource) EachAttribute(fn func(attr *Attribute) bool) {
	for _, name := range r.order {
		if !fn(r.attributes[name]) {
			return
		}
	}
}

func (r *Resource) String() string {
	return r.ref.String()
}

// valueElements flattens a collection value into its elements; scalars
// become a single-element slice.
func valueElements(v cty.Value) []cty.Value {
	if v.IsNull() {
		return []cty.Value{v}
	}
	ty := v.Type()
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		return v.AsValueSlice()
	}
	return []cty.Value{v}
}

func (r *Resource) validateContainer() error {
	for c := r.container; c != nil; c = c.container {
		if c == r {
			return fmt.Errorf("resource %s cannot contain itself", r.ref)
		}
	}
	return nil
}

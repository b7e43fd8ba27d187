package eval

import (
	"github.com/hashicorp/hcl/v2"

	"github.com/vk/manifestc/internal/catalog"
)

// AttributeOp is the kind of attribute operation an override performs.
type AttributeOp int

const (
	// OpAssign replaces the attribute's value; assigning a null value
	// removes it.
	OpAssign AttributeOp = iota
	// OpAppend concatenates onto the attribute's existing value.
	OpAppend
)

// AttributeOperation is one attribute mutation within an override or
// collector.
type AttributeOperation struct {
	Op   AttributeOp
	Attr *catalog.Attribute
}

// Override is a deferred attribute mutation against a resource that may not
// be declared yet. Scope is the scope the override was written in; a nil
// scope means it came from the same declaration and is always permitted.
type Override struct {
	Ref     catalog.Ref
	Context hcl.Range
	Ops     []AttributeOperation
	Scope   *Scope
}

// Evaluate applies the override to its target resource. Overrides are
// permitted when the originating scope is absent, or when walking that
// scope's parents up to (but not including) the top scope finds the target's
// containing resource. Otherwise, touching an attribute that already has a
// value is a conflict naming the original assignment site.
func (o *Override) Evaluate(c *Context) error {
	res := c.cat.Find(o.Ref)
	if res == nil {
		return c.errorf(&o.Context, "resource %s does not exist in the catalog", o.Ref)
	}
	if len(o.Ops) == 0 {
		return nil
	}

	permitted := true
	if o.Scope != nil {
		permitted = false
		for parent := o.Scope.parent; parent != nil && parent.parent != nil; parent = parent.parent {
			if parent.resource != nil && res.Container() == parent.resource {
				permitted = true
				break
			}
		}
	}

	if !permitted {
		for _, op := range o.Ops {
			previous := res.Get(op.Attr.Name)
			if previous == nil {
				continue
			}
			action := "set"
			if op.Op == OpAppend {
				action = "append to"
			} else if op.Attr.Value.IsNull() {
				action = "remove"
			}
			return c.errorf(&op.Attr.NameRange,
				"cannot %s attribute '%s' from resource %s that was previously set at %s:%d",
				action, op.Attr.Name, res.Ref(), previous.NameRange.Filename, previous.NameRange.Start.Line)
		}
	}

	for _, op := range o.Ops {
		switch op.Op {
		case OpAssign:
			if op.Attr.Value.IsNull() {
				res.Remove(op.Attr.Name)
			} else {
				res.Set(op.Attr)
			}
		case OpAppend:
			if err := res.Append(op.Attr); err != nil {
				return c.errorf(&op.Attr.NameRange, "%v", err)
			}
		}
	}
	return nil
}

package eval

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/manifestc/internal/catalog"
	"github.com/vk/manifestc/internal/types"
)

// evalAliasExpr evaluates an alias right-hand side. References to aliases
// still being resolved see the dynamic placeholder and mark the entry, so
// the caller can reject aliases that never bottom out in a concrete type.
func (c *Context) evalAliasExpr(ctx context.Context, entry *aliasEntry, expr hcl.Expression) (cty.Type, error) {
	return types.EvalTypeExpr(expr, func(name string, rng hcl.Range) (cty.Type, error) {
		key := catalog.NormalizeName(name)
		if e, ok := c.aliases[key]; ok && !e.resolved {
			entry.sawCycle = true
			return cty.DynamicPseudoType, nil
		}
		return c.ResolveAlias(ctx, name, rng)
	})
}

// EvalTypeExpr evaluates a type expression outside alias resolution; any
// alias it names must already resolve to a real type.
func (c *Context) EvalTypeExpr(ctx context.Context, expr hcl.Expression) (cty.Type, error) {
	return types.EvalTypeExpr(expr, func(name string, rng hcl.Range) (cty.Type, error) {
		return c.ResolveAlias(ctx, name, rng)
	})
}

func containsDynamic(t cty.Type) bool {
	return types.ContainsDynamic(t)
}

package eval

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/manifestc/internal/manifest"
	"github.com/vk/manifestc/internal/registry"
)

func registerAlias(t *testing.T, reg *registry.Registry, name, src string) {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), "parse failed: %s", diags)
	require.NoError(t, reg.RegisterTypeAlias(&manifest.TypeAlias{
		Name:      name,
		Expr:      expr,
		DeclRange: testRange(1),
	}))
}

func TestResolveAlias(t *testing.T) {
	ec, _, reg := newTestContext(nil, nil)
	ctx := context.Background()

	registerAlias(t, reg, "port", "number")
	registerAlias(t, reg, "ports", "list(port)")

	got, err := ec.ResolveAlias(ctx, "port", testRange(5))
	require.NoError(t, err)
	assert.True(t, cty.Number.Equals(got))

	t.Run("aliases compose", func(t *testing.T) {
		got, err := ec.ResolveAlias(ctx, "ports", testRange(6))
		require.NoError(t, err)
		assert.True(t, cty.List(cty.Number).Equals(got))
	})

	t.Run("resolution is memoized and normalized", func(t *testing.T) {
		again, err := ec.ResolveAlias(ctx, "Port", testRange(7))
		require.NoError(t, err)
		assert.True(t, cty.Number.Equals(again))
	})

	t.Run("unknown alias", func(t *testing.T) {
		_, err := ec.ResolveAlias(ctx, "nonesuch", testRange(8))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown type alias")
	})
}

func TestResolveAliasCycles(t *testing.T) {
	ctx := context.Background()

	t.Run("self-referential alias fails", func(t *testing.T) {
		ec, _, reg := newTestContext(nil, nil)
		registerAlias(t, reg, "loop", "loop")

		_, err := ec.ResolveAlias(ctx, "loop", testRange(1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not resolve to a real type")
	})

	t.Run("failure is stable across resolutions", func(t *testing.T) {
		ec, _, reg := newTestContext(nil, nil)
		registerAlias(t, reg, "loop", "loop")

		_, err := ec.ResolveAlias(ctx, "loop", testRange(1))
		require.Error(t, err)

		_, err = ec.ResolveAlias(ctx, "loop", testRange(2))
		require.Error(t, err, "a failed alias must not be memoized as resolved")
		assert.Contains(t, err.Error(), "does not resolve to a real type")
	})

	t.Run("cycle through a constructor fails", func(t *testing.T) {
		ec, _, reg := newTestContext(nil, nil)
		registerAlias(t, reg, "tree", "list(tree)")

		_, err := ec.ResolveAlias(ctx, "tree", testRange(1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not resolve to a real type")
	})

	t.Run("an alias may use any explicitly", func(t *testing.T) {
		ec, _, reg := newTestContext(nil, nil)
		registerAlias(t, reg, "loose", "list(any)")

		got, err := ec.ResolveAlias(ctx, "loose", testRange(1))
		require.NoError(t, err)
		assert.True(t, cty.List(cty.DynamicPseudoType).Equals(got))
	})
}

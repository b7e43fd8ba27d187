package eval

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/manifestc/internal/catalog"
)

func parseQuery(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "query.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), "parse failed: %s", diags)
	return expr
}

func addUser(cat *catalog.Catalog, title, group string, exported bool) *catalog.Resource {
	res := cat.Add(catalog.NewRef("user", title), catalog.AddOptions{Virtual: !exported, Exported: exported})
	res.Set(&catalog.Attribute{Name: "group", Value: cty.StringVal(group), NameRange: testRange(1)})
	return res
}

func TestQueryCollectorFiltering(t *testing.T) {
	ec, cat, _ := newTestContext(nil, nil)
	alice := addUser(cat, "alice", "admin", false)
	bob := addUser(cat, "bob", "dev", false)

	q := &QueryCollector{
		TypeName:    "user",
		Query:       parseQuery(t, `group == "admin"`),
		SourceRange: testRange(2),
	}
	require.NoError(t, q.Collect(context.Background(), ec))

	assert.False(t, alice.Virtual())
	assert.True(t, bob.Virtual())
}

func TestQueryCollectorTitleAndMissingVariables(t *testing.T) {
	ec, cat, _ := newTestContext(nil, nil)
	alice := addUser(cat, "alice", "admin", false)

	t.Run("title is queryable", func(t *testing.T) {
		q := &QueryCollector{TypeName: "user", Query: parseQuery(t, `title == "alice"`), SourceRange: testRange(2)}
		require.NoError(t, q.Collect(context.Background(), ec))
		assert.False(t, alice.Virtual())
	})

	t.Run("attributes the resource lacks are null", func(t *testing.T) {
		bob := addUser(cat, "bob", "dev", false)
		q := &QueryCollector{TypeName: "user", Query: parseQuery(t, `shell == null`), SourceRange: testRange(3)}
		require.NoError(t, q.Collect(context.Background(), ec))
		assert.False(t, bob.Virtual())
	})
}

func TestQueryCollectorAppliesOps(t *testing.T) {
	ec, cat, _ := newTestContext(nil, nil)
	alice := addUser(cat, "alice", "admin", false)

	q := &QueryCollector{
		TypeName:    "user",
		SourceRange: testRange(2),
		Ops: []AttributeOperation{{
			Op:   OpAssign,
			Attr: &catalog.Attribute{Name: "managed", Value: cty.True, NameRange: testRange(2)},
		}},
	}
	require.NoError(t, q.Collect(context.Background(), ec))
	require.NotNil(t, alice.Get("managed"))
	assert.True(t, alice.Get("managed").Value.True())

	t.Run("each resource is processed once", func(t *testing.T) {
		alice.Remove("managed")
		require.NoError(t, q.Collect(context.Background(), ec))
		assert.Nil(t, alice.Get("managed"), "a second pass skips already-collected resources")
	})
}

func TestQueryCollectorExportedOnly(t *testing.T) {
	ec, cat, _ := newTestContext(nil, nil)
	local := addUser(cat, "local", "x", false)
	remote := addUser(cat, "remote", "x", true)

	q := &QueryCollector{TypeName: "user", Exported: true, SourceRange: testRange(2)}
	require.NoError(t, q.Collect(context.Background(), ec))

	assert.True(t, local.Virtual(), "plain virtual resources are not exported")
	assert.False(t, remote.Virtual())
}

func TestQueryCollectorNonBooleanQuery(t *testing.T) {
	ec, cat, _ := newTestContext(nil, nil)
	addUser(cat, "alice", "admin", false)

	q := &QueryCollector{TypeName: "user", Query: parseQuery(t, `group`), SourceRange: testRange(2)}
	err := q.Collect(context.Background(), ec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must evaluate to a boolean")
}

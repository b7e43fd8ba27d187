package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/manifestc/internal/catalog"
)

func assignOp(name string, v cty.Value, line int) AttributeOperation {
	return AttributeOperation{
		Op:   OpAssign,
		Attr: &catalog.Attribute{Name: name, Value: v, NameRange: testRange(line), ValueRange: testRange(line)},
	}
}

func TestOverridePermissionWalk(t *testing.T) {
	ec, cat, _ := newTestContext(nil, nil)

	owner := cat.Add(catalog.NewRef("class", "owner"), catalog.AddOptions{})
	ownerScope := NewScope(ec.TopScope(), owner)

	res := cat.Add(catalog.NewRef("file", "/tmp/a"), catalog.AddOptions{Container: owner})
	res.Set(&catalog.Attribute{Name: "mode", Value: cty.StringVal("0644"), NameRange: testRange(5)})

	t.Run("nil scope is always permitted", func(t *testing.T) {
		o := &Override{Ref: res.Ref(), Context: testRange(10), Ops: []AttributeOperation{assignOp("mode", cty.StringVal("0600"), 10)}}
		require.NoError(t, o.Evaluate(ec))
		assert.Equal(t, "0600", res.Get("mode").Value.AsString())
	})

	t.Run("scope inside the declaring class is permitted", func(t *testing.T) {
		inner := NewScope(ownerScope, nil)
		o := &Override{Ref: res.Ref(), Context: testRange(11), Scope: inner, Ops: []AttributeOperation{assignOp("mode", cty.StringVal("0400"), 11)}}
		require.NoError(t, o.Evaluate(ec))
		assert.Equal(t, "0400", res.Get("mode").Value.AsString())
	})

	t.Run("unrelated scope cannot replace a set attribute", func(t *testing.T) {
		stranger := cat.Add(catalog.NewRef("class", "stranger"), catalog.AddOptions{})
		strangerScope := NewScope(ec.TopScope(), stranger)
		inner := NewScope(strangerScope, nil)

		o := &Override{Ref: res.Ref(), Context: testRange(12), Scope: inner, Ops: []AttributeOperation{assignOp("mode", cty.StringVal("0777"), 12)}}
		err := o.Evaluate(ec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot set attribute 'mode'")
		assert.Contains(t, err.Error(), "test.hcl:11", "names the prior assignment site")
	})

	t.Run("unrelated scope may still add new attributes", func(t *testing.T) {
		stranger := cat.Find(catalog.NewRef("class", "stranger"))
		inner := NewScope(NewScope(ec.TopScope(), stranger), nil)

		o := &Override{Ref: res.Ref(), Context: testRange(13), Scope: inner, Ops: []AttributeOperation{assignOp("backup", cty.True, 13)}}
		require.NoError(t, o.Evaluate(ec))
		assert.NotNil(t, res.Get("backup"))
	})
}

func TestOverrideOperations(t *testing.T) {
	ec, cat, _ := newTestContext(nil, nil)
	res := cat.Add(catalog.NewRef("file", "/tmp/b"), catalog.AddOptions{})
	res.Set(&catalog.Attribute{Name: "tag", Value: cty.StringVal("a"), NameRange: testRange(1)})
	res.Set(&catalog.Attribute{Name: "mode", Value: cty.StringVal("0644"), NameRange: testRange(2)})

	t.Run("append concatenates", func(t *testing.T) {
		o := &Override{Ref: res.Ref(), Context: testRange(3), Ops: []AttributeOperation{{
			Op:   OpAppend,
			Attr: &catalog.Attribute{Name: "tag", Value: cty.StringVal("b"), NameRange: testRange(3)},
		}}}
		require.NoError(t, o.Evaluate(ec))
		got := res.Get("tag").Value
		require.True(t, got.Type().Equals(cty.List(cty.String)))
		assert.Equal(t, 2, got.LengthInt())
	})

	t.Run("assigning null removes", func(t *testing.T) {
		o := &Override{Ref: res.Ref(), Context: testRange(4), Ops: []AttributeOperation{
			assignOp("mode", cty.NullVal(cty.String), 4),
		}}
		require.NoError(t, o.Evaluate(ec))
		assert.Nil(t, res.Get("mode"))
	})

	t.Run("missing target is fatal", func(t *testing.T) {
		o := &Override{Ref: catalog.NewRef("file", "ghost"), Context: testRange(5)}
		err := o.Evaluate(ec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist in the catalog")
	})
}

package registry

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/manifestc/internal/manifest"
)

func declRange(line int) hcl.Range {
	return hcl.Range{Filename: "test.hcl", Start: hcl.Pos{Line: line}}
}

func TestRegisterClass(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterClass(&manifest.Class{Name: "Apache", DeclRange: declRange(1)}))

	assert.NotNil(t, r.FindClass("apache"))
	assert.NotNil(t, r.FindClass("::Apache"), "lookups normalize")

	err := r.RegisterClass(&manifest.Class{Name: "apache", DeclRange: declRange(5)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "previously defined")

	err = r.RegisterDefinedType(&manifest.DefinedType{Name: "apache", DeclRange: declRange(7)})
	require.Error(t, err, "a name is a class or a defined type, never both")
	assert.Contains(t, err.Error(), "previously defined as a class")
}

func TestRegisterDefinedType(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterDefinedType(&manifest.DefinedType{Name: "vhost", DeclRange: declRange(1)}))
	assert.NotNil(t, r.FindDefinedType("vhost"))

	err := r.RegisterClass(&manifest.Class{Name: "vhost", DeclRange: declRange(3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "previously defined as a defined type")
}

func TestRegisterTypeAlias(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterTypeAlias(&manifest.TypeAlias{Name: "port", DeclRange: declRange(1)}))
	assert.NotNil(t, r.FindTypeAlias("Port"))

	err := r.RegisterTypeAlias(&manifest.TypeAlias{Name: "port", DeclRange: declRange(2)})
	assert.Error(t, err)
}

func TestRegisterFunctionPanicsOnDuplicate(t *testing.T) {
	r := New(nil)
	r.RegisterFunction(&FunctionDescriptor{Name: "include"})
	assert.Panics(t, func() {
		r.RegisterFunction(&FunctionDescriptor{Name: "include"})
	})
}

func nodeDef(t *testing.T, line int, hostnames ...string) *manifest.NodeDefinition {
	t.Helper()
	def := &manifest.NodeDefinition{DeclRange: declRange(line)}
	for _, h := range hostnames {
		def.Hostnames = append(def.Hostnames, manifest.ParseHostname(h, declRange(line)))
	}
	return def
}

func TestNodeMatching(t *testing.T) {
	r := New(nil)
	assert.False(t, r.HasNodes())

	exact := nodeDef(t, 1, "Web01.Example.Com")
	regex := nodeDef(t, 2, `/^db\d+/`)
	fallback := nodeDef(t, 3, "default")
	require.NoError(t, r.RegisterNode(exact))
	require.NoError(t, r.RegisterNode(regex))
	require.NoError(t, r.RegisterNode(fallback))
	assert.True(t, r.HasNodes())

	t.Run("exact match is case-insensitive and wins", func(t *testing.T) {
		def, name := r.FindNode("WEB01.example.com")
		assert.Same(t, exact, def)
		assert.Equal(t, "web01.example.com", name)
	})

	t.Run("regex match in registration order", func(t *testing.T) {
		def, name := r.FindNode("db42")
		assert.Same(t, regex, def)
		assert.Equal(t, `/^db\d+/`, name)
	})

	t.Run("default as last resort", func(t *testing.T) {
		def, name := r.FindNode("unknown.host")
		assert.Same(t, fallback, def)
		assert.Equal(t, "default", name)
	})
}

func TestNodeConflicts(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterNode(nodeDef(t, 1, "web01")))
	require.NoError(t, r.RegisterNode(nodeDef(t, 2, "/^db/")))
	require.NoError(t, r.RegisterNode(nodeDef(t, 3, "default")))

	assert.Error(t, r.RegisterNode(nodeDef(t, 4, "Web01")))
	assert.Error(t, r.RegisterNode(nodeDef(t, 5, "/^db/")))
	assert.Error(t, r.RegisterNode(nodeDef(t, 6, "default")))

	t.Run("bad regex leaves registry untouched", func(t *testing.T) {
		err := r.RegisterNode(nodeDef(t, 7, "fresh", "/[/"))
		require.Error(t, err)
		_, name := r.FindNode("fresh")
		assert.Equal(t, "default", name, "the failed definition's exact hostname was not registered")
	})
}

type fakeImporter struct {
	typeCalls     int
	functionCalls int
	types         map[string]*ResourceType
}

func (f *fakeImporter) ImportType(ctx context.Context, environment, name string) (*ResourceType, error) {
	f.typeCalls++
	return f.types[name], nil
}

func (f *fakeImporter) ImportFunction(ctx context.Context, environment, name string) (*FunctionDescriptor, error) {
	f.functionCalls++
	return nil, nil
}

func TestImportMemoization(t *testing.T) {
	imp := &fakeImporter{types: map[string]*ResourceType{
		"mount": {Name: "mount"},
	}}
	r := New(imp)
	ctx := context.Background()

	t.Run("hit is cached", func(t *testing.T) {
		rt, err := r.FindResourceType(ctx, "production", "mount")
		require.NoError(t, err)
		require.NotNil(t, rt)

		_, err = r.FindResourceType(ctx, "production", "mount")
		require.NoError(t, err)
		assert.Equal(t, 1, imp.typeCalls)
	})

	t.Run("miss is memoized", func(t *testing.T) {
		before := imp.typeCalls
		for i := 0; i < 3; i++ {
			rt, err := r.FindResourceType(ctx, "production", "nonesuch")
			require.NoError(t, err)
			assert.Nil(t, rt)
		}
		assert.Equal(t, before+1, imp.typeCalls, "the host is asked about each name at most once")
	})

	t.Run("function miss is memoized", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			f, err := r.FindFunction(ctx, "production", "nonesuch")
			require.NoError(t, err)
			assert.Nil(t, f)
		}
		assert.Equal(t, 1, imp.functionCalls)
	})

	t.Run("nil importer disables imports", func(t *testing.T) {
		r := New(nil)
		rt, err := r.FindResourceType(ctx, "production", "mount")
		require.NoError(t, err)
		assert.Nil(t, rt)
	})
}

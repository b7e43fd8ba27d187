package manifest

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRange() hcl.Range {
	return hcl.Range{Filename: "test.hcl"}
}

func parseAndScan(t *testing.T, src string) (*File, error) {
	t.Helper()
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL([]byte(src), "test.hcl")
	require.False(t, diags.HasErrors(), "parse failed: %s", diags)
	return Scan(file)
}

func TestScan(t *testing.T) {
	src := `
class "apache" {
  port = 80
}

define "vhost" {
  resource "file" "/etc/vhosts/${title}" {}
}

type "port_number" {
  type = number
}

node "web01.example.com" "/^db\\d+/" "default" {
  include "apache" {}
}
`
	file, err := parseAndScan(t, src)
	require.NoError(t, err)

	require.Len(t, file.Classes, 1)
	assert.Equal(t, "apache", file.Classes[0].Name)
	assert.NotNil(t, file.Classes[0].Body)
	assert.Equal(t, "test.hcl", file.Classes[0].DeclRange.Filename)

	require.Len(t, file.DefinedTypes, 1)
	assert.Equal(t, "vhost", file.DefinedTypes[0].Name)

	require.Len(t, file.TypeAliases, 1)
	assert.Equal(t, "port_number", file.TypeAliases[0].Name)
	assert.NotNil(t, file.TypeAliases[0].Expr)

	require.Len(t, file.Nodes, 1)
	hostnames := file.Nodes[0].Hostnames
	require.Len(t, hostnames, 3)
	assert.False(t, hostnames[0].Regex)
	assert.False(t, hostnames[0].Default)
	assert.True(t, hostnames[1].Regex)
	assert.Equal(t, `^db\d+`, hostnames[1].Pattern())
	assert.True(t, hostnames[2].Default)
}

func TestScanErrors(t *testing.T) {
	t.Run("top-level attributes are rejected", func(t *testing.T) {
		_, err := parseAndScan(t, `x = 1`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected attribute")
	})

	t.Run("unknown block type", func(t *testing.T) {
		_, err := parseAndScan(t, `widget "a" {}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected block type")
	})

	t.Run("node without hostnames", func(t *testing.T) {
		_, err := parseAndScan(t, `node {}`)
		require.Error(t, err)
	})

	t.Run("type alias without type attribute", func(t *testing.T) {
		_, err := parseAndScan(t, `type "t" {}`)
		require.Error(t, err)
	})
}

func TestParseHostname(t *testing.T) {
	h := ParseHostname("default", testRange())
	assert.True(t, h.Default)

	h = ParseHostname("/web\\d+/", testRange())
	assert.True(t, h.Regex)
	assert.Equal(t, "web\\d+", h.Pattern())

	h = ParseHostname("web01", testRange())
	assert.False(t, h.Regex)
	assert.False(t, h.Default)
	assert.Equal(t, "web01", h.String())
}

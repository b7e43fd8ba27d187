package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/manifestc/internal/catalog"
)

const testManifest = `
class "main" {
  include "base" {}
}

class "base" {
  resource "file" "/etc/motd" {
    content = "welcome to ${hostname}"
  }
}

node "web01.example.com" {
  resource "file" "/etc/node-marker" {}
}

node "default" {
  resource "file" "/etc/default-marker" {}
}
`

func writeManifest(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site.hcl"), []byte(src), 0o644))
	return dir
}

func writeFacts(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facts.json")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func newTestApp(t *testing.T, cfg Config) (*App, *bytes.Buffer) {
	t.Helper()
	if cfg.LogLevel == "" {
		cfg.LogLevel = "error"
	}
	validated, err := NewConfig(cfg)
	require.NoError(t, err)
	var out bytes.Buffer
	return NewApp(&out, io.Discard, validated, nil), &out
}

func TestCompile(t *testing.T) {
	dir := writeManifest(t, testManifest)
	facts := writeFacts(t, `{"hostname": "web01"}`)

	a, _ := newTestApp(t, Config{
		ManifestPath: dir,
		NodeName:     "web01.example.com",
		FactsPath:    facts,
	})

	cat, err := a.Compile(context.Background())
	require.NoError(t, err)

	motd := cat.Find(catalog.NewRef("file", "/etc/motd"))
	require.NotNil(t, motd, "the main class pulls in base")
	assert.Equal(t, "welcome to web01", motd.Get("content").Value.AsString())

	assert.NotNil(t, cat.Find(catalog.NewRef("file", "/etc/node-marker")), "the matching node body ran")
	assert.Nil(t, cat.Find(catalog.NewRef("file", "/etc/default-marker")), "only one node definition applies")

	// Stage main contains the declared classes.
	stage := cat.Find(catalog.NewRef("stage", "main"))
	require.NotNil(t, stage)
	var stageContains int
	for _, edge := range cat.Edges() {
		if edge.Kind == catalog.Contains && edge.Source == stage {
			stageContains++
		}
	}
	assert.Equal(t, 2, stageContains, "main and base both land in the main stage")
}

func TestCompileNodeFallback(t *testing.T) {
	dir := writeManifest(t, testManifest)

	a, _ := newTestApp(t, Config{ManifestPath: dir, NodeName: "db99.example.com"})
	cat, err := a.Compile(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, cat.Find(catalog.NewRef("file", "/etc/default-marker")))
}

func TestCompileNoMatchingNode(t *testing.T) {
	src := `
node "only.example.com" {}
`
	dir := writeManifest(t, src)

	a, _ := newTestApp(t, Config{ManifestPath: dir, NodeName: "other.example.com"})
	_, err := a.Compile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not find a default node or a node matching 'other.example.com'")
}

func TestCompileWithoutNodesOrMain(t *testing.T) {
	dir := writeManifest(t, `class "unused" {}`)

	a, _ := newTestApp(t, Config{ManifestPath: dir, NodeName: "n"})
	cat, err := a.Compile(context.Background())
	require.NoError(t, err)
	assert.Len(t, cat.Resources(), 1, "only the seeded main stage")
}

func TestRunWritesCatalog(t *testing.T) {
	dir := writeManifest(t, testManifest)
	outPath := filepath.Join(t.TempDir(), "catalog.json")

	a, _ := newTestApp(t, Config{
		ManifestPath: dir,
		NodeName:     "web01.example.com",
		FactsPath:    writeFacts(t, `{"hostname": "web01"}`),
		OutputPath:   outPath,
	})
	require.NoError(t, a.Run(context.Background()))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var doc catalog.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "web01.example.com", doc.Name)
	assert.NotEmpty(t, doc.Resources)
}

func TestLoadFacts(t *testing.T) {
	t.Run("empty path yields no facts", func(t *testing.T) {
		facts, err := LoadFacts("")
		require.NoError(t, err)
		assert.Nil(t, facts)
	})

	t.Run("object document", func(t *testing.T) {
		facts, err := LoadFacts(writeFacts(t, `{"os": "linux", "cpus": 4}`))
		require.NoError(t, err)
		require.Contains(t, facts, "os")
		assert.Equal(t, "linux", facts["os"].AsString())
	})

	t.Run("non-object document", func(t *testing.T) {
		_, err := LoadFacts(writeFacts(t, `[1, 2]`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must contain a JSON object")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFacts("/nonexistent/facts.json")
		assert.Error(t, err)
	})
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{NodeName: "n"})
	assert.Error(t, err, "manifest path is required")

	_, err = NewConfig(Config{ManifestPath: "x"})
	assert.Error(t, err, "node name is required")

	cfg, err := NewConfig(Config{ManifestPath: "x", NodeName: "n"})
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment, "environment defaults")
}

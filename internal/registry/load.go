package registry

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/manifestc/internal/ctxlog"
	"github.com/vk/manifestc/internal/fsutil"
	"github.com/vk/manifestc/internal/manifest"
)

// LoadPath discovers manifest files under the given path, scans their
// top-level definitions, and registers them. Registration conflicts are
// fatal to loading.
func (r *Registry) LoadPath(ctx context.Context, path string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Registry loading definitions from manifest path...", "path", path)

	filePaths, err := fsutil.FindManifests(path, ".hcl")
	if err != nil {
		logger.Error("Failed to walk manifest directory", "path", path, "error", err)
		return err
	}
	if len(filePaths) == 0 {
		logger.Warn("No .hcl manifest files found in path", "path", path)
		return nil
	}

	parser := hclparse.NewParser()
	for _, filePath := range filePaths {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return fmt.Errorf("failed to parse manifest file %s: %w", filePath, diags)
		}

		scanned, err := manifest.Scan(hclFile)
		if err != nil {
			return fmt.Errorf("failed to scan manifest file %s: %w", filePath, err)
		}
		if err := r.Register(scanned); err != nil {
			return err
		}
		logger.Debug("Loaded definitions from manifest file.", "file", filePath)
	}

	logger.Info("Registry loaded successfully.",
		"classes", len(r.classes),
		"defined_types", len(r.definedTypes),
		"type_aliases", len(r.typeAliases),
		"nodes", len(r.nodes),
	)
	return nil
}

// Register adds every definition from a scanned file, stopping at the first
// conflict.
func (r *Registry) Register(file *manifest.File) error {
	for _, c := range file.Classes {
		if err := r.RegisterClass(c); err != nil {
			return err
		}
	}
	for _, d := range file.DefinedTypes {
		if err := r.RegisterDefinedType(d); err != nil {
			return err
		}
	}
	for _, a := range file.TypeAliases {
		if err := r.RegisterTypeAlias(a); err != nil {
			return err
		}
	}
	for _, n := range file.Nodes {
		if err := r.RegisterNode(n); err != nil {
			return err
		}
	}
	return nil
}

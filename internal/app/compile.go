package app

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"

	"github.com/vk/manifestc/internal/catalog"
	"github.com/vk/manifestc/internal/ctxlog"
	"github.com/vk/manifestc/internal/eval"
)

// compilerRange marks resources the compiler declares itself, like the main
// stage.
var compilerRange = hcl.Range{Filename: "<compiler>"}

// Run compiles the catalog for the configured node and writes it out.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	cat, err := a.Compile(ctx)
	if err != nil {
		return err
	}

	encoded, err := cat.Encode()
	if err != nil {
		return err
	}
	if a.config.OutputPath != "" {
		if err := os.WriteFile(a.config.OutputPath, append(encoded, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write catalog: %w", err)
		}
		a.logger.Info("Catalog written.", "node", a.config.NodeName, "path", a.config.OutputPath)
		return nil
	}
	if _, err := fmt.Fprintf(a.outW, "%s\n", encoded); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}

// Compile runs the full compilation for the configured node: node matching,
// top-level evaluation, finalization, and the cycle check over the resulting
// dependency graph.
func (a *App) Compile(ctx context.Context) (*catalog.Catalog, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	node := a.config.NodeName

	facts, err := LoadFacts(a.config.FactsPath)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Facts loaded.", "count", len(facts))

	cat := catalog.New(node)
	// Every catalog carries the main stage; classes land in it unless their
	// stage metaparameter says otherwise.
	cat.Add(catalog.NewRef("stage", "main"), catalog.AddOptions{DeclRange: compilerRange})

	evaluator := eval.NewEvaluator()
	ec := eval.NewContext(node, a.config.Environment, cat, a.registry, evaluator, facts)

	if a.registry.HasNodes() {
		def, matchName := a.registry.FindNode(node)
		if def == nil {
			return nil, fmt.Errorf("could not find a default node or a node matching '%s'", node)
		}
		a.logger.Debug("Node definition matched.", "node", node, "match", matchName)
		// The node scope stays active through finalization so defined types
		// evaluated there still see node variables.
		popScope := ec.PushNodeScope()
		defer popScope()
		if err := evaluator.EvaluateNode(ctx, ec, def, matchName); err != nil {
			return nil, err
		}
	}

	// The conventional entry point: a class named main, declared implicitly.
	if main := a.registry.FindClass("main"); main != nil {
		if _, err := ec.DeclareClass(ctx, "main", main.DeclRange); err != nil {
			return nil, err
		}
	}

	if err := ec.Finalize(ctx); err != nil {
		return nil, err
	}

	graph, err := cat.PopulateGraph(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Catalog compiled.", "node", node, "resources", graph.Len(), "edges", len(cat.Edges()))
	return cat, nil
}

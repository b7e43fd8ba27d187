package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/manifestc/internal/ctxlog"
	"github.com/vk/manifestc/internal/eval"
	"github.com/vk/manifestc/internal/registry"
)

// App encapsulates the compiler's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *Config
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry
// populated from the manifest path. Catalogs are written to outW, diagnostics
// to errW.
func NewApp(outW, errW io.Writer, cfg *Config, importer registry.Importer) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, errW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New(importer)
	eval.RegisterBuiltins(reg)
	logger.Debug("Built-in functions and operators registered.")

	// Manifests that do not load leave nothing to compile; treat that as a
	// fatal startup error.
	if err := reg.LoadPath(ctx, cfg.ManifestPath); err != nil {
		panic(fmt.Errorf("failed to load manifests: %w", err))
	}

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   cfg,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

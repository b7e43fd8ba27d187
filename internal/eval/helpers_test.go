package eval

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/manifestc/internal/catalog"
	"github.com/vk/manifestc/internal/manifest"
	"github.com/vk/manifestc/internal/registry"
)

// fakeEvaluator satisfies BodyEvaluator with counted, pluggable hooks so
// tests can observe exactly when bodies are evaluated.
type fakeEvaluator struct {
	classCalls   int
	definedCalls int
	onClass      func(ctx context.Context, ec *Context, res *catalog.Resource, def *manifest.Class) error
	onDefined    func(ctx context.Context, ec *Context, res *catalog.Resource, def *manifest.DefinedType) error
}

func (f *fakeEvaluator) EvaluateClass(ctx context.Context, ec *Context, res *catalog.Resource, def *manifest.Class) error {
	f.classCalls++
	if f.onClass != nil {
		return f.onClass(ctx, ec, res, def)
	}
	return nil
}

func (f *fakeEvaluator) EvaluateDefinedType(ctx context.Context, ec *Context, res *catalog.Resource, def *manifest.DefinedType) error {
	f.definedCalls++
	if f.onDefined != nil {
		return f.onDefined(ctx, ec, res, def)
	}
	return nil
}

// newTestContext builds a context over a fresh catalog seeded with the main
// stage, the way a compilation starts.
func newTestContext(evaluator BodyEvaluator, facts map[string]cty.Value) (*Context, *catalog.Catalog, *registry.Registry) {
	reg := registry.New(nil)
	cat := catalog.New("test.example.com")
	cat.Add(catalog.NewRef("stage", "main"), catalog.AddOptions{DeclRange: testRange(0)})
	if evaluator == nil {
		evaluator = &fakeEvaluator{}
	}
	ec := NewContext("test.example.com", "production", cat, reg, evaluator, facts)
	return ec, cat, reg
}

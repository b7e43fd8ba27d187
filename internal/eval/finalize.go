package eval

import (
	"context"

	"github.com/vk/manifestc/internal/catalog"
	"github.com/vk/manifestc/internal/ctxlog"
)

// MaxFinalizationIterations bounds the fixed-point loop. Exceeding it means
// a defined type is (directly or mutually) infinitely recursive.
const MaxFinalizationIterations = 1000

// Finalize drives the deferred work to a fixed point: collectors run, then
// declared defined types are evaluated, and the loop repeats so a fresh
// round of collection can see resources the evaluations declared. The loop
// ends when no unprocessed defined types remain and nothing in the
// virtualized working set has been realized. Afterwards collectors validate
// their minimum-match constraints, pending relationships are resolved, and
// remaining overrides are applied. All deferred-work collections are cleared
// on success.
func (c *Context) Finalize(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	iteration := 0
	index := 0
	var virtualized []*DeclaredDefinedType

	for {
		for _, collector := range c.collectors {
			if err := collector.Collect(ctx, c); err != nil {
				return err
			}
		}

		// Quiescent when every declared defined type has been processed and
		// nothing in the virtualized set has been realized since last pass.
		if index >= len(c.definedTypes) && allVirtual(virtualized) {
			break
		}

		var err error
		virtualized, err = c.evaluateDefinedTypes(ctx, &index, virtualized)
		if err != nil {
			return err
		}

		// iteration counts completed evaluation passes; the pass that reaches
		// the cap reports instead of starting another.
		iteration++
		if iteration >= MaxFinalizationIterations {
			return c.errorf(nil, "maximum defined type evaluations exceeded: a defined type may be infinitely recursive")
		}
	}

	logger.Debug("Finalization reached quiescence.", "iterations", iteration, "defined_types", len(c.definedTypes))

	for _, collector := range c.collectors {
		if err := collector.DetectUncollected(ctx, c); err != nil {
			return err
		}
	}

	for _, rel := range c.relationships {
		if err := rel.Evaluate(c); err != nil {
			return err
		}
	}

	// Any override still pending targets a resource that was never declared;
	// Evaluate reports that as fatal.
	for _, ref := range c.overrideOrder {
		for _, o := range c.overrides[ref] {
			if err := o.Evaluate(c); err != nil {
				return err
			}
		}
	}

	c.declaredClasses = make(map[string]bool)
	c.collectors = nil
	c.definedTypes = nil
	c.relationships = nil
	c.overrides = make(map[catalog.Ref][]*Override)
	c.overrideOrder = nil
	return nil
}

// evaluateDefinedTypes evaluates entries of the virtualized working set that
// have been realized, then all not-yet-processed declared defined types up
// to the list's current end. Virtual entries move into the working set
// instead of being evaluated. Entries appended during this pass are left for
// the next iteration so collection runs before them.
func (c *Context) evaluateDefinedTypes(ctx context.Context, index *int, virtualized []*DeclaredDefinedType) ([]*DeclaredDefinedType, error) {
	remaining := virtualized[:0]
	for _, declared := range virtualized {
		if declared.Resource.Virtual() {
			remaining = append(remaining, declared)
			continue
		}
		if err := c.evaluator.EvaluateDefinedType(ctx, c, declared.Resource, declared.Definition); err != nil {
			return nil, err
		}
	}

	end := len(c.definedTypes)
	for ; *index < end; *index++ {
		declared := c.definedTypes[*index]
		if declared.Resource.Virtual() {
			remaining = append(remaining, declared)
			continue
		}
		if err := c.evaluator.EvaluateDefinedType(ctx, c, declared.Resource, declared.Definition); err != nil {
			return nil, err
		}
	}
	return remaining, nil
}

func allVirtual(declared []*DeclaredDefinedType) bool {
	for _, d := range declared {
		if !d.Resource.Virtual() {
			return false
		}
	}
	return true
}

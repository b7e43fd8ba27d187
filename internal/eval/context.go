// Package eval implements the evaluation engine: scopes, the bounded call
// stack, match scopes, the evaluation context with its deferred-work
// collections, and the finalization algorithm that resolves them into a
// consistent catalog.
package eval

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/manifestc/internal/catalog"
	"github.com/vk/manifestc/internal/ctxlog"
	"github.com/vk/manifestc/internal/manifest"
	"github.com/vk/manifestc/internal/registry"
	"github.com/vk/manifestc/internal/types"
)

// BodyEvaluator is the tree-walking evaluator seam: the Context never walks
// manifest bodies itself, it calls back through this interface when a class
// or defined-type body must be evaluated against a resource.
type BodyEvaluator interface {
	EvaluateClass(ctx context.Context, ec *Context, res *catalog.Resource, def *manifest.Class) error
	EvaluateDefinedType(ctx context.Context, ec *Context, res *catalog.Resource, def *manifest.DefinedType) error
}

// DeclaredDefinedType pairs a catalog resource with the defined-type
// template that must evaluate its body against it during finalization.
type DeclaredDefinedType struct {
	Resource   *catalog.Resource
	Definition *manifest.DefinedType
}

type aliasEntry struct {
	typ      cty.Type
	resolved bool
	sawCycle bool
}

// Context owns all per-compilation evaluation state. It is created once per
// node compilation, bound to exactly one catalog and one top scope, and is
// not safe for concurrent use.
type Context struct {
	node        string
	environment string
	cat         *catalog.Catalog
	reg         *registry.Registry
	evaluator   BodyEvaluator

	topScope    *Scope
	nodeScope   *Scope
	namedScopes map[string]*Scope

	callStack  []Frame
	matchStack []*matchEntry
	streams    []io.Writer

	declaredClasses map[string]bool
	relationships   []*Relationship
	overrides       map[catalog.Ref][]*Override
	overrideOrder   []catalog.Ref
	definedTypes    []*DeclaredDefinedType
	collectors      []Collector

	aliases map[string]*aliasEntry
}

// NewContext creates the evaluation context for one node compilation.
func NewContext(node, environment string, cat *catalog.Catalog, reg *registry.Registry, evaluator BodyEvaluator, facts map[string]cty.Value) *Context {
	return &Context{
		node:            node,
		environment:     environment,
		cat:             cat,
		reg:             reg,
		evaluator:       evaluator,
		topScope:        NewTopScope(facts),
		namedScopes:     make(map[string]*Scope),
		declaredClasses: make(map[string]bool),
		overrides:       make(map[catalog.Ref][]*Override),
		aliases:         make(map[string]*aliasEntry),
	}
}

// Node returns the name of the node being compiled.
func (c *Context) Node() string { return c.node }

// Catalog returns the catalog bound to this compilation.
func (c *Context) Catalog() *catalog.Catalog { return c.cat }

// Registry returns the symbol tables for this compilation unit.
func (c *Context) Registry() *registry.Registry { return c.reg }

// TopScope returns the top scope.
func (c *Context) TopScope() *Scope { return c.topScope }

// NodeOrTop returns the node scope if one is active, otherwise the top
// scope.
func (c *Context) NodeOrTop() *Scope {
	if c.nodeScope != nil {
		return c.nodeScope
	}
	return c.topScope
}

// PushNodeScope establishes the node scope for the duration of node body
// evaluation; the returned function removes it.
func (c *Context) PushNodeScope() func() {
	c.nodeScope = NewScope(c.topScope, nil)
	return func() { c.nodeScope = nil }
}

// AddNamedScope registers a class scope by the title of the class resource
// that owns it, so qualified variable lookups can reach it. Registering a
// scope without an associated resource is a programmer error.
func (c *Context) AddNamedScope(scope *Scope) bool {
	if scope == nil || scope.resource == nil {
		panic("eval: named scopes require an associated resource")
	}
	name := scope.resource.Ref().Title
	if _, ok := c.namedScopes[name]; ok {
		return false
	}
	c.namedScopes[name] = scope
	return true
}

// FindScope returns a named scope; the empty name means the top scope.
func (c *Context) FindScope(name string) *Scope {
	if name == "" {
		return c.topScope
	}
	return c.namedScopes[name]
}

// LookupVariable resolves a variable name. Unqualified names resolve in the
// current scope; qualified names (ns::var) resolve the named class scope. A
// qualified lookup against an undefined or undeclared class logs a warning
// and returns no value.
func (c *Context) LookupVariable(ctx context.Context, name string, rng hcl.Range) (cty.Value, bool) {
	pos := strings.LastIndex(name, "::")
	if pos < 0 {
		scope, err := c.CurrentScope()
		if err != nil {
			return cty.NilVal, false
		}
		return scope.Lookup(name)
	}

	global := strings.HasPrefix(name, "::")
	ns := name[:pos]
	if global {
		ns = strings.TrimPrefix(ns, "::")
	}
	variable := name[pos+2:]

	ns = catalog.NormalizeName(ns)
	if scope := c.FindScope(ns); scope != nil {
		return scope.Lookup(variable)
	}

	if c.reg.FindClass(ns) == nil {
		c.Log(ctx, slog.LevelWarn, "could not look up variable $"+name+" because class '"+ns+"' is not defined", &rng)
	} else if c.cat.Find(catalog.NewRef("class", ns)) == nil {
		c.Log(ctx, slog.LevelWarn, "could not look up variable $"+name+" because class '"+ns+"' has not been declared", &rng)
	}
	return cty.NilVal, false
}

// DeclareClass declares a class: idempotent per compilation. On first
// declaration the class resource is created (if needed), its stage
// metaparameter is validated, the stage is made to contain the class, and
// the class body is evaluated. Subsequent declarations return the existing
// resource without re-evaluating the body.
func (c *Context) DeclareClass(ctx context.Context, name string, rng hcl.Range) (*catalog.Resource, error) {
	name = catalog.NormalizeName(name)
	def := c.reg.FindClass(name)
	if def == nil {
		return nil, c.errorf(&rng, "cannot declare class '%s' because it has not been defined", name)
	}

	ref := catalog.NewRef("class", name)
	res := c.cat.Find(ref)
	if res == nil {
		res = c.cat.Add(ref, catalog.AddOptions{DeclRange: rng})
	}

	if c.declaredClasses[name] {
		return res, nil
	}
	c.declaredClasses[name] = true

	stageName := "main"
	if attr := res.Get("stage"); attr != nil {
		if attr.Value.IsNull() || !types.IsInstance(attr.Value, cty.String) {
			return nil, c.errorf(&attr.ValueRange, "expected a string for 'stage' metaparameter but found %s", attr.Value.Type().FriendlyName())
		}
		stageName = attr.Value.AsString()
	}
	stage := c.cat.Find(catalog.NewRef("stage", stageName))
	if stage == nil {
		return nil, c.errorf(&rng, "stage '%s' does not exist in the catalog", stageName)
	}
	c.cat.Relate(catalog.Contains, stage, res)

	if err := c.evaluator.EvaluateClass(ctx, c, res, def); err != nil {
		return nil, err
	}
	return res, nil
}

// Call carries one function invocation across the dispatch seam.
type Call struct {
	Name      string
	Args      []cty.Value
	ArgRanges []hcl.Range
	CallRange hcl.Range
}

// CallFunc is the signature built-in and imported function descriptors must
// carry in their Fn slot.
type CallFunc func(ctx context.Context, ec *Context, call *Call) (cty.Value, error)

// Dispatch resolves a function descriptor from the registry, falling back to
// on-demand import from the extension host, and invokes it with an external
// frame on the stack. Errors propagate with the call's source context
// attached.
func (c *Context) Dispatch(ctx context.Context, call *Call) (cty.Value, error) {
	scope, _ := c.CurrentScope()

	desc, err := c.reg.FindFunction(ctx, c.environment, call.Name)
	if err != nil {
		return cty.NilVal, c.wrapRemote(&call.CallRange, err)
	}
	if desc == nil {
		return cty.NilVal, c.errorf(&call.CallRange, "function '%s' was not found", call.Name)
	}
	fn, ok := desc.Fn.(CallFunc)
	if !ok {
		return cty.NilVal, c.errorf(&call.CallRange, "function '%s' has an incompatible implementation", call.Name)
	}

	pop, err := c.PushFrame(ExternalFrame(call.Name, scope))
	if err != nil {
		return cty.NilVal, err
	}
	defer pop()

	return fn(ctx, c, call)
}

// DispatchOperator resolves a chain operator descriptor.
func (c *Context) DispatchOperator(symbol string, rng hcl.Range) (*registry.OperatorDescriptor, error) {
	desc := c.reg.FindOperator(symbol)
	if desc == nil {
		return nil, c.errorf(&rng, "unknown chain operator '%s'", symbol)
	}
	return desc, nil
}

// ResolveAlias resolves a type alias, memoized per alias name. To break
// cycles, the alias is first bound to the dynamic pseudo-type before its
// right-hand side is evaluated; a right-hand side that only reaches itself
// through that placeholder does not resolve to a real type and fails.
func (c *Context) ResolveAlias(ctx context.Context, name string, rng hcl.Range) (cty.Type, error) {
	key := catalog.NormalizeName(name)
	if entry, ok := c.aliases[key]; ok && entry.resolved {
		return entry.typ, nil
	}

	def := c.reg.FindTypeAlias(key)
	if def == nil {
		return cty.NilType, c.errorf(&rng, "unknown type alias '%s'", name)
	}

	scope, _ := c.CurrentScope()
	if scope == nil {
		scope = c.topScope
	}
	pop, err := c.PushFrame(SourceFrame(def.Name, def.DeclRange, scope))
	if err != nil {
		return cty.NilType, err
	}
	defer pop()

	entry := &aliasEntry{typ: cty.DynamicPseudoType}
	c.aliases[key] = entry

	resolved, err := c.evalAliasExpr(ctx, entry, def.Expr)
	if err != nil {
		delete(c.aliases, key)
		return cty.NilType, err
	}

	// Memoize only on success. A failed alias must fail the same way on
	// every resolution, so its placeholder entry is removed.
	if entry.sawCycle && containsDynamic(resolved) {
		delete(c.aliases, key)
		return cty.NilType, c.errorf(&def.DeclRange, "type alias '%s' does not resolve to a real type", def.Name)
	}

	entry.typ = resolved
	entry.resolved = true
	return resolved, nil
}

// AddRelationship defers an ordering/notification edge request until
// finalization.
func (c *Context) AddRelationship(rel *Relationship) {
	c.relationships = append(c.relationships, rel)
}

// AddOverride registers an attribute override. If the target resource is
// already declared, any overrides pending for it are applied first and then
// this one; otherwise the override is held until the resource appears or
// finalization ends.
func (c *Context) AddOverride(ctx context.Context, o *Override) error {
	res := c.cat.Find(o.Ref)
	if res == nil {
		if _, ok := c.overrides[o.Ref]; !ok {
			c.overrideOrder = append(c.overrideOrder, o.Ref)
		}
		c.overrides[o.Ref] = append(c.overrides[o.Ref], o)
		return nil
	}

	if err := c.evaluateOverrides(o.Ref); err != nil {
		return err
	}
	return o.Evaluate(c)
}

// AddDefinedType defers evaluation of a defined-type instantiation to the
// finalization loop.
func (c *Context) AddDefinedType(d *DeclaredDefinedType) {
	c.definedTypes = append(c.definedTypes, d)
}

// AddCollector registers a collector to run during finalization.
func (c *Context) AddCollector(col Collector) {
	c.collectors = append(c.collectors, col)
}

// evaluateOverrides applies and removes all pending overrides for the given
// resource reference.
func (c *Context) evaluateOverrides(ref catalog.Ref) error {
	pending, ok := c.overrides[ref]
	if !ok {
		return nil
	}
	delete(c.overrides, ref)
	for i, r := range c.overrideOrder {
		if r == ref {
			c.overrideOrder = append(c.overrideOrder[:i], c.overrideOrder[i+1:]...)
			break
		}
	}
	for _, o := range pending {
		if err := o.Evaluate(c); err != nil {
			return err
		}
	}
	return nil
}

// PushStream redirects Write output to the given writer until the returned
// function runs.
func (c *Context) PushStream(w io.Writer) func() {
	c.streams = append(c.streams, w)
	return func() {
		c.streams = c.streams[:len(c.streams)-1]
	}
}

// Write sends output to the innermost redirection target. It reports whether
// a target was available.
func (c *Context) Write(p []byte) bool {
	if len(c.streams) == 0 {
		return false
	}
	// Output failures are not evaluation errors; the stream owner sees them.
	_, _ = c.streams[len(c.streams)-1].Write(p)
	return true
}

// Log emits a level-gated message with optional source context.
func (c *Context) Log(ctx context.Context, level slog.Level, message string, rng *hcl.Range) {
	logger := ctxlog.FromContext(ctx)
	if !logger.Enabled(ctx, level) {
		return
	}
	if rng != nil {
		logger.Log(ctx, level, message, "file", rng.Filename, "line", rng.Start.Line)
		return
	}
	logger.Log(ctx, level, message)
}

package eval

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/manifestc/internal/catalog"
	"github.com/vk/manifestc/internal/manifest"
)

// Evaluator walks manifest bodies. It is the tree-walking collaborator the
// Context calls back into for class and defined-type bodies; everything it
// does goes through the Context's declaration, deferral, and dispatch
// services.
type Evaluator struct{}

// NewEvaluator creates a body evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// EvaluateClass evaluates a class body against its resource. The class scope
// is parented to the node (or top) scope and registered by the class title
// so qualified lookups can reach it.
func (e *Evaluator) EvaluateClass(ctx context.Context, ec *Context, res *catalog.Resource, def *manifest.Class) error {
	scope := NewScope(ec.NodeOrTop(), res)
	ec.AddNamedScope(scope)

	pop, err := ec.PushFrame(SourceFrame("class "+def.Name, def.DeclRange, scope))
	if err != nil {
		return err
	}
	defer pop()

	bindResourceParams(scope, res)
	return e.evalBody(ctx, ec, scope, def.Body)
}

// EvaluateDefinedType evaluates a defined-type body against one resource
// instance. The instance's title and attributes become the body's variables.
func (e *Evaluator) EvaluateDefinedType(ctx context.Context, ec *Context, res *catalog.Resource, def *manifest.DefinedType) error {
	scope := NewScope(ec.NodeOrTop(), res)

	pop, err := ec.PushFrame(SourceFrame(def.Name+"["+res.Ref().Title+"]", def.DeclRange, scope))
	if err != nil {
		return err
	}
	defer pop()

	site := siteOf(res.DeclRange())
	scope.Set("title", cty.StringVal(res.Ref().Title), site)
	scope.Set("name", cty.StringVal(res.Ref().Title), site)
	bindResourceParams(scope, res)
	return e.evalBody(ctx, ec, scope, def.Body)
}

// EvaluateNode evaluates the node body in the node scope. The caller pushes
// the node scope and keeps it active through finalization, so definitions
// evaluated later still see node variables.
func (e *Evaluator) EvaluateNode(ctx context.Context, ec *Context, def *manifest.NodeDefinition, matchName string) error {
	scope := ec.NodeOrTop()

	pop, err := ec.PushFrame(SourceFrame("node "+matchName, def.DeclRange, scope))
	if err != nil {
		return err
	}
	defer pop()

	return e.evalBody(ctx, ec, scope, def.Body)
}

func bindResourceParams(scope *Scope, res *catalog.Resource) {
	res.EachAttribute(func(attr *catalog.Attribute) bool {
		scope.Set(attr.Name, attr.Value, siteOf(attr.NameRange))
		return true
	})
}

// bodyItem orders attributes and blocks by source position so statements
// evaluate in declaration order.
type bodyItem struct {
	attr  *hclsyntax.Attribute
	block *hclsyntax.Block
	pos   hcl.Pos
}

func (e *Evaluator) evalBody(ctx context.Context, ec *Context, scope *Scope, body hcl.Body) error {
	syntaxBody, ok := body.(*hclsyntax.Body)
	if !ok {
		return fmt.Errorf("manifest bodies must use HCL native syntax")
	}

	items := make([]bodyItem, 0, len(syntaxBody.Attributes)+len(syntaxBody.Blocks))
	for _, attr := range syntaxBody.Attributes {
		items = append(items, bodyItem{attr: attr, pos: attr.SrcRange.Start})
	}
	for _, block := range syntaxBody.Blocks {
		items = append(items, bodyItem{block: block, pos: block.DefRange().Start})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].pos.Byte < items[j].pos.Byte })

	for _, item := range items {
		if item.attr != nil {
			if err := e.evalAssignment(ctx, ec, scope, item.attr); err != nil {
				return err
			}
			continue
		}
		if err := e.evalBlock(ctx, ec, scope, item.block); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) evalAssignment(ctx context.Context, ec *Context, scope *Scope, attr *hclsyntax.Attribute) error {
	ec.UpdateLocation(attr.SrcRange)
	value, err := e.evalExpr(ctx, ec, scope, attr.Expr)
	if err != nil {
		return err
	}
	if prior := scope.Set(attr.Name, value, siteOf(attr.NameRange)); prior != nil {
		return ec.errorf(&attr.NameRange, "cannot redefine variable '%s': it was previously assigned at %s:%d", attr.Name, prior.Path, prior.Line)
	}
	return nil
}

func (e *Evaluator) evalBlock(ctx context.Context, ec *Context, scope *Scope, block *hclsyntax.Block) error {
	ec.UpdateLocation(block.DefRange())

	switch block.Type {
	case "resource":
		return e.declareResource(ctx, ec, scope, block, false, false)
	case "virtual":
		return e.declareResource(ctx, ec, scope, block, true, false)
	case "exported":
		return e.declareResource(ctx, ec, scope, block, false, true)
	case "defaults":
		return e.evalDefaults(ctx, ec, scope, block)
	case "override":
		return e.evalOverride(ctx, ec, scope, block)
	case "collect":
		return e.evalCollect(ctx, ec, scope, block)
	case "relation":
		return e.evalRelation(ctx, ec, scope, block)
	case "include":
		if len(block.Labels) != 1 {
			return e.blockErr(ec, block, "include blocks require exactly one class name label")
		}
		call := &Call{Name: "include", Args: []cty.Value{cty.StringVal(block.Labels[0])}, CallRange: block.DefRange()}
		_, err := ec.Dispatch(ctx, call)
		return err
	case "invoke":
		return e.evalInvoke(ctx, ec, scope, block)
	}
	return e.blockErr(ec, block, "unexpected block type %q", block.Type)
}

func (e *Evaluator) declareResource(ctx context.Context, ec *Context, scope *Scope, block *hclsyntax.Block, virtual, exported bool) error {
	if len(block.Labels) != 2 {
		return e.blockErr(ec, block, "%s blocks require a type and a title label", block.Type)
	}
	typeName := catalog.NormalizeName(block.Labels[0])
	title := block.Labels[1]
	if typeName == "class" {
		return e.blockErr(ec, block, "classes must be declared with include, not resource blocks")
	}

	definedType := ec.reg.FindDefinedType(typeName)
	if definedType == nil {
		resourceType, err := ec.reg.FindResourceType(ctx, ec.environment, typeName)
		if err != nil {
			rng := block.DefRange()
			return ec.wrapRemote(&rng, err)
		}
		if resourceType == nil {
			return e.blockErr(ec, block, "unknown resource type '%s'", typeName)
		}
	}

	ref := catalog.NewRef(typeName, title)
	res := ec.cat.Add(ref, catalog.AddOptions{
		Container: scope.Resource(),
		DeclRange: block.DefRange(),
		Virtual:   virtual,
		Exported:  exported,
	})
	if res == nil {
		existing := ec.cat.Find(ref)
		rng := block.DefRange()
		return ec.errorf(&rng, "resource %s was previously declared at %s:%d", ref, existing.DeclRange().Filename, existing.DeclRange().Start.Line)
	}
	if scope.Resource() != nil {
		ec.cat.Relate(catalog.Contains, scope.Resource(), res)
	}

	thisRef := cty.StringVal(ref.String())
	for _, attr := range sortedAttributes(block.Body) {
		value, err := e.evalExpr(ctx, ec, scope, attr.Expr)
		if err != nil {
			return err
		}

		// The relationship metaparameters defer edges rather than becoming
		// attributes; endpoints may name resources not yet declared.
		switch attr.Name {
		case "before":
			ec.AddRelationship(&Relationship{Kind: catalog.Before, Source: thisRef, SourceRange: attr.NameRange, Target: value, TargetRange: attr.Expr.Range()})
			continue
		case "notify":
			ec.AddRelationship(&Relationship{Kind: catalog.Notify, Source: thisRef, SourceRange: attr.NameRange, Target: value, TargetRange: attr.Expr.Range()})
			continue
		case "require":
			ec.AddRelationship(&Relationship{Kind: catalog.Before, Source: value, SourceRange: attr.Expr.Range(), Target: thisRef, TargetRange: attr.NameRange})
			continue
		case "subscribe":
			ec.AddRelationship(&Relationship{Kind: catalog.Notify, Source: value, SourceRange: attr.Expr.Range(), Target: thisRef, TargetRange: attr.NameRange})
			continue
		}

		res.Set(&catalog.Attribute{
			Name:       attr.Name,
			Value:      value,
			NameRange:  attr.NameRange,
			ValueRange: attr.Expr.Range(),
		})
	}

	// Fill in attribute defaults from the scope chain; attributes set
	// explicitly above stay as written.
	seen := make(map[string]bool)
	res.EachAttribute(func(attr *catalog.Attribute) bool {
		seen[attr.Name] = true
		return true
	})
	scope.EachDefault(typeName, seen, func(attr *catalog.Attribute) bool {
		res.Set(attr)
		return true
	})

	if definedType != nil {
		ec.AddDefinedType(&DeclaredDefinedType{Resource: res, Definition: definedType})
	}
	return nil
}

func (e *Evaluator) evalDefaults(ctx context.Context, ec *Context, scope *Scope, block *hclsyntax.Block) error {
	if len(block.Labels) != 1 {
		return e.blockErr(ec, block, "defaults blocks require exactly one type label")
	}
	typeName := block.Labels[0]

	var attrs []*catalog.Attribute
	for _, attr := range sortedAttributes(block.Body) {
		value, err := e.evalExpr(ctx, ec, scope, attr.Expr)
		if err != nil {
			return err
		}
		attrs = append(attrs, &catalog.Attribute{
			Name:       attr.Name,
			Value:      value,
			NameRange:  attr.NameRange,
			ValueRange: attr.Expr.Range(),
		})
	}

	if prior := scope.AddDefaults(typeName, attrs); prior != nil {
		return e.blockErr(ec, block, "default for attribute '%s' of %s was already declared at %s:%d",
			prior.Name, catalog.NormalizeName(typeName), prior.NameRange.Filename, prior.NameRange.Start.Line)
	}
	return nil
}

func (e *Evaluator) evalOverride(ctx context.Context, ec *Context, scope *Scope, block *hclsyntax.Block) error {
	if len(block.Labels) != 2 {
		return e.blockErr(ec, block, "override blocks require a type and a title label")
	}

	var ops []AttributeOperation
	collect := func(body *hclsyntax.Body, op AttributeOp) error {
		for _, attr := range sortedAttributes(body) {
			value, err := e.evalExpr(ctx, ec, scope, attr.Expr)
			if err != nil {
				return err
			}
			ops = append(ops, AttributeOperation{
				Op: op,
				Attr: &catalog.Attribute{
					Name:       attr.Name,
					Value:      value,
					NameRange:  attr.NameRange,
					ValueRange: attr.Expr.Range(),
				},
			})
		}
		return nil
	}

	if err := collect(block.Body, OpAssign); err != nil {
		return err
	}
	for _, inner := range block.Body.Blocks {
		if inner.Type != "append" {
			return e.blockErr(ec, inner, "unexpected block type %q in override", inner.Type)
		}
		if err := collect(inner.Body, OpAppend); err != nil {
			return err
		}
	}

	return ec.AddOverride(ctx, &Override{
		Ref:     catalog.NewRef(block.Labels[0], block.Labels[1]),
		Context: block.DefRange(),
		Ops:     ops,
		Scope:   scope,
	})
}

var collectSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "query"},
		{Name: "minimum"},
		{Name: "exported"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "set"},
	},
}

func (e *Evaluator) evalCollect(ctx context.Context, ec *Context, scope *Scope, block *hclsyntax.Block) error {
	if len(block.Labels) != 1 {
		return e.blockErr(ec, block, "collect blocks require exactly one type label")
	}
	content, diags := block.Body.Content(collectSchema)
	if diags.HasErrors() {
		return ec.diagError(diags)
	}

	collector := &QueryCollector{
		TypeName:    catalog.NormalizeName(block.Labels[0]),
		SourceRange: block.DefRange(),
	}

	if attr, ok := content.Attributes["exported"]; ok {
		value, err := e.evalExpr(ctx, ec, scope, attr.Expr)
		if err != nil {
			return err
		}
		if value.IsNull() || value.Type() != cty.Bool {
			rng := attr.Expr.Range()
			return ec.errorf(&rng, "collect exported must be a boolean")
		}
		collector.Exported = value.True()
	}

	if attr, ok := content.Attributes["query"]; ok {
		// The query is kept as an expression; it is evaluated per resource
		// during finalization, not here.
		collector.Query = attr.Expr
		collector.QuerySource = fmt.Sprintf("query at %s", attr.Expr.Range())
	}
	if attr, ok := content.Attributes["minimum"]; ok {
		value, err := e.evalExpr(ctx, ec, scope, attr.Expr)
		if err != nil {
			return err
		}
		var minimum int
		if err := intFromValue(value, &minimum); err != nil {
			rng := attr.Expr.Range()
			return ec.errorf(&rng, "collect minimum must be a number: %v", err)
		}
		collector.Minimum = minimum
	}

	for _, inner := range content.Blocks {
		body, ok := inner.Body.(*hclsyntax.Body)
		if !ok {
			return fmt.Errorf("manifest bodies must use HCL native syntax")
		}
		for _, attr := range sortedAttributes(body) {
			value, err := e.evalExpr(ctx, ec, scope, attr.Expr)
			if err != nil {
				return err
			}
			collector.Ops = append(collector.Ops, AttributeOperation{
				Op: OpAssign,
				Attr: &catalog.Attribute{
					Name:       attr.Name,
					Value:      value,
					NameRange:  attr.NameRange,
					ValueRange: attr.Expr.Range(),
				},
			})
		}
	}

	ec.AddCollector(collector)
	return nil
}

var relationSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "source", Required: true},
		{Name: "target", Required: true},
	},
}

func (e *Evaluator) evalRelation(ctx context.Context, ec *Context, scope *Scope, block *hclsyntax.Block) error {
	if len(block.Labels) != 1 {
		return e.blockErr(ec, block, "relation blocks require exactly one operator label")
	}
	content, diags := block.Body.Content(relationSchema)
	if diags.HasErrors() {
		return ec.diagError(diags)
	}

	descriptor, err := ec.DispatchOperator(block.Labels[0], block.DefRange())
	if err != nil {
		return err
	}

	sourceAttr := content.Attributes["source"]
	targetAttr := content.Attributes["target"]
	source, err := e.evalExpr(ctx, ec, scope, sourceAttr.Expr)
	if err != nil {
		return err
	}
	target, err := e.evalExpr(ctx, ec, scope, targetAttr.Expr)
	if err != nil {
		return err
	}

	rel := &Relationship{
		Kind:        descriptor.Kind,
		Source:      source,
		SourceRange: sourceAttr.Expr.Range(),
		Target:      target,
		TargetRange: targetAttr.Expr.Range(),
	}
	if descriptor.Reversed {
		rel.Source, rel.Target = rel.Target, rel.Source
		rel.SourceRange, rel.TargetRange = rel.TargetRange, rel.SourceRange
	}
	ec.AddRelationship(rel)
	return nil
}

var invokeSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "args"},
	},
}

func (e *Evaluator) evalInvoke(ctx context.Context, ec *Context, scope *Scope, block *hclsyntax.Block) error {
	if len(block.Labels) != 1 {
		return e.blockErr(ec, block, "invoke blocks require exactly one function name label")
	}
	content, diags := block.Body.Content(invokeSchema)
	if diags.HasErrors() {
		return ec.diagError(diags)
	}

	call := &Call{Name: block.Labels[0], CallRange: block.DefRange()}
	if attr, ok := content.Attributes["args"]; ok {
		value, err := e.evalExpr(ctx, ec, scope, attr.Expr)
		if err != nil {
			return err
		}
		if !value.Type().IsTupleType() && !value.Type().IsListType() {
			rng := attr.Expr.Range()
			return ec.errorf(&rng, "invoke args must be a list")
		}
		for _, arg := range value.AsValueSlice() {
			call.Args = append(call.Args, arg)
			call.ArgRanges = append(call.ArgRanges, attr.Expr.Range())
		}
	}

	_, err := ec.Dispatch(ctx, call)
	return err
}

// evalExpr evaluates one expression against the current scope, updating the
// innermost frame's location first so errors report the failing statement.
func (e *Evaluator) evalExpr(ctx context.Context, ec *Context, scope *Scope, expr hcl.Expression) (cty.Value, error) {
	ec.UpdateLocation(expr.Range())
	value, diags := expr.Value(e.buildEvalContext(ctx, ec, scope, expr.Range()))
	if diags.HasErrors() {
		return cty.NilVal, ec.diagError(diags)
	}
	return value, nil
}

// buildEvalContext exposes the scope chain's bindings (inner shadows outer),
// the current match captures, and the registry's functions to HCL
// expressions.
func (e *Evaluator) buildEvalContext(ctx context.Context, ec *Context, scope *Scope, callRange hcl.Range) *hcl.EvalContext {
	variables := make(map[string]cty.Value)

	var chain []*Scope
	for s := scope; s != nil; s = s.Parent() {
		chain = append(chain, s)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, name := range chain[i].Names() {
			value, _ := chain[i].Lookup(name)
			variables[name] = value
		}
	}

	var captures []cty.Value
	for i := 0; ; i++ {
		value, ok := ec.LookupMatch(i)
		if !ok {
			break
		}
		captures = append(captures, value)
	}
	if captures != nil {
		variables["matches"] = cty.TupleVal(captures)
	}
	variables["compiling_node"] = cty.StringVal(ec.Node())

	functions := make(map[string]function.Function)
	for _, name := range ec.reg.FunctionNames() {
		functions[name] = e.dispatchFunction(ctx, ec, name, callRange)
	}

	return &hcl.EvalContext{Variables: variables, Functions: functions}
}

// dispatchFunction wraps a registry descriptor as a cty function so manifest
// expressions can call it; the wrapper routes through Context.Dispatch.
func (e *Evaluator) dispatchFunction(ctx context.Context, ec *Context, name string, callRange hcl.Range) function.Function {
	return function.New(&function.Spec{
		VarParam: &function.Parameter{
			Name:             "args",
			Type:             cty.DynamicPseudoType,
			AllowNull:        true,
			AllowDynamicType: true,
		},
		Type: function.StaticReturnType(cty.DynamicPseudoType),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return ec.Dispatch(ctx, &Call{Name: name, Args: args, CallRange: callRange})
		},
	})
}

func (e *Evaluator) blockErr(ec *Context, block *hclsyntax.Block, format string, args ...any) error {
	rng := block.DefRange()
	return ec.errorf(&rng, format, args...)
}

// sortedAttributes returns a body's attributes in source order.
func sortedAttributes(body *hclsyntax.Body) []*hclsyntax.Attribute {
	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})
	return attrs
}

func intFromValue(v cty.Value, out *int) error {
	if v.IsNull() || v.Type() != cty.Number {
		return fmt.Errorf("expected a number but found %s", v.Type().FriendlyName())
	}
	i, _ := v.AsBigFloat().Int64()
	*out = int(i)
	return nil
}

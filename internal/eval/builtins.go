package eval

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/manifestc/internal/catalog"
	"github.com/vk/manifestc/internal/registry"
	"github.com/vk/manifestc/internal/types"
)

// RegisterBuiltins registers the built-in functions and chain operators.
func RegisterBuiltins(reg *registry.Registry) {
	for name, fn := range builtinFunctions {
		reg.RegisterFunction(&registry.FunctionDescriptor{Name: name, Fn: CallFunc(fn)})
	}

	for _, name := range coreResourceTypes {
		reg.RegisterResourceType(&registry.ResourceType{Name: name, File: "<builtin>"})
	}

	reg.RegisterOperator(&registry.OperatorDescriptor{Symbol: "->", Kind: catalog.Before})
	reg.RegisterOperator(&registry.OperatorDescriptor{Symbol: "~>", Kind: catalog.Notify})
	reg.RegisterOperator(&registry.OperatorDescriptor{Symbol: "<-", Kind: catalog.Before, Reversed: true})
	reg.RegisterOperator(&registry.OperatorDescriptor{Symbol: "<~", Kind: catalog.Notify, Reversed: true})
}

// coreResourceTypes are always available; everything else is imported from
// the extension host on demand.
var coreResourceTypes = []string{
	"stage", "file", "package", "service", "user", "group", "exec", "host", "cron",
}

var builtinFunctions = map[string]func(ctx context.Context, ec *Context, call *Call) (cty.Value, error){
	"include":     builtinInclude,
	"require":     builtinRequire,
	"contain":     builtinContain,
	"realize":     builtinRealize,
	"fail":        builtinFail,
	"assert_type": builtinAssertType,
	"alert":       logFunction(slog.LevelError),
	"warning":     logFunction(slog.LevelWarn),
	"notice":      logFunction(slog.LevelInfo),
	"debug":       logFunction(slog.LevelDebug),
	"split":       builtinSplit,
	"defined":     builtinDefined,
	"lookupvar":   builtinLookupVar,
	"match":       builtinMatch,
}

func classArgs(ec *Context, call *Call) ([]string, error) {
	if len(call.Args) == 0 {
		return nil, ec.errorf(&call.CallRange, "function '%s' requires at least one class name", call.Name)
	}
	names := make([]string, 0, len(call.Args))
	for i, arg := range call.Args {
		if arg.IsNull() || arg.Type() != cty.String {
			rng := call.CallRange
			if i < len(call.ArgRanges) {
				rng = call.ArgRanges[i]
			}
			return nil, ec.errorf(&rng, "function '%s' expects class name strings", call.Name)
		}
		names = append(names, arg.AsString())
	}
	return names, nil
}

func builtinInclude(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	names, err := classArgs(ec, call)
	if err != nil {
		return cty.NilVal, err
	}
	for _, name := range names {
		if _, err := ec.DeclareClass(ctx, name, call.CallRange); err != nil {
			return cty.NilVal, err
		}
	}
	return cty.NullVal(cty.DynamicPseudoType), nil
}

// builtinRequire declares the classes and orders them before the resource
// whose body the call appears in.
func builtinRequire(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	names, err := classArgs(ec, call)
	if err != nil {
		return cty.NilVal, err
	}
	scope, _ := ec.CallingScope()
	for _, name := range names {
		res, err := ec.DeclareClass(ctx, name, call.CallRange)
		if err != nil {
			return cty.NilVal, err
		}
		if scope != nil && scope.Resource() != nil {
			ec.cat.Relate(catalog.Before, res, scope.Resource())
		}
	}
	return cty.NullVal(cty.DynamicPseudoType), nil
}

// builtinContain declares the classes and contains them in the calling
// class, so their resources sort inside it.
func builtinContain(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	names, err := classArgs(ec, call)
	if err != nil {
		return cty.NilVal, err
	}
	scope, _ := ec.CallingScope()
	for _, name := range names {
		res, err := ec.DeclareClass(ctx, name, call.CallRange)
		if err != nil {
			return cty.NilVal, err
		}
		if scope != nil && scope.Resource() != nil {
			ec.cat.Relate(catalog.Contains, scope.Resource(), res)
		}
	}
	return cty.NullVal(cty.DynamicPseudoType), nil
}

// builtinRealize registers a collector that realizes the referenced
// resources, failing the compilation if any of them never appears.
func builtinRealize(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	var refs []catalog.Ref
	for _, arg := range call.Args {
		expanded, err := ExpandRefs(arg)
		if err != nil {
			return cty.NilVal, ec.errorf(&call.CallRange, "%v", err)
		}
		refs = append(refs, expanded...)
	}
	if len(refs) == 0 {
		return cty.NilVal, ec.errorf(&call.CallRange, "function 'realize' requires at least one resource reference")
	}
	ec.AddCollector(&RefCollector{Refs: refs, SourceRange: call.CallRange})
	return cty.NullVal(cty.DynamicPseudoType), nil
}

func builtinFail(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	parts := make([]string, 0, len(call.Args))
	for _, arg := range call.Args {
		parts = append(parts, valueToString(arg))
	}
	return cty.NilVal, ec.errorf(&call.CallRange, "evaluation failed: %s", strings.Join(parts, " "))
}

// builtinAssertType checks that a value is an instance of a type written in
// manifest type syntax, returning the value unchanged. The type may name
// registered type aliases.
func builtinAssertType(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	if len(call.Args) != 2 || call.Args[0].IsNull() || call.Args[0].Type() != cty.String {
		return cty.NilVal, ec.errorf(&call.CallRange, "function 'assert_type' expects a type string and a value")
	}
	rng := call.CallRange
	if len(call.ArgRanges) > 0 {
		rng = call.ArgRanges[0]
	}

	expr, diags := hclsyntax.ParseExpression([]byte(call.Args[0].AsString()), rng.Filename, rng.Start)
	if diags.HasErrors() {
		return cty.NilVal, ec.diagError(diags)
	}
	t, err := ec.EvalTypeExpr(ctx, expr)
	if err != nil {
		return cty.NilVal, ec.errorf(&rng, "%v", err)
	}

	if !types.IsInstance(call.Args[1], t) {
		return cty.NilVal, ec.errorf(&call.CallRange, "type assertion failed: expected %s but found %s",
			t.FriendlyName(), call.Args[1].Type().FriendlyName())
	}
	return call.Args[1], nil
}

func logFunction(level slog.Level) func(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	return func(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
		parts := make([]string, 0, len(call.Args))
		for _, arg := range call.Args {
			parts = append(parts, valueToString(arg))
		}
		message := strings.Join(parts, " ")
		ec.Log(ctx, level, message, &call.CallRange)
		// Mirror the message into the active output redirection, if any.
		ec.Write([]byte(message + "\n"))
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
}

func builtinSplit(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	if len(call.Args) != 2 || call.Args[0].Type() != cty.String || call.Args[1].Type() != cty.String {
		return cty.NilVal, ec.errorf(&call.CallRange, "function 'split' expects a string and a separator pattern")
	}
	re, err := regexp.Compile(call.Args[1].AsString())
	if err != nil {
		return cty.NilVal, ec.errorf(&call.CallRange, "invalid regular expression: %v", err)
	}
	parts := re.Split(call.Args[0].AsString(), -1)
	values := make([]cty.Value, len(parts))
	for i, part := range parts {
		values[i] = cty.StringVal(part)
	}
	return cty.TupleVal(values), nil
}

// builtinDefined reports whether a name is defined: a resource reference
// checks the catalog, anything else checks for a class or defined type.
func builtinDefined(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	if len(call.Args) != 1 || call.Args[0].IsNull() || call.Args[0].Type() != cty.String {
		return cty.NilVal, ec.errorf(&call.CallRange, "function 'defined' expects a single string argument")
	}
	name := call.Args[0].AsString()

	if strings.Contains(name, "[") {
		ref, err := catalog.ParseRef(name)
		if err != nil {
			return cty.NilVal, ec.errorf(&call.CallRange, "%v", err)
		}
		return cty.BoolVal(ec.cat.Find(ref) != nil), nil
	}
	defined := ec.reg.FindClass(name) != nil || ec.reg.FindDefinedType(name) != nil
	return cty.BoolVal(defined), nil
}

// builtinLookupVar resolves a possibly qualified variable name through the
// context, covering names HCL identifiers cannot express (ns::var).
func builtinLookupVar(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	if len(call.Args) != 1 || call.Args[0].IsNull() || call.Args[0].Type() != cty.String {
		return cty.NilVal, ec.errorf(&call.CallRange, "function 'lookupvar' expects a single string argument")
	}
	value, ok := ec.LookupVariable(ctx, call.Args[0].AsString(), call.CallRange)
	if !ok {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	return value, nil
}

// builtinMatch matches a value against a regular expression. On a match the
// capture groups become the current match scope's captures and are returned
// as a tuple; otherwise null is returned.
func builtinMatch(ctx context.Context, ec *Context, call *Call) (cty.Value, error) {
	if len(call.Args) != 2 || call.Args[0].Type() != cty.String || call.Args[1].Type() != cty.String {
		return cty.NilVal, ec.errorf(&call.CallRange, "function 'match' expects a string and a pattern")
	}
	re, err := regexp.Compile(call.Args[1].AsString())
	if err != nil {
		return cty.NilVal, ec.errorf(&call.CallRange, "invalid regular expression: %v", err)
	}
	captures := re.FindStringSubmatch(call.Args[0].AsString())
	if captures == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	ec.setMatchesCaller(captures)
	values := make([]cty.Value, len(captures))
	for i, capture := range captures {
		values[i] = cty.StringVal(capture)
	}
	return cty.TupleVal(values), nil
}

func valueToString(v cty.Value) string {
	if v.IsNull() {
		return "undef"
	}
	if v.Type() == cty.String {
		return v.AsString()
	}
	if s, err := convert.Convert(v, cty.String); err == nil {
		return s.AsString()
	}
	return v.Type().FriendlyName()
}

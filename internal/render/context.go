package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/dbtbridge/internal/macro"
	"github.com/leapstack-labs/dbtbridge/internal/resolve"
	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// statementPlaceholder is the stable value synthesized for load_result()
// when no real statement result exists. No live database is available at
// conversion time, so a deterministic placeholder stands in.
const statementPlaceholder = 3650

// Context is the per-render bundle of globals and mutable state. Create a
// fresh Context for every model render; the statement-result cache and the
// captured config are scoped to exactly one render call and never shared.
type Context struct {
	// Model is the model name used in diagnostics.
	Model string
	// Relation is the model's own qualified relation, exposed as `this`.
	Relation string
	// Adapter is the target database family used for macro dispatch.
	Adapter string
	// Target describes the output profile, exposed as `target`.
	Target TargetInfo
	// Names is the frozen NameMap backing ref() and source().
	Names *resolve.NameMap
	// Vars holds project/run-level variable bindings for var().
	Vars map[string]any
	// Registry holds the parsed macros; may be nil.
	Registry *macro.Registry
	// LookupEnv resolves env_var() lookups; defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	maxDepth int
	// depth counts live macro activations; a render is single-goroutine so a
	// plain counter suffices. Dispatched and direct calls share it, so a
	// cycle through adapter.dispatch trips the ceiling like any other.
	depth int
	// callScope is the scope active at the innermost callable invocation.
	// Builtins that re-render template text (statement bodies) evaluate
	// against it so the caller's bindings stay visible.
	callScope  *scope
	diags      []core.Diagnostic
	statements map[string]map[string]any
	config     map[string]any
	bodies     map[*macro.Definition][]node
}

// TargetInfo describes the output target, exposed to templates as `target`.
type TargetInfo struct {
	Name   string
	Type   string
	Schema string
}

// NewContext creates a render context for one model.
func NewContext(model, relation, adapter string, names *resolve.NameMap, vars map[string]any, registry *macro.Registry) *Context {
	return &Context{
		Model:      model,
		Relation:   relation,
		Adapter:    adapter,
		Names:      names,
		Vars:       vars,
		Registry:   registry,
		LookupEnv:  os.LookupEnv,
		statements: make(map[string]map[string]any),
		config:     make(map[string]any),
		bodies:     make(map[*macro.Definition][]node),
	}
}

// Diagnostics returns the diagnostics accumulated during the render.
func (c *Context) Diagnostics() []core.Diagnostic {
	return c.diags
}

// ConfigCapture returns the kwargs captured by the template's config() call.
// The evaluator never interprets them.
func (c *Context) ConfigCapture() map[string]any {
	return c.config
}

func (c *Context) registry() *macro.Registry {
	if c.Registry == nil {
		c.Registry = macro.NewRegistry()
	}
	return c.Registry
}

func (c *Context) warnf(format string, args ...any) {
	c.diags = append(c.diags, core.Warn(c.Model, fmt.Sprintf(format, args...)))
}

func (c *Context) extend(diags []core.Diagnostic) {
	c.diags = append(c.diags, diags...)
}

// installBuiltins populates the root scope with the fixed set of built-in
// functions and objects every template may call.
func (c *Context) installBuiltins(root *scope) {
	v := root.vars

	v["ref"] = callable(c.refBuiltin)
	v["source"] = callable(c.sourceBuiltin)
	v["var"] = callable(c.varBuiltin)
	v["env_var"] = callable(c.envVarBuiltin)
	v["config"] = callable(c.configBuiltin)
	v["return"] = callable(returnBuiltin)
	v["log"] = callable(func([]any, map[string]any) (any, error) { return "", nil })
	v["statement"] = callable(c.statementBuiltin(root))
	v["load_result"] = callable(c.loadResultBuiltin)

	v["this"] = c.Relation
	v["target"] = map[string]any{
		"name":   c.Target.Name,
		"type":   targetTypeOr(c.Target.Type, c.Adapter),
		"schema": c.Target.Schema,
	}
	// Compile-time statement simulation runs statements, so templates that
	// guard result handling behind `execute` must take the true branch.
	v["execute"] = true

	v["exceptions"] = map[string]any{
		"raise_compiler_error": callable(func(args []any, _ map[string]any) (any, error) {
			msg := "compiler error raised"
			if len(args) > 0 {
				msg = stringify(args[0])
			}
			return nil, &EvalError{Model: c.Model, Message: msg}
		}),
		"warn": callable(func(args []any, _ map[string]any) (any, error) {
			if len(args) > 0 {
				c.warnf("%s", stringify(args[0]))
			}
			return "", nil
		}),
	}

	v["adapter"] = map[string]any{
		"dispatch": callable(c.dispatchBuiltin(root)),
		"type": callable(func([]any, map[string]any) (any, error) {
			return c.Adapter, nil
		}),
		"quote": callable(func(args []any, _ map[string]any) (any, error) {
			if len(args) == 0 {
				return "", nil
			}
			return `"` + stringify(args[0]) + `"`, nil
		}),
	}

	// Cross-database shims live on the dbt object and are also reachable as
	// bare globals, matching how source projects invoke them.
	shims := crossDBShims()
	dbt := make(map[string]any, len(shims)+1)
	for name, fn := range shims {
		dbt[name] = fn
		if _, taken := v[name]; !taken {
			v[name] = fn
		}
	}
	dbt["dispatch"] = callable(c.dispatchBuiltin(root))
	v["dbt"] = dbt
}

func targetTypeOr(t, fallback string) string {
	if t != "" {
		return t
	}
	return fallback
}

func (c *Context) refBuiltin(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("ref() requires a model name")
	}
	// Two-argument form is ref('package', 'model'); the name is last.
	name := stringify(args[len(args)-1])
	if c.Names != nil {
		if rel, ok := c.Names.Model(name); ok {
			return rel, nil
		}
	}
	c.warnf("ref(%q) did not resolve; substituting the name as-is", name)
	return name, nil
}

func (c *Context) sourceBuiltin(args []any, _ map[string]any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("source() requires a source and a table name")
	}
	src := stringify(args[0])
	table := stringify(args[1])
	if c.Names != nil {
		if rel, ok := c.Names.Source(src, table); ok {
			return rel, nil
		}
	}
	c.warnf("source(%q, %q) did not resolve; substituting %s.%s", src, table, src, table)
	return src + "." + table, nil
}

func (c *Context) varBuiltin(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("var() requires a variable name")
	}
	name := stringify(args[0])
	if c.Vars != nil {
		if v, ok := c.Vars[name]; ok {
			return v, nil
		}
	}
	if len(args) > 1 {
		return args[1], nil
	}
	c.warnf("var(%q) is not defined and has no default; substituting null", name)
	return nil, nil
}

func (c *Context) envVarBuiltin(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("env_var() requires a variable name")
	}
	name := stringify(args[0])
	lookup := c.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(name); ok {
		return v, nil
	}
	if len(args) > 1 {
		return args[1], nil
	}
	c.warnf("env_var(%q) is not set and has no default; substituting null", name)
	return nil, nil
}

func (c *Context) configBuiltin(_ []any, kwargs map[string]any) (any, error) {
	for k, val := range kwargs {
		if k == "caller" {
			continue
		}
		c.config[k] = val
	}
	return "", nil
}

func returnBuiltin(args []any, _ map[string]any) (any, error) {
	var v any
	if len(args) > 0 {
		v = args[0]
	}
	return &returnSignal{value: v}, nil
}

// statementBuiltin executes the statement body (so nested template logic
// runs) but always suppresses its rendered text. The body arrives either as
// a caller from a {% call %} block or as a trailing template-text argument.
func (c *Context) statementBuiltin(root *scope) callable {
	return func(args []any, kwargs map[string]any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("statement() requires a name")
		}
		name := stringify(args[0])

		if caller, ok := kwargs["caller"].(callable); ok {
			if _, err := caller(nil, nil); err != nil {
				return nil, err
			}
		} else if len(args) >= 2 {
			if body, ok := args[len(args)-1].(string); ok {
				nodes, err := parseTemplate(body)
				if err != nil {
					return nil, &EvalError{Model: c.Model, Message: err.Error()}
				}
				// Render against the invoking scope so the body sees the
				// caller's bindings, not just the template globals.
				sc := c.callScope
				if sc == nil {
					sc = root
				}
				if _, _, err := renderNodes(nodes, sc.child()); err != nil {
					return nil, err
				}
			}
		}

		c.cacheStatementResult(name)
		return "", nil
	}
}

func (c *Context) loadResultBuiltin(args []any, _ map[string]any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("load_result() requires a name")
	}
	name := stringify(args[0])
	if result, ok := c.statements[name]; ok {
		return result, nil
	}
	return c.cacheStatementResult(name), nil
}

// cacheStatementResult stores the mock result for a statement name. The
// placeholder is deliberately stable so repeated renders are deterministic.
func (c *Context) cacheStatementResult(name string) map[string]any {
	if result, ok := c.statements[name]; ok {
		return result
	}
	result := map[string]any{
		"data":    []any{[]any{statementPlaceholder}},
		"columns": []any{"value"},
		"table":   []any{[]any{statementPlaceholder}},
	}
	c.statements[name] = result
	return result
}

// dispatchBuiltin implements adapter.dispatch(name, package?): it resolves
// the concrete implementation up front and returns a callable for it.
func (c *Context) dispatchBuiltin(root *scope) callable {
	return func(args []any, kwargs map[string]any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("dispatch() requires a macro name")
		}
		baseName := stringify(args[0])
		pkg := ""
		if len(args) > 1 {
			pkg = stringify(args[1])
		} else if ns, ok := kwargs["macro_namespace"]; ok {
			pkg = stringify(ns)
		}

		def, diags := c.registry().Dispatch(baseName, c.Adapter, pkg, c.Model)
		c.extend(diags)
		if def == nil {
			return callable(func([]any, map[string]any) (any, error) {
				return "", nil
			}), nil
		}
		return callable(func(args []any, kwargs map[string]any) (any, error) {
			return c.invokeMacro(root, def, args, kwargs)
		}), nil
	}
}

// invokeMacro renders a registered macro body with arguments bound against
// its declared parameter list.
func (c *Context) invokeMacro(root *scope, def *macro.Definition, args []any, kwargs map[string]any) (any, error) {
	nodes, ok := c.bodies[def]
	if !ok {
		parsed, err := parseTemplate(def.Body)
		if err != nil {
			return nil, &EvalError{Model: c.Model, Message: fmt.Sprintf("macro %s: %v", def.Name, err)}
		}
		c.bodies[def] = parsed
		nodes = parsed
	}
	return c.invokeParsed(root, def, nodes, args, kwargs)
}

// invokeParsed is the shared invocation path for registry macros and
// template-local macro definitions. Positional arguments are zipped against
// the parameter list; keyword arguments override or extend; missing trailing
// parameters are simply absent from the bound context.
func (c *Context) invokeParsed(root *scope, def *macro.Definition, nodes []node, args []any, kwargs map[string]any) (any, error) {
	if c.depth >= c.maxDepth {
		return nil, &RecursionError{Model: c.Model, Macro: def.Name, Depth: c.maxDepth}
	}
	c.depth++
	defer func() { c.depth-- }()

	mscope := &scope{vars: make(map[string]any), parent: root, ctx: c}

	params := def.Parameters
	for i, arg := range args {
		if i >= len(params) {
			break
		}
		mscope.vars[params[i]] = arg
	}

	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p] = true
	}
	extra := make(map[string]any)
	for k, val := range kwargs {
		if k == "caller" {
			mscope.vars["caller"] = val
			continue
		}
		mscope.vars[k] = val
		if !declared[k] {
			extra[k] = val
		}
	}
	mscope.vars["kwargs"] = extra

	text, ret, err := renderNodes(nodes, mscope)
	if err != nil {
		return nil, err
	}
	if ret != nil {
		return coerceReturn(ret.value), nil
	}
	return strings.TrimSpace(text), nil
}

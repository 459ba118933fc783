package render

import (
	"fmt"
	"strings"
)

// scope is one lexical frame: template globals at the root, loop and macro
// bindings in children. Macro bodies get a fresh frame chained to the root
// frame, not to the caller's frame.
type scope struct {
	vars   map[string]any
	parent *scope
	ctx    *Context
}

func (sc *scope) root() *scope {
	s := sc
	for s.parent != nil {
		s = s.parent
	}
	return s
}

func (sc *scope) lookup(name string) (any, bool) {
	for s := sc; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (sc *scope) child() *scope {
	return &scope{vars: make(map[string]any), parent: sc, ctx: sc.ctx}
}

// evalExpr evaluates a parsed expression. Unresolved names never abort
// evaluation: they yield nil plus a warning diagnostic naming the variable.
func (sc *scope) evalExpr(e expr) (any, error) {
	switch n := e.(type) {
	case *eLit:
		return n.val, nil

	case *eIdent:
		if v, ok := sc.lookup(n.name); ok {
			return v, nil
		}
		// Fall back to macro invocation by name.
		if def, diags := sc.ctx.registry().Resolve(n.name, sc.ctx.Adapter, sc.ctx.Model); def != nil {
			sc.ctx.extend(diags)
			return sc.macroCallable(def), nil
		}
		sc.ctx.warnf("name %q is undefined; substituting null", n.name)
		return nil, nil

	case *eList:
		items := make([]any, 0, len(n.items))
		for _, item := range n.items {
			v, err := sc.evalExpr(item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil

	case *eDict:
		m := make(map[string]any, len(n.keys))
		for i, k := range n.keys {
			kv, err := sc.evalExpr(k)
			if err != nil {
				return nil, err
			}
			vv, err := sc.evalExpr(n.vals[i])
			if err != nil {
				return nil, err
			}
			m[stringify(kv)] = vv
		}
		return m, nil

	case *eAttr:
		base, err := sc.evalExpr(n.base)
		if err != nil {
			return nil, err
		}
		return sc.attr(base, n.name)

	case *eIndex:
		base, err := sc.evalExpr(n.base)
		if err != nil {
			return nil, err
		}
		idx, err := sc.evalExpr(n.index)
		if err != nil {
			return nil, err
		}
		return indexValue(base, idx)

	case *eCall:
		return sc.evalCall(n)

	case *eUnary:
		x, err := sc.evalExpr(n.x)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case "not":
			return !truthy(x), nil
		case "-":
			if f, ok := asFloat(x); ok {
				if i, isInt := x.(int); isInt {
					return -i, nil
				}
				return -f, nil
			}
			return nil, fmt.Errorf("cannot negate %T", x)
		}
		return nil, fmt.Errorf("unknown unary operator %q", n.op)

	case *eBinary:
		return sc.evalBinary(n)

	case *eCond:
		cond, err := sc.evalExpr(n.cond)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return sc.evalExpr(n.val)
		}
		return sc.evalExpr(n.alt)

	case *eTest:
		x, err := sc.evalExpr(n.x)
		if err != nil {
			return nil, err
		}
		result, err := evalTest(x, n.name)
		if err != nil {
			return nil, err
		}
		if n.negate {
			result = !result
		}
		return result, nil
	}
	return nil, fmt.Errorf("unknown expression node %T", e)
}

func (sc *scope) evalBinary(n *eBinary) (any, error) {
	// Short-circuit boolean operators.
	switch n.op {
	case "and":
		l, err := sc.evalExpr(n.l)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return l, nil
		}
		return sc.evalExpr(n.r)
	case "or":
		l, err := sc.evalExpr(n.l)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return l, nil
		}
		return sc.evalExpr(n.r)
	}

	l, err := sc.evalExpr(n.l)
	if err != nil {
		return nil, err
	}
	r, err := sc.evalExpr(n.r)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return valueEqual(l, r), nil
	case "!=":
		return !valueEqual(l, r), nil
	case "<":
		return valueLess(l, r)
	case ">":
		return valueLess(r, l)
	case "<=":
		gt, err := valueLess(r, l)
		if err != nil {
			return nil, err
		}
		return !gt, nil
	case ">=":
		lt, err := valueLess(l, r)
		if err != nil {
			return nil, err
		}
		return !lt, nil
	case "in":
		return contains(l, r), nil
	case "~":
		return stringify(l) + stringify(r), nil
	case "+":
		return addValues(l, r)
	case "-", "*", "/", "%":
		return arithmetic(n.op, l, r)
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

func addValues(l, r any) (any, error) {
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			return ls + rs, nil
		}
	}
	if ll, ok := l.([]any); ok {
		if rl, ok := r.([]any); ok {
			out := make([]any, 0, len(ll)+len(rl))
			out = append(out, ll...)
			return append(out, rl...), nil
		}
	}
	return arithmetic("+", l, r)
}

func arithmetic(op string, l, r any) (any, error) {
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("cannot apply %q to %T and %T", op, l, r)
	}
	li, lInt := l.(int)
	ri, rInt := r.(int)
	bothInt := lInt && rInt

	switch op {
	case "+":
		if bothInt {
			return li + ri, nil
		}
		return lf + rf, nil
	case "-":
		if bothInt {
			return li - ri, nil
		}
		return lf - rf, nil
	case "*":
		if bothInt {
			return li * ri, nil
		}
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if bothInt {
			if ri == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			return li % ri, nil
		}
		return nil, fmt.Errorf("%% requires integers")
	}
	return nil, fmt.Errorf("unknown arithmetic operator %q", op)
}

func evalTest(x any, name string) (bool, error) {
	switch name {
	case "defined":
		return x != nil, nil
	case "none":
		return x == nil, nil
	case "string":
		_, ok := x.(string)
		return ok, nil
	case "number":
		_, ok := asFloat(x)
		return ok, nil
	case "iterable", "sequence":
		switch x.(type) {
		case []any, string, map[string]any:
			return true, nil
		}
		return false, nil
	case "mapping":
		_, ok := x.(map[string]any)
		return ok, nil
	case "boolean":
		_, ok := x.(bool)
		return ok, nil
	}
	return false, fmt.Errorf("unknown test %q", name)
}

func indexValue(base, idx any) (any, error) {
	switch b := base.(type) {
	case []any:
		i, ok := idx.(int)
		if !ok {
			return nil, fmt.Errorf("list index must be an integer, got %T", idx)
		}
		if i < 0 {
			i += len(b)
		}
		if i < 0 || i >= len(b) {
			return nil, fmt.Errorf("list index %d out of range", i)
		}
		return b[i], nil
	case map[string]any:
		k, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("map key must be a string, got %T", idx)
		}
		return b[k], nil
	case string:
		i, ok := idx.(int)
		if !ok {
			return nil, fmt.Errorf("string index must be an integer, got %T", idx)
		}
		if i < 0 {
			i += len(b)
		}
		if i < 0 || i >= len(b) {
			return nil, fmt.Errorf("string index %d out of range", i)
		}
		return string(b[i]), nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("cannot index %T", base)
}

// attr resolves attribute access: map keys, loop/string/list helper methods.
func (sc *scope) attr(base any, name string) (any, error) {
	switch b := base.(type) {
	case map[string]any:
		if v, ok := b[name]; ok {
			return v, nil
		}
		switch name {
		case "get":
			return callable(func(args []any, _ map[string]any) (any, error) {
				if len(args) == 0 {
					return nil, fmt.Errorf("get() requires a key")
				}
				key, _ := args[0].(string)
				if v, ok := b[key]; ok {
					return v, nil
				}
				if len(args) > 1 {
					return args[1], nil
				}
				return nil, nil
			}), nil
		case "keys":
			return callable(func([]any, map[string]any) (any, error) {
				return mapKeys(b), nil
			}), nil
		case "values":
			return callable(func([]any, map[string]any) (any, error) {
				keys := mapKeys(b)
				out := make([]any, 0, len(keys))
				for _, k := range keys {
					out = append(out, b[k.(string)])
				}
				return out, nil
			}), nil
		}
		return nil, nil
	case string:
		return stringMethod(b, name)
	case []any:
		return listMethod(b, name)
	case nil:
		sc.ctx.warnf("attribute %q accessed on undefined value", name)
		return nil, nil
	}
	return nil, fmt.Errorf("no attribute %q on %T", name, base)
}

func mapKeys(m map[string]any) []any {
	out := make([]any, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sortAnyStrings(out)
	return out
}

func sortAnyStrings(vals []any) {
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0; j-- {
			a, _ := vals[j-1].(string)
			b, _ := vals[j].(string)
			if a <= b {
				break
			}
			vals[j-1], vals[j] = vals[j], vals[j-1]
		}
	}
}

func stringMethod(s, name string) (any, error) {
	switch name {
	case "upper":
		return callable(func([]any, map[string]any) (any, error) { return strings.ToUpper(s), nil }), nil
	case "lower":
		return callable(func([]any, map[string]any) (any, error) { return strings.ToLower(s), nil }), nil
	case "strip", "trim":
		return callable(func([]any, map[string]any) (any, error) { return strings.TrimSpace(s), nil }), nil
	case "replace":
		return callable(func(args []any, _ map[string]any) (any, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("replace() requires two arguments")
			}
			return strings.ReplaceAll(s, stringify(args[0]), stringify(args[1])), nil
		}), nil
	case "startswith":
		return callable(func(args []any, _ map[string]any) (any, error) {
			if len(args) < 1 {
				return nil, fmt.Errorf("startswith() requires an argument")
			}
			return strings.HasPrefix(s, stringify(args[0])), nil
		}), nil
	case "endswith":
		return callable(func(args []any, _ map[string]any) (any, error) {
			if len(args) < 1 {
				return nil, fmt.Errorf("endswith() requires an argument")
			}
			return strings.HasSuffix(s, stringify(args[0])), nil
		}), nil
	case "split":
		return callable(func(args []any, _ map[string]any) (any, error) {
			sep := " "
			if len(args) > 0 {
				sep = stringify(args[0])
			}
			parts := strings.Split(s, sep)
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		}), nil
	}
	return nil, fmt.Errorf("no method %q on string", name)
}

func listMethod(l []any, name string) (any, error) {
	switch name {
	case "append":
		// Lists are immutable inside templates; append is accepted but the
		// result must be captured with set.
		return callable(func(args []any, _ map[string]any) (any, error) {
			out := make([]any, 0, len(l)+len(args))
			out = append(out, l...)
			return append(out, args...), nil
		}), nil
	case "join":
		return callable(func(args []any, _ map[string]any) (any, error) {
			sep := ""
			if len(args) > 0 {
				sep = stringify(args[0])
			}
			parts := make([]string, len(l))
			for i, item := range l {
				parts[i] = stringify(item)
			}
			return strings.Join(parts, sep), nil
		}), nil
	}
	return nil, fmt.Errorf("no method %q on list", name)
}

// evalCall evaluates a call expression. The callee may be a builtin, a
// macro, or any callable returned by another call (adapter.dispatch).
func (sc *scope) evalCall(n *eCall) (any, error) {
	fn, err := sc.evalExpr(n.callee)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(n.args))
	for _, a := range n.args {
		v, err := sc.evalExpr(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	kwargs := make(map[string]any, len(n.kwargs))
	for _, kw := range n.kwargs {
		v, err := sc.evalExpr(kw.val)
		if err != nil {
			return nil, err
		}
		kwargs[kw.name] = v
	}

	c, ok := fn.(callable)
	if !ok {
		if fn == nil {
			// The callee already produced an unresolved-name warning;
			// substitute empty output rather than aborting the render.
			return nil, nil
		}
		return nil, fmt.Errorf("value of type %T is not callable", fn)
	}

	prev := sc.ctx.callScope
	sc.ctx.callScope = sc
	defer func() { sc.ctx.callScope = prev }()
	return c(args, kwargs)
}

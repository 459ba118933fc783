package render

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Template values are plain Go values: nil, bool, string, int, float64,
// []any, map[string]any, plus callables. This file holds the conversion and
// comparison helpers shared by the expression evaluator.

// callable is any value invocable from a template expression.
type callable func(args []any, kwargs map[string]any) (any, error)

// returnSignal is produced by the return() builtin. It terminates only the
// current macro activation; the evaluator unwraps it at the macro boundary.
type returnSignal struct {
	value any
}

// stringify renders a template value as output text. nil renders empty so a
// missing variable never injects the word "<nil>" into SQL.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = "'" + k + "': " + repr(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *returnSignal:
		return stringify(t.value)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// repr renders a value in expression form (strings quoted), used inside
// list/dict display.
func repr(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return stringify(v)
}

// truthy implements template truthiness: empty strings, zero numbers, empty
// collections and nil are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// asFloat converts numeric values for arithmetic and comparison.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// valueEqual implements the == operator.
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
	}
	switch at := a.(type) {
	case string:
		if bs, ok := b.(string); ok {
			return at == bs
		}
	case bool:
		if bb, ok := b.(bool); ok {
			return at == bb
		}
	}
	return false
}

// valueLess implements < for numbers and strings.
func valueLess(a, b any) (bool, error) {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af < bf, nil
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs, nil
	}
	return false, fmt.Errorf("cannot compare %T with %T", a, b)
}

// contains implements the `in` operator for lists, strings and map keys.
func contains(needle, haystack any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, stringify(needle))
	case []any:
		for _, item := range h {
			if valueEqual(item, needle) {
				return true
			}
		}
	case map[string]any:
		if s, ok := needle.(string); ok {
			_, found := h[s]
			return found
		}
	}
	return false
}

var (
	digitsOnly  = regexp.MustCompile(`^[0-9]+$`)
	singleFloat = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)
)

// coerceReturn applies the documented numeric-coercion policy for return()
// values: an all-digit string becomes an int, a single-decimal-point numeric
// string becomes a float, anything else passes through unchanged.
//
// This can corrupt a legitimately numeric-looking string return; the
// behavior is preserved deliberately and must not be extended.
func coerceReturn(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if digitsOnly.MatchString(s) {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		return s
	}
	if singleFloat.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

package render

import (
	"fmt"
	"strings"
)

// crossDBShims returns the cross-database utility functions exposed to
// templates. Each shim emits canonical pre-dialect-conversion SQL text; the
// dialect converter rewrites it for the output target afterwards.
func crossDBShims() map[string]callable {
	shims := map[string]callable{
		"type_string":  fixed("TEXT"),
		"type_int":     fixed("INT"),
		"type_bigint":  fixed("BIGINT"),
		"type_numeric": fixed("NUMERIC(28,6)"),
		"type_boolean": fixed("BOOLEAN"),
		"type_float":   fixed("FLOAT"),

		"current_timestamp": fixed("CURRENT_TIMESTAMP"),
		"now":               fixed("CURRENT_TIMESTAMP"),
		"intersect":         fixed("INTERSECT"),

		"concat": func(args []any, _ map[string]any) (any, error) {
			if len(args) == 1 {
				// concat may also receive a single list of fields
				if list, ok := args[0].([]any); ok {
					args = list
				}
			}
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = stringify(a)
			}
			return strings.Join(parts, " || "), nil
		},

		"hash": func(args []any, _ map[string]any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("hash() requires a field")
			}
			return "MD5(" + stringify(args[0]) + ")", nil
		},

		"escape_single_quotes": func(args []any, _ map[string]any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("escape_single_quotes() requires a value")
			}
			return strings.ReplaceAll(stringify(args[0]), "'", "''"), nil
		},

		"string_literal": func(args []any, _ map[string]any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("string_literal() requires a value")
			}
			return "'" + strings.ReplaceAll(stringify(args[0]), "'", "''") + "'", nil
		},

		"cast": func(args []any, _ map[string]any) (any, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("cast() requires an expression and a type")
			}
			return fmt.Sprintf("CAST(%s AS %s)", stringify(args[0]), stringify(args[1])), nil
		},

		"safe_cast": func(args []any, _ map[string]any) (any, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("safe_cast() requires an expression and a type")
			}
			return fmt.Sprintf("TRY_CAST(%s AS %s)", stringify(args[0]), stringify(args[1])), nil
		},

		"date_trunc": func(args []any, _ map[string]any) (any, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("date_trunc() requires a datepart and an expression")
			}
			return fmt.Sprintf("DATE_TRUNC('%s', %s)", stringify(args[0]), stringify(args[1])), nil
		},

		"dateadd": dateAdd,

		"datediff": func(args []any, _ map[string]any) (any, error) {
			if len(args) < 3 {
				return nil, fmt.Errorf("datediff() requires two dates and a datepart")
			}
			return fmt.Sprintf("DATEDIFF(%s, %s, %s)",
				stringify(args[2]), stringify(args[0]), stringify(args[1])), nil
		},
	}

	// `except` is the template-facing name; except_ is kept as an alias for
	// projects that avoid shadowing the Python keyword.
	exceptFn := fixed("EXCEPT")
	shims["except"] = exceptFn
	shims["except_"] = exceptFn

	return shims
}

func fixed(text string) callable {
	return func([]any, map[string]any) (any, error) {
		return text, nil
	}
}

// dateAdd renders interval arithmetic. An integer interval contributes its
// sign to the operator; a string interval is passed through pre-signed and
// always added.
func dateAdd(args []any, _ map[string]any) (any, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("dateadd() requires a datepart, an interval and an expression")
	}
	part := stringify(args[0])
	from := stringify(args[2])

	switch n := args[1].(type) {
	case int:
		op := "+"
		if n < 0 {
			op = "-"
			n = -n
		}
		return fmt.Sprintf("%s %s INTERVAL '%d' %s", from, op, n, part), nil
	case float64:
		op := "+"
		if n < 0 {
			op = "-"
			n = -n
		}
		return fmt.Sprintf("%s %s INTERVAL '%s' %s", from, op, stringify(n), part), nil
	default:
		return fmt.Sprintf("%s + INTERVAL '%s' %s", from, stringify(args[1]), part), nil
	}
}

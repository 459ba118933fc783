// Package dialect rewrites rendered SQL between database dialects. The
// rewrites are textual and deliberately conservative: anything a rule does
// not recognize passes through untouched, and an unsupported dialect pair
// returns the input with a warning rather than failing the model.
package dialect

import (
	"fmt"
	"regexp"
	"strings"
)

// Known dialect names.
const (
	Postgres  = "postgres"
	Snowflake = "snowflake"
	BigQuery  = "bigquery"
	Redshift  = "redshift"
	DuckDB    = "duckdb"
)

// IsKnown reports whether name is a dialect Convert understands.
func IsKnown(name string) bool {
	switch strings.ToLower(name) {
	case Postgres, Snowflake, BigQuery, Redshift, DuckDB:
		return true
	}
	return false
}

// rule is a single regex rewrite applied in order.
type rule struct {
	pattern *regexp.Regexp
	replace string
}

func mustRule(pattern, replace string) rule {
	return rule{pattern: regexp.MustCompile(pattern), replace: replace}
}

// toTarget holds rules applied when converting INTO a given dialect. The
// canonical text produced by rendering (TRY_CAST, DATEDIFF, DATE_TRUNC,
// INTERVAL arithmetic, MD5, ||) is close enough to postgres that rules only
// exist where a target differs.
var toTarget = map[string][]rule{
	Postgres: {
		// postgres has no TRY_CAST; NULLIF-free best effort is a plain cast.
		mustRule(`(?i)\bTRY_CAST\s*\(`, `CAST(`),
		mustRule(`(?i)\bDATEDIFF\s*\(\s*day\s*,\s*([^,]+?)\s*,\s*([^)]+?)\s*\)`, `($2::date - $1::date)`),
	},
	Snowflake: {
		mustRule(`(?i)\bMD5\s*\(`, `MD5(`),
		mustRule(`(?i)\bNUMERIC\((\d+),(\d+)\)`, `NUMBER($1,$2)`),
		mustRule(`(?i)\bTEXT\b`, `VARCHAR`),
		// snowflake spells interval arithmetic with DATEADD.
		mustRule(`(?i)([A-Za-z_][\w.]*|\))\s*\+\s*INTERVAL\s+'(\d+)'\s+(\w+)`, `DATEADD($3, $2, $1)`),
		mustRule(`(?i)([A-Za-z_][\w.]*|\))\s*-\s*INTERVAL\s+'(\d+)'\s+(\w+)`, `DATEADD($3, -$2, $1)`),
	},
	BigQuery: {
		mustRule(`(?i)\bTRY_CAST\s*\(`, `SAFE_CAST(`),
		mustRule(`(?i)\bMD5\s*\(`, `TO_HEX(MD5(`),
		mustRule(`(?i)\bNUMERIC\(\d+,\d+\)`, `NUMERIC`),
		mustRule(`(?i)\bTEXT\b`, `STRING`),
		mustRule(`(?i)\bFLOAT\b`, `FLOAT64`),
		mustRule(`(?i)\bBOOLEAN\b`, `BOOL`),
		mustRule(`(?i)\bDATEDIFF\s*\(\s*(\w+)\s*,\s*([^,]+?)\s*,\s*([^)]+?)\s*\)`, `DATE_DIFF($3, $2, $1)`),
	},
	Redshift: {
		mustRule(`(?i)\bTRY_CAST\s*\(`, `CAST(`),
	},
	DuckDB: {
		// duckdb accepts the canonical forms.
	},
}

// bigqueryConcat rewrites `a || b` chains into CONCAT(a, b); BigQuery's ||
// only works on strings and most dbt projects rely on implicit casts.
var bigqueryConcat = regexp.MustCompile(`([\w.'"()]+)(\s*\|\|\s*[\w.'"()]+)+`)

// Convert rewrites sql from one dialect to another. The returned slice holds
// human-readable warnings; it is empty when the conversion was clean.
func Convert(sql, from, to string) (string, []string) {
	from = strings.ToLower(from)
	to = strings.ToLower(to)

	if from == to {
		return sql, nil
	}

	var warnings []string
	if !IsKnown(from) {
		warnings = append(warnings, fmt.Sprintf("unknown source dialect %q, passing SQL through", from))
		return sql, warnings
	}
	rules, ok := toTarget[to]
	if !ok {
		warnings = append(warnings, fmt.Sprintf("unknown target dialect %q, passing SQL through", to))
		return sql, warnings
	}

	out := sql
	for _, r := range rules {
		out = r.pattern.ReplaceAllString(out, r.replace)
	}

	if to == BigQuery {
		out = bigqueryConcat.ReplaceAllStringFunc(out, func(m string) string {
			parts := strings.Split(m, "||")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return "CONCAT(" + strings.Join(parts, ", ") + ")"
		})
		// TO_HEX(MD5( opened a second paren above.
		out = closeToHex(out)
	}

	return out, warnings
}

// closeToHex adds the extra closing paren for each TO_HEX(MD5( introduced by
// the bigquery hash rewrite.
func closeToHex(sql string) string {
	const marker = "TO_HEX(MD5("
	var b strings.Builder
	for {
		i := strings.Index(sql, marker)
		if i < 0 {
			b.WriteString(sql)
			return b.String()
		}
		b.WriteString(sql[:i+len(marker)])
		rest := sql[i+len(marker):]
		depth := 1
		j := 0
		for ; j < len(rest); j++ {
			switch rest[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				break
			}
		}
		if j == len(rest) {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:j+1])
		b.WriteString(")")
		sql = rest[j+1:]
	}
}

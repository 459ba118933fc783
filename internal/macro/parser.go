// Package macro provides parsing, registration and adapter dispatch for
// Jinja-style macros found in dbt projects.
//
// Macros are extracted statically from `{% macro name(args) %}...{% endmacro %}`
// blocks. A name of the form `{prefix}__{base}` where the prefix is a known
// adapter keyword (or "default") marks an adapter-specific implementation of
// the base macro; dispatch between implementations happens at render time.
package macro

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Definition represents a single parsed macro.
type Definition struct {
	// Name is the full declared name, e.g. "snowflake__generate_alias".
	Name string
	// BaseName is Name with a recognized "{prefix}__" stripped.
	BaseName string
	// AdapterPrefix is the recognized prefix ("snowflake", "default", ...)
	// or "" when the macro is not adapter-specific.
	AdapterPrefix string
	// Parameters holds the declared parameter names in order. Default values
	// are stripped and not preserved; see the package README note on this
	// known limitation.
	Parameters []string
	// Body is the raw template text between the macro and endmacro tags.
	Body string
	// Package is "" for project-scoped macros, or the package name for
	// macros loaded from an installed package.
	Package string
	// FilePath is the file the macro was parsed from, for diagnostics.
	FilePath string
}

// Adapter keywords recognized as dispatch prefixes. "default" is always valid.
var knownAdapters = map[string]bool{
	"default":    true,
	"postgres":   true,
	"snowflake":  true,
	"bigquery":   true,
	"redshift":   true,
	"duckdb":     true,
	"databricks": true,
	"spark":      true,
	"trino":      true,
	"clickhouse": true,
	"sqlserver":  true,
	"mysql":      true,
}

// IsKnownAdapter reports whether s is a recognized adapter keyword.
func IsKnownAdapter(s string) bool {
	return knownAdapters[s] && s != "default"
}

// macroHeader matches `{% macro name(params) %}` and `{%- macro ... -%}`.
var macroHeader = regexp.MustCompile(`\{%-?\s*macro\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// endmacroTag matches `{% endmacro %}` with optional whitespace trim markers.
var endmacroTag = regexp.MustCompile(`\{%-?\s*endmacro\s*-?%\}`)

// ParseError represents an error during macro extraction.
type ParseError struct {
	File    string
	Message string
}

func (e *ParseError) Error() string {
	return "parse " + filepath.Base(e.File) + ": " + e.Message
}

// ParseFile extracts all macro definitions from the given source text.
// Non-macro content (comments, docs blocks, stray SQL) is ignored.
func ParseFile(path, content string) ([]*Definition, error) {
	var defs []*Definition

	rest := content
	offset := 0
	for {
		loc := macroHeader.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}

		name := rest[loc[2]:loc[3]]

		// loc[1] points just past the opening paren of the parameter list.
		paramsEnd, params, ok := scanParams(rest[loc[1]:])
		if !ok {
			return nil, &ParseError{File: path, Message: "unterminated parameter list for macro " + name}
		}
		afterParams := loc[1] + paramsEnd

		// Find the end of the opening tag.
		tagClose := strings.Index(rest[afterParams:], "%}")
		if tagClose < 0 {
			return nil, &ParseError{File: path, Message: "unterminated macro tag for " + name}
		}
		bodyStart := afterParams + tagClose + len("%}")

		end := endmacroTag.FindStringIndex(rest[bodyStart:])
		if end == nil {
			return nil, &ParseError{File: path, Message: "missing endmacro for " + name}
		}

		body := rest[bodyStart : bodyStart+end[0]]

		def := &Definition{
			Name:       name,
			Parameters: params,
			Body:       body,
			FilePath:   path,
		}
		def.AdapterPrefix, def.BaseName = splitAdapterPrefix(name)
		defs = append(defs, def)

		advance := bodyStart + end[1]
		offset += advance
		rest = rest[advance:]
	}

	return defs, nil
}

// splitAdapterPrefix splits "{prefix}__{base}" when prefix is a known adapter
// keyword or "default". Otherwise the whole name is the base name.
func splitAdapterPrefix(name string) (prefix, base string) {
	idx := strings.Index(name, "__")
	if idx <= 0 {
		return "", name
	}
	candidate := name[:idx]
	if knownAdapters[candidate] {
		return candidate, name[idx+2:]
	}
	return "", name
}

// scanParams consumes a parameter list starting just past the opening paren.
// It returns the index just past the closing paren, the parameter names with
// default values stripped, and whether the list was terminated.
func scanParams(s string) (end int, params []string, ok bool) {
	depth := 1
	var quote byte
	start := 0
	var raw []string

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote && (i == 0 || s[i-1] != '\\') {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				raw = append(raw, s[start:i])
				return i + 1, cleanParams(raw), true
			}
		case ',':
			if depth == 1 {
				raw = append(raw, s[start:i])
				start = i + 1
			}
		}
	}
	return 0, nil, false
}

// cleanParams strips whitespace and default-value suffixes from raw
// parameter declarations. Defaults are intentionally not preserved.
func cleanParams(raw []string) []string {
	var params []string
	for _, r := range raw {
		p := strings.TrimSpace(r)
		if p == "" {
			continue
		}
		if eq := strings.Index(p, "="); eq >= 0 {
			p = strings.TrimSpace(p[:eq])
		}
		// *args / **kwargs declarations keep their bare name.
		p = strings.TrimLeft(p, "*")
		if p != "" {
			params = append(params, p)
		}
	}
	return params
}

package project

import (
	"regexp"
	"strconv"
	"strings"
)

var configCallRe = regexp.MustCompile(`\{\{-?\s*config\s*\(`)

// ExtractInlineConfig pulls keyword arguments out of a model's own
// {{ config(...) }} call without rendering the template. This is a tolerant
// pre-pass: the same call is also evaluated during rendering, but schema
// resolution needs the values before any template runs. Values that are not
// simple literals (strings, numbers, booleans, string lists) are skipped.
func ExtractInlineConfig(sql string) map[string]any {
	loc := configCallRe.FindStringIndex(sql)
	if loc == nil {
		return nil
	}
	args, ok := balancedArgs(sql[loc[1]:])
	if !ok {
		return nil
	}

	out := map[string]any{}
	for _, arg := range splitTopLevel(args) {
		eq := strings.Index(arg, "=")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(arg[:eq])
		if key == "" || strings.ContainsAny(key, "\"'(") {
			continue
		}
		if v, ok := literalValue(strings.TrimSpace(arg[eq+1:])); ok {
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// balancedArgs returns the text up to the parenthesis that closes the call,
// ignoring parens and commas inside string literals.
func balancedArgs(s string) (string, bool) {
	depth := 1
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth == 0 {
				return s[:i], true
			}
		}
	}
	return "", false
}

func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
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
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func literalValue(s string) (any, bool) {
	switch {
	case s == "":
		return nil, false
	case s == "true" || s == "True":
		return true, true
	case s == "false" || s == "False":
		return false, true
	case (s[0] == '\'' || s[0] == '"') && len(s) >= 2 && s[len(s)-1] == s[0]:
		return s[1 : len(s)-1], true
	case s[0] == '[' && s[len(s)-1] == ']':
		var items []string
		for _, item := range splitTopLevel(s[1 : len(s)-1]) {
			v, ok := literalValue(strings.TrimSpace(item))
			if !ok {
				return nil, false
			}
			str, isStr := v.(string)
			if !isStr {
				return nil, false
			}
			items = append(items, str)
		}
		return items, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/dbtbridge/internal/macro"
)

var endrawRe = regexp.MustCompile(`\{%-?\s*endraw\s*-?%\}`)

// DefaultMaxDepth is the macro recursion ceiling. Exceeding it fails only
// the current model's render, not the whole batch.
const DefaultMaxDepth = 64

// Evaluator interprets template text against a per-model Context. It
// supports literal pass-through, {{ expr }} substitution, {% if %} chains,
// {% for %} loops, {% set %}, {% do %}, {% call %} blocks, inline macro
// definitions and macro invocation with early return.
type Evaluator struct {
	// MaxDepth bounds macro call nesting.
	MaxDepth int
}

// NewEvaluator creates an evaluator with the default recursion ceiling.
func NewEvaluator() *Evaluator {
	return &Evaluator{MaxDepth: DefaultMaxDepth}
}

// EvalError represents a fatal-per-model template failure.
type EvalError struct {
	Model   string
	Line    int
	Message string
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Model, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Model, e.Message)
}

// RecursionError reports a macro call chain exceeding the depth ceiling.
type RecursionError struct {
	Model string
	Macro string
	Depth int
}

func (e *RecursionError) Error() string {
	return fmt.Sprintf("%s: macro recursion limit (%d) exceeded while expanding %q", e.Model, e.Depth, e.Macro)
}

// Render interprets templateText. Recoverable conditions are accumulated on
// the context as diagnostics; the returned error is non-nil only for
// fatal-per-model conditions (syntax errors, recursion past the ceiling,
// compiler errors raised from templates).
func (ev *Evaluator) Render(templateText string, ctx *Context) (string, error) {
	nodes, err := parseTemplate(templateText)
	if err != nil {
		return "", &EvalError{Model: ctx.Model, Message: err.Error()}
	}

	maxDepth := ev.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	ctx.maxDepth = maxDepth

	root := &scope{vars: make(map[string]any), ctx: ctx}
	ctx.installBuiltins(root)

	text, _, rerr := renderNodes(nodes, root)
	if rerr != nil {
		switch rerr.(type) {
		case *EvalError, *RecursionError:
			return "", rerr
		}
		return "", &EvalError{Model: ctx.Model, Message: rerr.Error()}
	}
	return text, nil
}

// --- template nodes ---

type node interface{}

type textNode struct{ text string }

type exprTag struct {
	src  string
	line int
}

type setTag struct {
	name string
	src  string
	line int
}

type doTag struct {
	src  string
	line int
}

type branch struct {
	cond string
	line int
	body []node
}

type ifTag struct {
	branches []branch
	elseBody []node
}

type forTag struct {
	loopVar string
	src     string
	line    int
	body    []node
}

type callTag struct {
	src  string
	line int
	body []node
}

type localMacroTag struct {
	def  *macro.Definition
	body []node
}

// --- scanner ---

type rawTag struct {
	kind    byte // 'e' expression, 's' statement, 't' text
	content string
	line    int
}

// scanTemplate splits template text into text segments and {{ }} / {% %}
// tags, stripping {# #} comments and applying whitespace-control markers.
func scanTemplate(src string) ([]rawTag, error) {
	var tags []rawTag
	line := 1
	trimNext := false

	emitText := func(text string) {
		if trimNext {
			text = strings.TrimLeft(text, " \t\r\n")
			trimNext = false
		}
		if text != "" {
			tags = append(tags, rawTag{kind: 't', content: text, line: line})
		}
		line += strings.Count(text, "\n")
	}

	trimPrev := func() {
		if len(tags) > 0 && tags[len(tags)-1].kind == 't' {
			tags[len(tags)-1].content = strings.TrimRight(tags[len(tags)-1].content, " \t\r\n")
		}
	}

	for {
		idx := -1
		var kind byte
		for i := 0; i+1 < len(src); i++ {
			if src[i] != '{' {
				continue
			}
			switch src[i+1] {
			case '{':
				idx, kind = i, 'e'
			case '%':
				idx, kind = i, 's'
			case '#':
				idx, kind = i, 'c'
			default:
				continue
			}
			break
		}
		if idx < 0 {
			emitText(src)
			return tags, nil
		}

		emitText(src[:idx])
		src = src[idx:]

		var closer string
		switch kind {
		case 'e':
			closer = "}}"
		case 's':
			closer = "%}"
		case 'c':
			closer = "#}"
		}
		end := strings.Index(src[2:], closer)
		if end < 0 {
			return nil, fmt.Errorf("line %d: unterminated %q tag", line, src[:2])
		}
		content := src[2 : 2+end]
		tagLine := line
		line += strings.Count(content, "\n")
		src = src[2+end+len(closer):]

		if strings.HasPrefix(content, "-") {
			trimPrev()
			content = content[1:]
		}
		if strings.HasSuffix(content, "-") {
			trimNext = true
			content = content[:len(content)-1]
		}
		content = strings.TrimSpace(content)

		switch kind {
		case 'c':
			// comment, dropped
		case 's':
			// raw blocks swallow everything up to endraw verbatim
			if content == "raw" {
				loc := endrawRe.FindStringIndex(src)
				if loc == nil {
					return nil, fmt.Errorf("line %d: missing endraw", line)
				}
				rawText := src[:loc[0]]
				endTag := src[loc[0]:loc[1]]
				if trimNext {
					rawText = strings.TrimLeft(rawText, " \t\r\n")
					trimNext = false
				}
				if strings.HasPrefix(endTag, "{%-") {
					rawText = strings.TrimRight(rawText, " \t\r\n")
				}
				if strings.HasSuffix(endTag, "-%}") {
					trimNext = true
				}
				if rawText != "" {
					tags = append(tags, rawTag{kind: 't', content: rawText, line: line})
				}
				line += strings.Count(src[:loc[1]], "\n")
				src = src[loc[1]:]
				continue
			}
			tags = append(tags, rawTag{kind: 's', content: content, line: tagLine})
		case 'e':
			tags = append(tags, rawTag{kind: 'e', content: content, line: tagLine})
		}
	}
}

// --- block parser ---

// statement keywords that terminate a nested body.
var blockTerminators = map[string]bool{
	"endif": true, "elif": true, "else": true,
	"endfor": true, "endcall": true, "endmacro": true,
}

func parseTemplate(src string) ([]node, error) {
	tags, err := scanTemplate(src)
	if err != nil {
		return nil, err
	}
	nodes, pos, err := parseBlocks(tags, 0, nil)
	if err != nil {
		return nil, err
	}
	if pos != len(tags) {
		return nil, fmt.Errorf("line %d: unexpected %q", tags[pos].line, firstWord(tags[pos].content))
	}
	return nodes, nil
}

// parseBlocks parses until one of the stop keywords (or end of input when
// stop is nil). It returns the nodes and the position of the stopping tag.
func parseBlocks(tags []rawTag, pos int, stop map[string]bool) ([]node, int, error) {
	var nodes []node
	for pos < len(tags) {
		t := tags[pos]
		switch t.kind {
		case 't':
			nodes = append(nodes, &textNode{text: t.content})
			pos++
		case 'e':
			nodes = append(nodes, &exprTag{src: t.content, line: t.line})
			pos++
		case 's':
			keyword := firstWord(t.content)
			if stop != nil && stop[keyword] {
				return nodes, pos, nil
			}
			if blockTerminators[keyword] {
				return nil, pos, fmt.Errorf("line %d: unexpected %q", t.line, keyword)
			}
			n, next, err := parseStatement(tags, pos)
			if err != nil {
				return nil, pos, err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
			pos = next
		}
	}
	return nodes, pos, nil
}

func parseStatement(tags []rawTag, pos int) (node, int, error) {
	t := tags[pos]
	keyword := firstWord(t.content)
	rest := strings.TrimSpace(strings.TrimPrefix(t.content, keyword))

	switch keyword {
	case "if":
		return parseIf(tags, pos)

	case "for":
		parts := strings.SplitN(rest, " in ", 2)
		if len(parts) != 2 {
			return nil, pos, fmt.Errorf("line %d: malformed for tag", t.line)
		}
		loopVar := strings.TrimSpace(parts[0])
		if strings.Contains(loopVar, ",") {
			return nil, pos, fmt.Errorf("line %d: tuple unpacking in for loops is not supported", t.line)
		}
		body, end, err := parseBlocks(tags, pos+1, map[string]bool{"endfor": true})
		if err != nil {
			return nil, pos, err
		}
		if end >= len(tags) {
			return nil, pos, fmt.Errorf("line %d: missing endfor", t.line)
		}
		return &forTag{loopVar: loopVar, src: strings.TrimSpace(parts[1]), line: t.line, body: body}, end + 1, nil

	case "set":
		eq := strings.Index(rest, "=")
		if eq < 0 {
			return nil, pos, fmt.Errorf("line %d: set requires an assignment", t.line)
		}
		name := strings.TrimSpace(rest[:eq])
		return &setTag{name: name, src: strings.TrimSpace(rest[eq+1:]), line: t.line}, pos + 1, nil

	case "do":
		return &doTag{src: rest, line: t.line}, pos + 1, nil

	case "call":
		body, end, err := parseBlocks(tags, pos+1, map[string]bool{"endcall": true})
		if err != nil {
			return nil, pos, err
		}
		if end >= len(tags) {
			return nil, pos, fmt.Errorf("line %d: missing endcall", t.line)
		}
		return &callTag{src: rest, line: t.line, body: body}, end + 1, nil

	case "macro":
		defs, err := macro.ParseFile("inline", "{% macro "+rest+" %}{% endmacro %}")
		if err != nil || len(defs) == 0 {
			return nil, pos, fmt.Errorf("line %d: malformed macro tag", t.line)
		}
		body, end, err := parseBlocks(tags, pos+1, map[string]bool{"endmacro": true})
		if err != nil {
			return nil, pos, err
		}
		if end >= len(tags) {
			return nil, pos, fmt.Errorf("line %d: missing endmacro", t.line)
		}
		return &localMacroTag{def: defs[0], body: body}, end + 1, nil
	}

	return nil, pos, fmt.Errorf("line %d: unknown tag %q", t.line, keyword)
}

func parseIf(tags []rawTag, pos int) (node, int, error) {
	t := tags[pos]
	out := &ifTag{}
	cond := strings.TrimSpace(strings.TrimPrefix(t.content, "if"))

	stop := map[string]bool{"elif": true, "else": true, "endif": true}
	for {
		body, end, err := parseBlocks(tags, pos+1, stop)
		if err != nil {
			return nil, pos, err
		}
		if end >= len(tags) {
			return nil, pos, fmt.Errorf("line %d: missing endif", t.line)
		}
		out.branches = append(out.branches, branch{cond: cond, line: tags[pos].line, body: body})

		term := firstWord(tags[end].content)
		switch term {
		case "elif":
			cond = strings.TrimSpace(strings.TrimPrefix(tags[end].content, "elif"))
			pos = end
		case "else":
			elseBody, end2, err := parseBlocks(tags, end+1, map[string]bool{"endif": true})
			if err != nil {
				return nil, pos, err
			}
			if end2 >= len(tags) {
				return nil, pos, fmt.Errorf("line %d: missing endif", t.line)
			}
			out.elseBody = elseBody
			return out, end2 + 1, nil
		case "endif":
			return out, end + 1, nil
		}
	}
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			return s[:i]
		}
	}
	return s
}

// --- renderer ---

// renderNodes walks a node list. A non-nil returnSignal terminates only the
// current macro activation; it propagates upward until a macro boundary
// unwraps it.
func renderNodes(nodes []node, sc *scope) (string, *returnSignal, error) {
	var sb strings.Builder

	for _, n := range nodes {
		switch t := n.(type) {
		case *textNode:
			sb.WriteString(t.text)

		case *exprTag:
			e, err := parseExpression(t.src)
			if err != nil {
				return "", nil, &EvalError{Model: sc.ctx.Model, Line: t.line, Message: err.Error()}
			}
			v, err := sc.evalExpr(e)
			if err != nil {
				return "", nil, err
			}
			if rs, ok := v.(*returnSignal); ok {
				return sb.String(), rs, nil
			}
			sb.WriteString(stringify(v))

		case *setTag:
			e, err := parseExpression(t.src)
			if err != nil {
				return "", nil, &EvalError{Model: sc.ctx.Model, Line: t.line, Message: err.Error()}
			}
			v, err := sc.evalExpr(e)
			if err != nil {
				return "", nil, err
			}
			sc.vars[t.name] = v

		case *doTag:
			e, err := parseExpression(t.src)
			if err != nil {
				return "", nil, &EvalError{Model: sc.ctx.Model, Line: t.line, Message: err.Error()}
			}
			v, err := sc.evalExpr(e)
			if err != nil {
				return "", nil, err
			}
			if rs, ok := v.(*returnSignal); ok {
				return sb.String(), rs, nil
			}

		case *ifTag:
			taken := false
			for _, br := range t.branches {
				e, err := parseExpression(br.cond)
				if err != nil {
					return "", nil, &EvalError{Model: sc.ctx.Model, Line: br.line, Message: err.Error()}
				}
				v, err := sc.evalExpr(e)
				if err != nil {
					return "", nil, err
				}
				if truthy(v) {
					text, rs, err := renderNodes(br.body, sc)
					if err != nil {
						return "", nil, err
					}
					sb.WriteString(text)
					if rs != nil {
						return sb.String(), rs, nil
					}
					taken = true
					break
				}
			}
			if !taken && t.elseBody != nil {
				text, rs, err := renderNodes(t.elseBody, sc)
				if err != nil {
					return "", nil, err
				}
				sb.WriteString(text)
				if rs != nil {
					return sb.String(), rs, nil
				}
			}

		case *forTag:
			text, rs, err := renderFor(t, sc)
			if err != nil {
				return "", nil, err
			}
			sb.WriteString(text)
			if rs != nil {
				return sb.String(), rs, nil
			}

		case *callTag:
			if err := renderCallBlock(t, sc); err != nil {
				return "", nil, err
			}

		case *localMacroTag:
			def := t.def
			body := t.body
			sc.vars[def.Name] = callable(func(args []any, kwargs map[string]any) (any, error) {
				return sc.ctx.invokeParsed(sc.root(), def, body, args, kwargs)
			})
		}
	}
	return sb.String(), nil, nil
}

func renderFor(t *forTag, sc *scope) (string, *returnSignal, error) {
	e, err := parseExpression(t.src)
	if err != nil {
		return "", nil, &EvalError{Model: sc.ctx.Model, Line: t.line, Message: err.Error()}
	}
	seqVal, err := sc.evalExpr(e)
	if err != nil {
		return "", nil, err
	}

	var items []any
	switch s := seqVal.(type) {
	case []any:
		items = s
	case string:
		for _, r := range s {
			items = append(items, string(r))
		}
	case map[string]any:
		items = mapKeys(s)
	case nil:
		// iterating an undefined value renders nothing
	default:
		return "", nil, &EvalError{Model: sc.ctx.Model, Line: t.line,
			Message: fmt.Sprintf("cannot iterate value of type %T", seqVal)}
	}

	var sb strings.Builder
	for i, item := range items {
		iter := sc.child()
		iter.vars[t.loopVar] = item
		iter.vars["loop"] = map[string]any{
			"index":  i + 1,
			"index0": i,
			"first":  i == 0,
			"last":   i == len(items)-1,
			"length": len(items),
		}
		text, rs, err := renderNodes(t.body, iter)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(text)
		if rs != nil {
			return sb.String(), rs, nil
		}
	}
	return sb.String(), nil, nil
}

// renderCallBlock handles `{% call expr(...) %}body{% endcall %}`: the body
// is exposed to the callee as a `caller` callable. The statement() builtin
// uses it to execute nested template logic while suppressing its text.
func renderCallBlock(t *callTag, sc *scope) error {
	e, err := parseExpression(t.src)
	if err != nil {
		return &EvalError{Model: sc.ctx.Model, Line: t.line, Message: err.Error()}
	}
	call, ok := e.(*eCall)
	if !ok {
		return &EvalError{Model: sc.ctx.Model, Line: t.line, Message: "call tag requires a call expression"}
	}

	caller := callable(func([]any, map[string]any) (any, error) {
		text, _, err := renderNodes(t.body, sc.child())
		return text, err
	})

	fn, err := sc.evalExpr(call.callee)
	if err != nil {
		return err
	}
	c, ok := fn.(callable)
	if !ok {
		if fn == nil {
			return nil
		}
		return &EvalError{Model: sc.ctx.Model, Line: t.line, Message: fmt.Sprintf("call target is not callable (%T)", fn)}
	}

	args := make([]any, 0, len(call.args))
	for _, a := range call.args {
		v, err := sc.evalExpr(a)
		if err != nil {
			return err
		}
		args = append(args, v)
	}
	kwargs := make(map[string]any, len(call.kwargs)+1)
	for _, kw := range call.kwargs {
		v, err := sc.evalExpr(kw.val)
		if err != nil {
			return err
		}
		kwargs[kw.name] = v
	}
	kwargs["caller"] = caller

	prev := sc.ctx.callScope
	sc.ctx.callScope = sc
	defer func() { sc.ctx.callScope = prev }()
	_, err = c(args, kwargs)
	return err
}

// macroCallable wraps a registry definition as a template callable.
func (sc *scope) macroCallable(def *macro.Definition) callable {
	return func(args []any, kwargs map[string]any) (any, error) {
		return sc.ctx.invokeMacro(sc.root(), def, args, kwargs)
	}
}

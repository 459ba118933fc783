package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dbtbridge/internal/macro"
	"github.com/leapstack-labs/dbtbridge/internal/resolve"
	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

func testNames(t *testing.T) *resolve.NameMap {
	t.Helper()
	names := resolve.NewNameMap()
	names.SetModel("orders", "analytics.orders")
	names.SetModel("customers", "analytics_marts.customers")
	names.SetSource("raw", "events", "raw.events_v1")
	names.Freeze()
	return names
}

func testRegistry(t *testing.T, sources ...string) *macro.Registry {
	t.Helper()
	r := macro.NewRegistry()
	for _, src := range sources {
		defs, err := macro.ParseFile("test.sql", src)
		require.NoError(t, err)
		r.Register(defs, macro.ProjectNamespace)
	}
	return r
}

func renderText(t *testing.T, src string, vars map[string]any, reg *macro.Registry) (string, *Context) {
	t.Helper()
	ctx := NewContext("my_model", "analytics.my_model", "snowflake", testNames(t), vars, reg)
	out, err := NewEvaluator().Render(src, ctx)
	require.NoError(t, err)
	return out, ctx
}

func TestRender_PlainSQLPassthrough(t *testing.T) {
	src := "select id, amount\nfrom payments\nwhere amount > 0\n"
	out, ctx := renderText(t, src, nil, nil)
	assert.Equal(t, src, out)
	assert.Empty(t, ctx.Diagnostics())
}

func TestRender_Expressions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"arithmetic precedence", "{{ 1 + 2 * 3 }}", "7"},
		{"integer division stays float", "{{ 7 / 2 }}", "3.5"},
		{"modulo", "{{ 7 % 3 }}", "1"},
		{"string concat tilde", "{{ 'a' ~ 'b' ~ 1 }}", "ab1"},
		{"comparison", "{{ 2 > 1 }}", "True"},
		{"ternary", "{{ 'y' if 1 > 2 else 'n' }}", "n"},
		{"not", "{{ not false }}", "True"},
		{"in list", "{{ 'b' in ['a', 'b'] }}", "True"},
		{"is none test", "{{ none is none }}", "True"},
		{"is not none", "{{ 'x' is not none }}", "True"},
		{"negative index", "{{ ['a', 'b', 'c'][-1] }}", "c"},
		{"list display", "{{ ['a', 1] }}", "['a', 1]"},
		{"dict index", "{{ {'field': 'x'}['field'] }}", "x"},
		{"dict display sorts keys", "{{ {'b': 2, 'a': 1} }}", "{'a': 1, 'b': 2}"},
		{"string upper", "{{ 'shout'.upper() }}", "SHOUT"},
		{"split and index", "{{ 'a,b,c'.split(',')[1] }}", "b"},
		{"bool render", "{{ true }}", "True"},
		{"none renders empty", "x{{ none }}y", "xy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := renderText(t, tt.src, nil, nil)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRender_ControlFlow(t *testing.T) {
	src := `{% if mode == 'full' %}full{% elif mode == 'inc' %}incremental{% else %}other{% endif %}`

	out, _ := renderText(t, src, map[string]any{"mode": "inc"}, nil)
	assert.Equal(t, "incremental", out)
	out, _ = renderText(t, src, map[string]any{"mode": "x"}, nil)
	assert.Equal(t, "other", out)
}

func TestRender_ForLoop(t *testing.T) {
	src := `{% for c in cols %}{{ c }}{% if not loop.last %}, {% endif %}{% endfor %}`
	out, _ := renderText(t, src, map[string]any{"cols": []any{"a", "b", "c"}}, nil)
	assert.Equal(t, "a, b, c", out)

	src = `{% for c in cols %}{{ loop.index }}:{{ c }} {% endfor %}`
	out, _ = renderText(t, src, map[string]any{"cols": []any{"x", "y"}}, nil)
	assert.Equal(t, "1:x 2:y ", out)
}

func TestRender_ForLoopOverUndefined(t *testing.T) {
	out, ctx := renderText(t, "{% for x in missing %}X{% endfor %}", nil, nil)
	assert.Empty(t, out)
	warnings, _ := core.CountBySeverity(ctx.Diagnostics())
	assert.Equal(t, 1, warnings)
}

func TestRender_SetAndDo(t *testing.T) {
	src := `{% set cols = ['a'] %}{% set cols = cols.append('b') %}{{ cols }}`
	out, _ := renderText(t, src, nil, nil)
	assert.Equal(t, "['a', 'b']", out)
}

func TestRender_CommentsRawAndWhitespaceControl(t *testing.T) {
	out, _ := renderText(t, "a{# dropped #}b", nil, nil)
	assert.Equal(t, "ab", out)

	out, _ = renderText(t, "{% raw %}{{ not_evaluated }}{% endraw %}", nil, nil)
	assert.Equal(t, "{{ not_evaluated }}", out)

	out, _ = renderText(t, "a {%- if true -%} b {%- endif -%} c", nil, nil)
	assert.Equal(t, "abc", out)

	// whitespace-control markers apply to the raw text itself, not the text
	// following endraw
	out, _ = renderText(t, "a {%- raw -%} {{ kept }} {%- endraw -%} b", nil, nil)
	assert.Equal(t, "a{{ kept }}b", out)

	out, _ = renderText(t, "{% raw -%}   x{% endraw %}-tail", nil, nil)
	assert.Equal(t, "x-tail", out)
}

func TestRender_RefAndSource(t *testing.T) {
	out, ctx := renderText(t, "select * from {{ ref('orders') }}", nil, nil)
	assert.Equal(t, "select * from analytics.orders", out)
	assert.Empty(t, ctx.Diagnostics())

	out, ctx = renderText(t, "{{ ref('some_pkg', 'customers') }}", nil, nil)
	assert.Equal(t, "analytics_marts.customers", out)
	assert.Empty(t, ctx.Diagnostics())

	out, ctx = renderText(t, "{{ source('raw', 'events') }}", nil, nil)
	assert.Equal(t, "raw.events_v1", out)
	assert.Empty(t, ctx.Diagnostics())
}

func TestRender_UnresolvedRefWarnsAndSubstitutesName(t *testing.T) {
	out, ctx := renderText(t, "select * from {{ ref('ghost') }}", nil, nil)
	assert.Equal(t, "select * from ghost", out)
	warnings, errors := core.CountBySeverity(ctx.Diagnostics())
	assert.Equal(t, 1, warnings)
	assert.Zero(t, errors)
	assert.Contains(t, ctx.Diagnostics()[0].Message, "ghost")
}

func TestRender_VarAndEnvVar(t *testing.T) {
	out, _ := renderText(t, "{{ var('start_date', '2020-01-01') }}", nil, nil)
	assert.Equal(t, "2020-01-01", out)

	out, _ = renderText(t, "{{ var('start_date') }}", map[string]any{"start_date": "2024-06-01"}, nil)
	assert.Equal(t, "2024-06-01", out)

	ctx := NewContext("m", "s.m", "snowflake", testNames(t), nil, nil)
	ctx.LookupEnv = func(key string) (string, bool) {
		if key == "WAREHOUSE" {
			return "wh_small", true
		}
		return "", false
	}
	out, err := NewEvaluator().Render("{{ env_var('WAREHOUSE') }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "wh_small", out)
}

func TestRender_ConfigCapturedNotInterpreted(t *testing.T) {
	src := `{{ config(materialized='table', schema='finance', tags=['pii']) }}select 1`
	out, ctx := renderText(t, src, nil, nil)
	assert.Equal(t, "select 1", out)
	cap := ctx.ConfigCapture()
	assert.Equal(t, "table", cap["materialized"])
	assert.Equal(t, "finance", cap["schema"])
	assert.Equal(t, []any{"pii"}, cap["tags"])
}

func TestRender_ConfigDictValue(t *testing.T) {
	_, ctx := renderText(t, "{{ config(partition_by={'field': 'created_at', 'data_type': 'date'}) }}", nil, nil)
	assert.Equal(t, map[string]any{"field": "created_at", "data_type": "date"}, ctx.ConfigCapture()["partition_by"])
}

func TestRender_InlineMacroAndEarlyReturn(t *testing.T) {
	src := `{% macro pick(flag) %}{% if flag %}{{ return(42) }}{% endif %}fallthrough{% endmacro %}{{ pick(true) }}|{{ pick(false) }}`
	out, _ := renderText(t, src, nil, nil)
	assert.Equal(t, "42|fallthrough", out)
}

func TestRender_ReturnValueKeepsType(t *testing.T) {
	src := `{% macro n() %}{{ return('123') }}{% endmacro %}{{ n() + 1 }}`
	out, _ := renderText(t, src, nil, nil)
	assert.Equal(t, "124", out)

	src = `{% macro f() %}{{ return('1.5') }}{% endmacro %}{{ f() + 0.5 }}`
	out, _ = renderText(t, src, nil, nil)
	assert.Equal(t, "2", out)
}

func TestRender_MacroResultTrimmed(t *testing.T) {
	reg := testRegistry(t, "{% macro pad() %}\n  padded  \n{% endmacro %}")
	out, _ := renderText(t, "[{{ pad() }}]", nil, reg)
	assert.Equal(t, "[padded]", out)
}

func TestRender_MacroArgBinding(t *testing.T) {
	reg := testRegistry(t, `{% macro greet(a, b) %}{{ a }}-{{ b }}{% endmacro %}`)

	out, ctx := renderText(t, "{{ greet('x', b='y') }}", nil, reg)
	assert.Equal(t, "x-y", out)
	assert.Empty(t, ctx.Diagnostics())

	// Missing trailing argument is absent, rendering empty plus a warning.
	out, ctx = renderText(t, "{{ greet('x') }}", nil, reg)
	assert.Equal(t, "x-", out)
	warnings, _ := core.CountBySeverity(ctx.Diagnostics())
	assert.Equal(t, 1, warnings)
}

func TestRender_MacroKwargsExposed(t *testing.T) {
	reg := testRegistry(t, `{% macro opts() %}{{ kwargs.get('limit', 10) }}{% endmacro %}`)
	out, _ := renderText(t, "{{ opts(limit=5) }}|{{ opts() }}", nil, reg)
	assert.Equal(t, "5|10", out)
}

func TestRender_AdapterDispatch(t *testing.T) {
	reg := testRegistry(t,
		`{% macro snowflake__now_fn() %}SYSDATE(){% endmacro %}`,
		`{% macro default__now_fn() %}CURRENT_TIMESTAMP{% endmacro %}`,
	)
	out, ctx := renderText(t, "{{ adapter.dispatch('now_fn')() }}", nil, reg)
	assert.Equal(t, "SYSDATE()", out)
	assert.Empty(t, ctx.Diagnostics())

	ctx2 := NewContext("m", "s.m", "duckdb", testNames(t), nil, reg)
	out2, err := NewEvaluator().Render("{{ adapter.dispatch('now_fn')() }}", ctx2)
	require.NoError(t, err)
	assert.Equal(t, "CURRENT_TIMESTAMP", out2)
}

func TestRender_DispatchMissingRendersEmpty(t *testing.T) {
	out, ctx := renderText(t, "x{{ adapter.dispatch('nope')() }}y", nil, testRegistry(t))
	assert.Equal(t, "xy", out)
	warnings, _ := core.CountBySeverity(ctx.Diagnostics())
	assert.Equal(t, 1, warnings)
}

func TestRender_StatementSimulation(t *testing.T) {
	src := `{% call statement('max_id') %}select max(id) from {{ ref('orders') }}{% endcall %}{% set r = load_result('max_id') %}{{ r['data'][0][0] }}`
	out, _ := renderText(t, src, nil, nil)
	assert.Equal(t, "3650", out)
}

func TestRender_ExecuteIsTrue(t *testing.T) {
	out, _ := renderText(t, "{% if execute %}yes{% else %}no{% endif %}", nil, nil)
	assert.Equal(t, "yes", out)
}

func TestRender_ThisAndTarget(t *testing.T) {
	out, _ := renderText(t, "{{ this }}|{{ target.type }}", nil, nil)
	assert.Equal(t, "analytics.my_model|snowflake", out)
}

func TestRender_UndefinedNameWarns(t *testing.T) {
	out, ctx := renderText(t, "select {{ mystery }} from t", nil, nil)
	assert.Equal(t, "select  from t", out)
	warnings, _ := core.CountBySeverity(ctx.Diagnostics())
	assert.Equal(t, 1, warnings)
	assert.Contains(t, ctx.Diagnostics()[0].Message, "mystery")
}

func TestRender_RaiseCompilerError(t *testing.T) {
	ctx := NewContext("m", "s.m", "snowflake", testNames(t), nil, nil)
	_, err := NewEvaluator().Render(`{{ exceptions.raise_compiler_error('bad model') }}`, ctx)
	require.Error(t, err)
	var eerr *EvalError
	require.ErrorAs(t, err, &eerr)
	assert.Contains(t, eerr.Message, "bad model")
}

func TestRender_RecursionCeiling(t *testing.T) {
	reg := testRegistry(t, `{% macro loop_forever() %}{{ loop_forever() }}{% endmacro %}`)
	ctx := NewContext("m", "s.m", "snowflake", testNames(t), nil, reg)
	_, err := NewEvaluator().Render("{{ loop_forever() }}", ctx)
	require.Error(t, err)
	var rerr *RecursionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, DefaultMaxDepth, rerr.Depth)
	assert.Contains(t, err.Error(), "loop_forever")
}

func TestRender_RecursionCeilingThroughDispatch(t *testing.T) {
	// A cycle routed through adapter.dispatch must trip the same ceiling as
	// a direct self-call instead of recursing unbounded.
	reg := testRegistry(t, `{% macro default__loopy() %}{{ adapter.dispatch('loopy')() }}{% endmacro %}`)
	ctx := NewContext("m", "s.m", "snowflake", testNames(t), nil, reg)
	_, err := NewEvaluator().Render("{{ adapter.dispatch('loopy')() }}", ctx)
	require.Error(t, err)
	var rerr *RecursionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, DefaultMaxDepth, rerr.Depth)
	assert.Contains(t, err.Error(), "loopy")
}

func TestRender_RecursionCeilingThroughStatementBody(t *testing.T) {
	reg := testRegistry(t, `{% macro spin() %}{% do statement('q', True, '{{ spin() }}') %}{% endmacro %}`)
	ctx := NewContext("m", "s.m", "snowflake", testNames(t), nil, reg)
	_, err := NewEvaluator().Render("{{ spin() }}", ctx)
	require.Error(t, err)
	var rerr *RecursionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, DefaultMaxDepth, rerr.Depth)
}

func TestRender_StatementBodySeesCallerBindings(t *testing.T) {
	reg := testRegistry(t, `{% macro record_grain(g) %}{% do statement('q', True, '{{ config(grain=g) }}') %}{% endmacro %}`)
	_, ctx := renderText(t, "{{ record_grain('daily') }}", nil, reg)
	assert.Equal(t, "daily", ctx.ConfigCapture()["grain"])
	assert.Empty(t, ctx.Diagnostics())
}

func TestRender_SyntaxErrors(t *testing.T) {
	ctx := NewContext("m", "s.m", "snowflake", testNames(t), nil, nil)
	_, err := NewEvaluator().Render("{% if x %}never closed", ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endif")

	_, err = NewEvaluator().Render("{{ unterminated", ctx)
	require.Error(t, err)
}

func TestRender_CallBlockCaller(t *testing.T) {
	reg := testRegistry(t, `{% macro wrap() %}<{{ caller() }}>{% endmacro %}`)
	out, _ := renderText(t, `{% call wrap() %}inner{% endcall %}`, nil, reg)
	// call blocks execute the callee but discard its rendered output
	assert.Empty(t, out)
}

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderShim(t *testing.T, src string) string {
	t.Helper()
	ctx := NewContext("m", "s.m", "snowflake", nil, nil, nil)
	out, err := NewEvaluator().Render(src, ctx)
	require.NoError(t, err)
	return out
}

func TestCrossDB_Types(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"{{ type_string() }}", "TEXT"},
		{"{{ type_int() }}", "INT"},
		{"{{ type_bigint() }}", "BIGINT"},
		{"{{ type_numeric() }}", "NUMERIC(28,6)"},
		{"{{ type_boolean() }}", "BOOLEAN"},
		{"{{ type_float() }}", "FLOAT"},
		{"{{ current_timestamp() }}", "CURRENT_TIMESTAMP"},
		{"{{ intersect() }}", "INTERSECT"},
		{"{{ except() }}", "EXCEPT"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, renderShim(t, tt.src))
		})
	}
}

func TestCrossDB_Functions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"concat varargs", "{{ concat('f0', 'f1') }}", "f0 || f1"},
		{"concat list form", "{{ concat(['a', 'b', 'c']) }}", "a || b || c"},
		{"hash", "{{ hash('email') }}", "MD5(email)"},
		{"escape single quotes", "{{ escape_single_quotes(\"O'Brien\") }}", "O''Brien"},
		{"string literal", "{{ string_literal(\"O'Brien\") }}", "'O''Brien'"},
		{"cast", "{{ cast('amount', 'numeric') }}", "CAST(amount AS numeric)"},
		{"safe cast", "{{ safe_cast('amount', type_int()) }}", "TRY_CAST(amount AS INT)"},
		{"date trunc", "{{ date_trunc('month', 'created_at') }}", "DATE_TRUNC('month', created_at)"},
		{"datediff", "{{ datediff('start_d', 'end_d', 'day') }}", "DATEDIFF(day, start_d, end_d)"},
		{"via dbt object", "{{ dbt.hash('id') }}", "MD5(id)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderShim(t, tt.src))
		})
	}
}

func TestCrossDB_DateAdd(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"positive int", "{{ dateadd('day', 3, 'order_date') }}", "order_date + INTERVAL '3' day"},
		{"negative int flips operator", "{{ dateadd('day', -3, 'order_date') }}", "order_date - INTERVAL '3' day"},
		{"zero", "{{ dateadd('month', 0, 'd') }}", "d + INTERVAL '0' month"},
		{"string interval passes through", "{{ dateadd('hour', '-12', 'ts') }}", "ts + INTERVAL '-12' hour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderShim(t, tt.src))
		})
	}
}

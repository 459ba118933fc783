package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) []*Definition {
	t.Helper()
	defs, err := ParseFile("test.sql", src)
	require.NoError(t, err)
	return defs
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register(mustParse(t, "{% macro a() %}1{% endmacro %}{% macro b() %}2{% endmacro %}"), ProjectNamespace)
	r.Register(mustParse(t, "{% macro c() %}3{% endmacro %}"), "dbt_utils")
	r.Register(mustParse(t, "{% macro d() %}4{% endmacro %}"), "audit_helper")

	assert.Equal(t, 2, r.ProjectCount())
	assert.Equal(t, []string{"dbt_utils", "audit_helper"}, r.Packages())
	assert.True(t, r.Has("a"))
	assert.True(t, r.Has("c"))
	assert.False(t, r.Has("z"))
}

func TestDispatch_Order(t *testing.T) {
	project := `
{% macro default__money(c) %}project default{% endmacro %}
`
	utils := `
{% macro snowflake__money(c) %}utils snowflake{% endmacro %}
{% macro default__money(c) %}utils default{% endmacro %}
{% macro default__only_in_utils() %}utils only{% endmacro %}
`
	other := `
{% macro postgres__elsewhere() %}other postgres{% endmacro %}
`

	r := NewRegistry()
	r.Register(mustParse(t, project), ProjectNamespace)
	r.Register(mustParse(t, utils), "dbt_utils")
	r.Register(mustParse(t, other), "other_pkg")

	t.Run("project default beats package adapter-exact", func(t *testing.T) {
		def, diags := r.Dispatch("money", "snowflake", "", "m")
		require.NotNil(t, def)
		assert.Empty(t, diags)
		assert.Equal(t, "default__money", def.Name)
		assert.Equal(t, ProjectNamespace, def.Package)
	})

	t.Run("named package consulted after project", func(t *testing.T) {
		def, diags := r.Dispatch("only_in_utils", "snowflake", "dbt_utils", "m")
		require.NotNil(t, def)
		assert.Empty(t, diags)
		assert.Equal(t, "dbt_utils", def.Package)
	})

	t.Run("falls back to scanning all packages", func(t *testing.T) {
		def, diags := r.Dispatch("elsewhere", "postgres", "", "m")
		require.NotNil(t, def)
		assert.Empty(t, diags)
		assert.Equal(t, "other_pkg", def.Package)
	})

	t.Run("adapter exact wins inside one namespace", func(t *testing.T) {
		r2 := NewRegistry()
		r2.Register(mustParse(t, utils), "dbt_utils")
		def, _ := r2.Dispatch("money", "snowflake", "", "m")
		require.NotNil(t, def)
		assert.Equal(t, "snowflake__money", def.Name)
	})

	t.Run("missing macro warns and returns nil", func(t *testing.T) {
		def, diags := r.Dispatch("nope", "snowflake", "", "my_model")
		assert.Nil(t, def)
		require.Len(t, diags, 1)
		assert.Contains(t, diags[0].Message, "nope")
		assert.Equal(t, "my_model", diags[0].Model)
	})
}

func TestResolve_VariantSelection(t *testing.T) {
	src := `
{% macro bigquery__fmt() %}bq{% endmacro %}
{% macro default__fmt() %}default{% endmacro %}
{% macro plain() %}plain{% endmacro %}
`
	r := NewRegistry()
	r.Register(mustParse(t, src), ProjectNamespace)

	def, diags := r.Resolve("fmt", "bigquery", "m")
	require.NotNil(t, def)
	assert.Empty(t, diags)
	assert.Equal(t, "bigquery__fmt", def.Name)

	def, diags = r.Resolve("fmt", "duckdb", "m")
	require.NotNil(t, def)
	assert.Empty(t, diags)
	assert.Equal(t, "default__fmt", def.Name)

	def, diags = r.Resolve("plain", "duckdb", "m")
	require.NotNil(t, def)
	assert.Empty(t, diags)
	assert.Equal(t, "plain", def.Name)

	def, diags = r.Resolve("missing", "duckdb", "m")
	assert.Nil(t, def)
	assert.Empty(t, diags)
}

func TestResolve_FirstRegisteredFallbackWarns(t *testing.T) {
	src := `{% macro snowflake__fmt() %}sf{% endmacro %}`
	r := NewRegistry()
	r.Register(mustParse(t, src), ProjectNamespace)

	def, diags := r.Resolve("fmt", "postgres", "my_model")
	require.NotNil(t, def)
	assert.Equal(t, "snowflake__fmt", def.Name)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "falling back")
}

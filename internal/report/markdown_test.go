package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

func sampleResults() []core.ConversionResult {
	return []core.ConversionResult{
		{
			Model: "stg_orders", Relation: "analytics.stg_orders",
			Tags: []string{"stg", "daily"}, Status: core.ConversionOK, RenderMS: 3,
		},
		{
			Model: "fct_orders", Relation: "marts.fct_orders",
			Status: core.ConversionWarning,
			Diagnostics: []core.Diagnostic{
				core.Warn("fct_orders", "ref(\"ghost\") did not resolve"),
			},
		},
		{
			Model: "broken", Relation: "marts.broken",
			Status: core.ConversionFailed,
			Diagnostics: []core.Diagnostic{
				core.Err("broken", "missing endif"),
			},
		},
	}
}

func TestMarkdown(t *testing.T) {
	info := RunInfo{
		Project:       "shop",
		Adapter:       "snowflake",
		SourceDialect: "snowflake",
		TargetDialect: "bigquery",
		StartedAt:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	md := Markdown(info, sampleResults(), []core.Diagnostic{core.Warn("", "skipping macro file: bad.sql")})

	assert.Contains(t, md, "# Import report: shop")
	assert.Contains(t, md, "snowflake -> bigquery")
	assert.Contains(t, md, "3 (1 ok, 1 with warnings, 1 failed)")
	assert.Contains(t, md, "| stg_orders | analytics.stg_orders | ok | stg, daily |")
	assert.Contains(t, md, "missing endif")
	assert.Contains(t, md, "skipping macro file")
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, sampleResults())
	out := buf.String()

	assert.Contains(t, out, "stg_orders")
	assert.Contains(t, out, "3 models: 1 ok, 1 with warnings, 1 failed")
}

func TestDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	Diagnostics(&buf, sampleResults())
	out := buf.String()

	assert.NotContains(t, out, "stg_orders")
	assert.Contains(t, out, "fct_orders")
	assert.Contains(t, out, "warning: ref(\"ghost\") did not resolve")
	assert.Contains(t, out, "error: missing endif")
}

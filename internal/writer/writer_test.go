package writer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dbtbridge/internal/project"
	"github.com/leapstack-labs/dbtbridge/internal/report"
	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

func fixtureOutput(dir string) Output {
	return Output{
		Dir: dir,
		Project: &project.Project{
			File: &project.File{Name: "shop"},
			Models: []*core.Model{
				{Name: "stg_orders", FolderPath: []string{"staging"}, InlineConfig: map[string]any{"materialized": "view"}},
				{Name: "broken", FolderPath: []string{"marts"}},
			},
		},
		Info: report.RunInfo{
			Project:   "shop",
			Adapter:   "snowflake",
			StartedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	results := []core.ConversionResult{
		{
			Model: "stg_orders", Relation: "analytics.stg_orders",
			Tags: []string{"stg"}, SQL: "select 1\n", Status: core.ConversionOK,
		},
		{
			Model: "broken", Relation: "marts.broken", Status: core.ConversionFailed,
		},
	}

	written, err := Write(fixtureOutput(dir), results, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join("models", "staging", "stg_orders.sql"),
		"leapsql.yaml",
		"report.md",
	}, written)

	data, err := os.ReadFile(filepath.Join(dir, "models", "staging", "stg_orders.sql"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "-- Imported from shop on 2026-08-01")
	assert.Contains(t, content, "-- Relation: analytics.stg_orders")
	assert.Contains(t, content, "-- Materialization: view")
	assert.Contains(t, content, "-- Tags: stg")
	assert.Contains(t, content, "select 1")

	// failed models produce no SQL file
	_, err = os.Stat(filepath.Join(dir, "models", "marts", "broken.sql"))
	assert.True(t, os.IsNotExist(err))

	cfg, err := os.ReadFile(filepath.Join(dir, "leapsql.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "name: shop")
	assert.Contains(t, string(cfg), "type: snowflake")

	md, err := os.ReadFile(filepath.Join(dir, "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Import report: shop")
}

func TestWrite_DryRun(t *testing.T) {
	dir := t.TempDir()
	out := fixtureOutput(dir)
	out.DryRun = true

	written, err := Write(out, []core.ConversionResult{
		{Model: "stg_orders", SQL: "select 1", Status: core.ConversionOK},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, written)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResults() []core.ConversionResult {
	return []core.ConversionResult{
		{Model: "stg_orders", Relation: "analytics.stg_orders", Schema: "analytics", SQL: "select 1", Status: core.ConversionOK},
		{Model: "fct_orders", Relation: "marts.fct_orders", Schema: "marts", SQL: "select 2", Status: core.ConversionWarning},
		{Model: "broken", Relation: "marts.broken", Schema: "marts", Status: core.ConversionFailed},
	}
}

func TestStore_RunLifecycle(t *testing.T) {
	s := openTestStore(t)

	run, err := s.BeginRun("shop", "snowflake", "bigquery")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	require.NoError(t, s.FinishRun(run, sampleResults()))
	assert.Equal(t, 3, run.Models)
	assert.Equal(t, 1, run.Warnings)
	assert.Equal(t, 1, run.Failures)

	last, err := s.LastRun("shop")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, run.ID, last.ID)
	assert.Equal(t, "snowflake", last.Adapter)
	assert.Equal(t, "bigquery", last.TargetDialect)
	assert.False(t, last.CompletedAt.IsZero())

	hashes, err := s.ModelHashes(run.ID)
	require.NoError(t, err)
	require.Len(t, hashes, 3)
	assert.Equal(t, HashSQL("select 1"), hashes["stg_orders"])
}

func TestStore_LastRunMissingProject(t *testing.T) {
	s := openTestStore(t)
	last, err := s.LastRun("nope")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestStore_Changed(t *testing.T) {
	s := openTestStore(t)
	results := sampleResults()

	// No prior run: everything is new.
	changed, err := s.Changed("shop", results)
	require.NoError(t, err)
	assert.Len(t, changed, 3)

	run, err := s.BeginRun("shop", "snowflake", "")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(run, results))

	// Unchanged re-run.
	changed, err = s.Changed("shop", results)
	require.NoError(t, err)
	assert.Empty(t, changed)

	// One model's output changes.
	results[1].SQL = "select 2, 3"
	changed, err = s.Changed("shop", results)
	require.NoError(t, err)
	assert.Equal(t, []string{"fct_orders"}, changed)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultProjectDir, cfg.ProjectDir)
	assert.Equal(t, DefaultOutDir, cfg.OutDir)
	assert.Equal(t, DefaultStateFile, cfg.StatePath)
	assert.False(t, cfg.Verbose)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dbtbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project_dir: /srv/shop
adapter: snowflake
target_dialect: bigquery
vars:
  start_date: "2020-01-01"
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/shop", cfg.ProjectDir)
	assert.Equal(t, "snowflake", cfg.Adapter)
	assert.Equal(t, "bigquery", cfg.TargetDialect)
	assert.Equal(t, map[string]string{"start_date": "2020-01-01"}, cfg.Vars)
	assert.Equal(t, path, ConfigFileUsed())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dbtbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("adapter: postgres\n"), 0o644))

	t.Setenv("DBTBRIDGE_ADAPTER", "duckdb")
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", cfg.Adapter)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	t.Setenv("DBTBRIDGE_ADAPTER", "duckdb")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("adapter", "", "")
	flags.String("target-dialect", "", "")
	require.NoError(t, flags.Parse([]string{"--adapter=snowflake", "--target-dialect=postgres"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "snowflake", cfg.Adapter)
	assert.Equal(t, "postgres", cfg.TargetDialect)
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("out", "flag-default", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, DefaultOutDir, cfg.OutDir)
}

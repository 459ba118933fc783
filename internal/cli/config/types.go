// Package config provides configuration management for the dbtbridge CLI.
//
// Configuration is layered: built-in defaults, then an optional
// dbtbridge.yaml file, then DBTBRIDGE_* environment variables, then flags.
package config

// Config holds all CLI configuration options.
type Config struct {
	// ProjectDir is the source project to import.
	ProjectDir string `koanf:"project_dir"`
	// OutDir is where converted output is written.
	OutDir string `koanf:"out"`
	// Adapter selects the macro dispatch target.
	Adapter string `koanf:"adapter"`
	// SourceDialect is the dialect the project's SQL was written for.
	SourceDialect string `koanf:"source_dialect"`
	// TargetDialect converts output SQL when set.
	TargetDialect string `koanf:"target_dialect"`
	// Schema overrides the base schema from the source profile.
	Schema string `koanf:"schema"`
	// StatePath is the import history database.
	StatePath string `koanf:"state_path"`
	// Vars are run-level variable overrides.
	Vars map[string]string `koanf:"vars"`
	// Concurrency caps parallel renders.
	Concurrency int  `koanf:"concurrency"`
	Verbose     bool `koanf:"verbose"`
}

// Default configuration values.
const (
	DefaultProjectDir = "."
	DefaultOutDir     = "imported"
	DefaultStateFile  = ".dbtbridge/state.db"
)

// EngineVars converts the string-typed var overrides to the loosely typed
// map templates consume.
func (c *Config) EngineVars() map[string]any {
	if len(c.Vars) == 0 {
		return nil
	}
	vars := make(map[string]any, len(c.Vars))
	for k, v := range c.Vars {
		vars[k] = v
	}
	return vars
}

// Package project loads dbt-style source projects: the project file, the
// optional profiles file, model and macro sources, and property (schema.yml)
// files. Parsing is tolerant; a convertible project is often not a fully
// valid one.
package project

import (
	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// File mirrors the dbt_project.yml layout. Only fields the converter needs
// are mapped; unknown keys are ignored.
type File struct {
	Name          string         `yaml:"name"`
	Version       string         `yaml:"version"`
	Profile       string         `yaml:"profile"`
	ConfigVersion int            `yaml:"config-version"`
	ModelPaths    []string       `yaml:"model-paths"`
	SourcePaths   []string       `yaml:"source-paths"` // legacy alias of model-paths
	MacroPaths    []string       `yaml:"macro-paths"`
	TestPaths     []string       `yaml:"test-paths"`
	Vars          map[string]any `yaml:"vars"`
	Models        map[string]any `yaml:"models"`
}

// ProfileOutput is one output block from profiles.yml.
type ProfileOutput struct {
	Type     string `mapstructure:"type"`
	Schema   string `mapstructure:"schema"`
	Database string `mapstructure:"dbname"`
	Dataset  string `mapstructure:"dataset"` // bigquery spelling of schema
	Threads  int    `mapstructure:"threads"`
}

// EffectiveSchema returns the output schema, accounting for the bigquery
// dataset spelling.
func (o *ProfileOutput) EffectiveSchema() string {
	if o.Schema != "" {
		return o.Schema
	}
	return o.Dataset
}

// MacroSource is one macro file's raw content plus its owning namespace
// ("" for the project itself, the package name for installed packages).
type MacroSource struct {
	Path      string
	Namespace string
	Content   string
}

// Project is a fully loaded source project.
type Project struct {
	// Root is the project directory.
	Root string
	// File is the parsed project file.
	File *File
	// ConfigTree is the models: config subtree relative to the models root
	// (the project-name level is stripped when present).
	ConfigTree map[string]any
	// Vars holds project-level variable bindings.
	Vars map[string]any
	// Profile is the active output from profiles.yml, nil when absent.
	Profile *ProfileOutput
	// Models are the discovered model files in walk order.
	Models []*core.Model
	// Macros are the discovered macro files, project first, then packages
	// in directory order.
	Macros []*MacroSource
	// Sources are the source tables declared in property files.
	Sources []core.Source
}

// propertyFile mirrors a schema.yml property file.
type propertyFile struct {
	Version int                  `yaml:"version"`
	Models  []core.ModelMetadata `yaml:"models"`
	Sources []sourceBlock        `yaml:"sources"`
}

type sourceBlock struct {
	Name        string        `yaml:"name"`
	Schema      string        `yaml:"schema"`
	Database    string        `yaml:"database"`
	Description string        `yaml:"description"`
	Tables      []sourceTable `yaml:"tables"`
}

type sourceTable struct {
	Name        string `yaml:"name"`
	Identifier  string `yaml:"identifier"`
	Description string `yaml:"description"`
}

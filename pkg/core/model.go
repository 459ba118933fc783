package core

// Model represents a single SQL model discovered in the source project.
// This carries core identity fields only; rendering output and diagnostics
// live in ConversionResult.
type Model struct {
	// Name is the model name (filename without extension).
	Name string
	// FilePath is the absolute path to the source SQL file.
	FilePath string
	// FolderPath holds the folder segments between the models root and the
	// file, e.g. ["staging", "intermediate"] for models/staging/intermediate/x.sql.
	FolderPath []string
	// RawSQL is the template text as read from disk.
	RawSQL string
	// InlineConfig holds keys pre-extracted from the model's own
	// {{ config(...) }} call (schema, +schema, tags, alias, materialized).
	InlineConfig map[string]any
	// Metadata holds the model's entry from the property (schema.yml) files,
	// if one exists.
	Metadata *ModelMetadata
}

// ModelMetadata is a model's description entry from a property file.
type ModelMetadata struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Config      map[string]any `yaml:"config"`
	Schema      string         `yaml:"schema"`
	Tags        []string       `yaml:"tags"`
	Columns     []ColumnMeta   `yaml:"columns"`
	Meta        map[string]any `yaml:"meta"`
}

// ColumnMeta describes one column in a property file.
type ColumnMeta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tests       []any    `yaml:"tests"`
	Tags        []string `yaml:"tags"`
}

// Source is an external source table declared in a property file.
type Source struct {
	// SourceName is the source group name (the `name:` of the sources block).
	SourceName string
	// TableName is the table's name within the group.
	TableName string
	// Schema is the declared schema, defaulting to the source group name.
	Schema string
	// Identifier overrides the physical table name when set.
	Identifier string
	// Description is the human-readable description, carried into reports.
	Description string
}

// Relation returns the qualified schema.table identifier for the source.
func (s Source) Relation() string {
	table := s.TableName
	if s.Identifier != "" {
		table = s.Identifier
	}
	return s.Schema + "." + table
}

// ConversionStatus describes the outcome of converting one model.
type ConversionStatus string

// Conversion status values.
const (
	ConversionOK      ConversionStatus = "ok"
	ConversionWarning ConversionStatus = "warning"
	ConversionFailed  ConversionStatus = "failed"
	ConversionSkipped ConversionStatus = "skipped"
)

// ConversionResult is the per-model output of an import run.
type ConversionResult struct {
	Model       string
	Relation    string
	Schema      string
	Tags        []string
	SQL         string
	Status      ConversionStatus
	Diagnostics []Diagnostic
	// RenderMS is wall time spent rendering the template, in milliseconds.
	RenderMS int64
}

// FailedReason returns the first error diagnostic's message, or "".
func (r *ConversionResult) FailedReason() string {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return d.Message
		}
	}
	return ""
}

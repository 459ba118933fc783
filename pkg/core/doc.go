// Package core defines the shared language of the dbtbridge system.
//
// This package contains:
//   - Domain entities (Model, Source, Relation, ConversionResult)
//   - Diagnostic types shared by the renderer, resolver and reporter
//   - Severity levels
//
// The Golden Rule: pkg/core imports ONLY the stdlib.
// All other packages depend on core, not the reverse.
package core

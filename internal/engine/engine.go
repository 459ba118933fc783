// Package engine orchestrates an import run: it builds the macro registry,
// resolves every model's final relation, renders the templates and converts
// the output dialect. The run is strictly two-phase: all name resolution
// completes and the name map freezes before any template renders.
package engine

import (
	"log/slog"
	"runtime"

	"github.com/leapstack-labs/dbtbridge/internal/macro"
	"github.com/leapstack-labs/dbtbridge/internal/resolve"
	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// Options configure a run.
type Options struct {
	// Adapter is the target database family used for macro dispatch. When
	// empty it falls back to the profile output type, then "postgres".
	Adapter string
	// SourceDialect is the dialect the project's SQL was written for. Falls
	// back to the profile output type, then the adapter.
	SourceDialect string
	// TargetDialect is the dialect to emit. Empty means no conversion.
	TargetDialect string
	// Schema overrides the base schema from the profile.
	Schema string
	// Vars are run-level variable bindings, merged over project vars.
	Vars map[string]any
	// Select restricts the run to the named models. Empty means all.
	Select []string
	// Concurrency caps parallel renders; <= 0 means GOMAXPROCS.
	Concurrency int
	// Logger receives run progress. Defaults to slog.Default().
	Logger *slog.Logger
}

// Engine runs imports.
type Engine struct {
	opts Options
	log  *slog.Logger
}

// New creates an engine.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Engine{opts: opts, log: log}
}

// RunResult is the outcome of one import run.
type RunResult struct {
	// Results holds one entry per selected model, in project discovery order.
	Results []core.ConversionResult
	// Names is the frozen name map built in Phase 1.
	Names *resolve.NameMap
	// Registry holds the parsed macros.
	Registry *macro.Registry
	// Diagnostics are run-level issues not attributable to a single model
	// (macro parse failures, unknown dialects).
	Diagnostics []core.Diagnostic
}

// Counts returns how many results landed in each status.
func (r *RunResult) Counts() map[core.ConversionStatus]int {
	counts := make(map[core.ConversionStatus]int, 4)
	for i := range r.Results {
		counts[r.Results[i].Status]++
	}
	return counts
}

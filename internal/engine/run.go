package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/dbtbridge/internal/dialect"
	"github.com/leapstack-labs/dbtbridge/internal/macro"
	"github.com/leapstack-labs/dbtbridge/internal/project"
	"github.com/leapstack-labs/dbtbridge/internal/render"
	"github.com/leapstack-labs/dbtbridge/internal/resolve"
	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// Run imports the given project. A per-model render failure is recorded in
// that model's result; Run itself fails only on context cancellation.
func (e *Engine) Run(ctx context.Context, p *project.Project) (*RunResult, error) {
	start := time.Now()
	adapter := e.adapterType(p)
	baseSchema := e.baseSchema(p)
	vars := mergeVars(p.Vars, e.opts.Vars)

	result := &RunResult{Names: resolve.NewNameMap()}

	result.Registry = e.buildRegistry(p, result)

	// Phase 1: resolve every model's relation before anything renders. The
	// name map covers all models, selected or not, so ref() from a selected
	// model to an unselected one still resolves.
	resolved := make([]resolvedModel, len(p.Models))
	for i, m := range p.Models {
		resolved[i] = resolveModel(m, p, baseSchema)
		result.Names.SetModel(m.Name, resolved[i].relation)
	}
	for _, src := range p.Sources {
		result.Names.SetSource(src.SourceName, src.TableName, src.Relation())
	}
	result.Names.Freeze()

	e.log.Info("resolution complete",
		"models", len(p.Models),
		"sources", len(p.Sources),
		"macros", result.Registry.ProjectCount(),
		"packages", len(result.Registry.Packages()))

	// Phase 2: render selected models concurrently. Each render gets a fresh
	// context; results land at fixed indices so output order is stable.
	selected := selection(e.opts.Select)
	results := make([]core.ConversionResult, len(p.Models))
	include := make([]bool, len(p.Models))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i := range p.Models {
		if selected != nil && !selected[p.Models[i].Name] {
			continue
		}
		include[i] = true
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.convertModel(p.Models[i], resolved[i], adapter, vars, result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range results {
		if include[i] {
			result.Results = append(result.Results, results[i])
		}
	}

	counts := result.Counts()
	e.log.Info("run complete",
		"models", len(result.Results),
		"ok", counts[core.ConversionOK],
		"warnings", counts[core.ConversionWarning],
		"failed", counts[core.ConversionFailed],
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// resolvedModel is a model's Phase 1 output.
type resolvedModel struct {
	schema   string
	relation string
	tags     []string
}

func resolveModel(m *core.Model, p *project.Project, baseSchema string) resolvedModel {
	in := resolve.Input{
		ModelName:     m.Name,
		FolderPath:    m.FolderPath,
		InlineConfig:  m.InlineConfig,
		ProjectTree:   p.ConfigTree,
		ProfileSchema: baseSchema,
	}
	if m.Metadata != nil {
		in.MetadataConfig = m.Metadata.Config
		in.MetadataSchema = m.Metadata.Schema
		in.MetadataRootTags = m.Metadata.Tags
	}

	schema := resolve.Schema(in)
	return resolvedModel{
		schema:   schema,
		relation: resolve.Relation(schema, m.Name, aliasOf(m)),
		tags:     resolve.Tags(in),
	}
}

// aliasOf returns the model's configured alias, inline config first.
func aliasOf(m *core.Model) string {
	if a, ok := m.InlineConfig["alias"].(string); ok && a != "" {
		return a
	}
	if m.Metadata != nil {
		if a, ok := m.Metadata.Config["alias"].(string); ok && a != "" {
			return a
		}
	}
	return ""
}

// convertModel renders one model and converts the result to the target
// dialect. Errors never escape: they are folded into the result status.
func (e *Engine) convertModel(m *core.Model, rm resolvedModel, adapter string, vars map[string]any, run *RunResult) core.ConversionResult {
	res := core.ConversionResult{
		Model:    m.Name,
		Relation: rm.relation,
		Schema:   rm.schema,
		Tags:     rm.tags,
	}

	rctx := render.NewContext(m.Name, rm.relation, adapter, run.Names, vars, run.Registry)
	rctx.Target = render.TargetInfo{Name: "import", Type: adapter, Schema: rm.schema}

	started := time.Now()
	sql, err := render.NewEvaluator().Render(m.RawSQL, rctx)
	res.RenderMS = time.Since(started).Milliseconds()
	res.Diagnostics = append(res.Diagnostics, rctx.Diagnostics()...)

	if err != nil {
		res.Status = core.ConversionFailed
		res.Diagnostics = append(res.Diagnostics, core.Err(m.Name, err.Error()))
		e.log.Warn("model failed", "model", m.Name, "error", err)
		return res
	}

	if to := e.opts.TargetDialect; to != "" {
		from := e.sourceDialect(adapter)
		converted, warnings := dialect.Convert(sql, from, to)
		sql = converted
		for _, w := range warnings {
			res.Diagnostics = append(res.Diagnostics, core.Warn(m.Name, w))
		}
	}
	res.SQL = sql

	res.Status = core.ConversionOK
	if warns, _ := core.CountBySeverity(res.Diagnostics); warns > 0 {
		res.Status = core.ConversionWarning
	}
	return res
}

// buildRegistry parses and registers all macro sources, project namespace
// first. A file that fails to parse is skipped with a run-level diagnostic;
// one broken package macro should not sink the import.
func (e *Engine) buildRegistry(p *project.Project, run *RunResult) *macro.Registry {
	reg := macro.NewRegistry()
	for _, src := range p.Macros {
		defs, err := macro.ParseFile(src.Path, src.Content)
		if err != nil {
			run.Diagnostics = append(run.Diagnostics,
				core.Warn("", fmt.Sprintf("skipping macro file: %v", err)))
			continue
		}
		reg.Register(defs, src.Namespace)
	}
	return reg
}

func (e *Engine) adapterType(p *project.Project) string {
	if e.opts.Adapter != "" {
		return e.opts.Adapter
	}
	if p.Profile != nil && p.Profile.Type != "" {
		return p.Profile.Type
	}
	return "postgres"
}

func (e *Engine) baseSchema(p *project.Project) string {
	if e.opts.Schema != "" {
		return e.opts.Schema
	}
	if p.Profile != nil {
		return p.Profile.EffectiveSchema()
	}
	return ""
}

func (e *Engine) sourceDialect(adapter string) string {
	if e.opts.SourceDialect != "" {
		return e.opts.SourceDialect
	}
	return adapter
}

func mergeVars(project, run map[string]any) map[string]any {
	merged := make(map[string]any, len(project)+len(run))
	for k, v := range project {
		merged[k] = v
	}
	for k, v := range run {
		merged[k] = v
	}
	return merged
}

func selection(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

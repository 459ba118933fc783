// Package writer emits the converted project to disk: one .sql file per
// successfully converted model, the project config for the converted tree,
// and the markdown import report.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/dbtbridge/internal/project"
	"github.com/leapstack-labs/dbtbridge/internal/report"
	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// Output configures where and what to write.
type Output struct {
	// Dir is the output root; created if missing.
	Dir string
	// Project is the source project, used for folder layout and naming.
	Project *project.Project
	// Info is run metadata carried into headers and the report.
	Info report.RunInfo
	// DryRun skips all filesystem writes.
	DryRun bool
}

// Write emits converted SQL files, the project config and report.md. It
// returns the list of paths written, relative to Dir.
func Write(out Output, results []core.ConversionResult, runDiags []core.Diagnostic) ([]string, error) {
	if out.DryRun {
		return nil, nil
	}

	models := modelIndex(out.Project)
	var written []string

	for i := range results {
		r := &results[i]
		if r.Status == core.ConversionFailed || r.Status == core.ConversionSkipped {
			continue
		}
		var folders []string
		if m := models[r.Model]; m != nil {
			folders = m.FolderPath
		}
		rel := filepath.Join(append([]string{"models"}, append(folders, r.Model+".sql")...)...)
		path := filepath.Join(out.Dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("creating output dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(modelFile(r, models[r.Model], out.Info)), 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", rel, err)
		}
		written = append(written, rel)
	}

	cfg, err := projectConfig(out.Project, out.Info)
	if err != nil {
		return written, err
	}
	if err := writeRel(out.Dir, "leapsql.yaml", cfg, &written); err != nil {
		return written, err
	}

	md := report.Markdown(out.Info, results, runDiags)
	if err := writeRel(out.Dir, "report.md", []byte(md), &written); err != nil {
		return written, err
	}

	return written, nil
}

func writeRel(dir, rel string, data []byte, written *[]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, rel), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	*written = append(*written, rel)
	return nil
}

// modelFile renders one converted model with its provenance header.
func modelFile(r *core.ConversionResult, m *core.Model, info report.RunInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- Imported from %s on %s\n", info.Project, info.StartedAt.UTC().Format(time.DateOnly))
	fmt.Fprintf(&b, "-- Relation: %s\n", r.Relation)
	if mat := materializationOf(m); mat != "" {
		fmt.Fprintf(&b, "-- Materialization: %s\n", mat)
	}
	if len(r.Tags) > 0 {
		fmt.Fprintf(&b, "-- Tags: %s\n", strings.Join(r.Tags, ", "))
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(r.SQL, "\n"))
	b.WriteString("\n")
	return b.String()
}

func materializationOf(m *core.Model) string {
	if m == nil {
		return ""
	}
	if v, ok := m.InlineConfig["materialized"].(string); ok && v != "" {
		return v
	}
	if m.Metadata != nil {
		if v, ok := m.Metadata.Config["materialized"].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// projectConfig builds the converted tree's project file.
func projectConfig(p *project.Project, info report.RunInfo) ([]byte, error) {
	name := "imported"
	if p != nil && p.File != nil && p.File.Name != "" {
		name = p.File.Name
	}
	cfg := map[string]any{
		"name": name,
		"paths": map[string]any{
			"models": "models",
		},
	}
	target := map[string]any{}
	if info.Adapter != "" {
		target["type"] = info.Adapter
	}
	if p != nil && p.Profile != nil {
		if schema := p.Profile.EffectiveSchema(); schema != "" {
			target["schema"] = schema
		}
	}
	if len(target) > 0 {
		cfg["target"] = target
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling project config: %w", err)
	}
	return data, nil
}

// modelIndex maps model name to its source model so the output tree mirrors
// the input layout and headers can carry model config.
func modelIndex(p *project.Project) map[string]*core.Model {
	idx := make(map[string]*core.Model)
	if p == nil {
		return idx
	}
	for _, m := range p.Models {
		idx[m.Name] = m
	}
	return idx
}

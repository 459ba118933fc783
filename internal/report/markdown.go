package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// RunInfo carries run-level metadata into the markdown report.
type RunInfo struct {
	Project       string
	Adapter       string
	SourceDialect string
	TargetDialect string
	StartedAt     time.Time
}

// Markdown builds the report.md content for an import run.
func Markdown(info RunInfo, results []core.ConversionResult, runDiags []core.Diagnostic) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Import report: %s\n\n", info.Project)
	fmt.Fprintf(&b, "- Date: %s\n", info.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Adapter: %s\n", info.Adapter)
	if info.TargetDialect != "" && info.TargetDialect != info.SourceDialect {
		fmt.Fprintf(&b, "- Dialect: %s -> %s\n", info.SourceDialect, info.TargetDialect)
	}

	var ok, warn, failed int
	for i := range results {
		switch results[i].Status {
		case core.ConversionOK:
			ok++
		case core.ConversionWarning:
			warn++
		case core.ConversionFailed:
			failed++
		}
	}
	fmt.Fprintf(&b, "- Models: %d (%d ok, %d with warnings, %d failed)\n\n", len(results), ok, warn, failed)

	b.WriteString("## Models\n\n")
	b.WriteString("| Model | Relation | Status | Tags | Notes |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")
	for i := range results {
		r := &results[i]
		notes := ""
		if r.Status == core.ConversionFailed {
			notes = truncate(r.FailedReason(), 80)
		} else if warnings, _ := core.CountBySeverity(r.Diagnostics); warnings > 0 {
			notes = fmt.Sprintf("%d warning(s)", warnings)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.Model, r.Relation, r.Status, strings.Join(r.Tags, ", "), notes)
	}
	b.WriteString("\n")

	if hasDiagnostics(results) || len(runDiags) > 0 {
		b.WriteString("## Diagnostics\n\n")
		for _, d := range runDiags {
			fmt.Fprintf(&b, "- **%s**: %s\n", d.Severity, d.Message)
		}
		for i := range results {
			for _, d := range results[i].Diagnostics {
				fmt.Fprintf(&b, "- **%s** `%s`: %s\n", d.Severity, d.Model, d.Message)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

func hasDiagnostics(results []core.ConversionResult) bool {
	for i := range results {
		if len(results[i].Diagnostics) > 0 {
			return true
		}
	}
	return false
}

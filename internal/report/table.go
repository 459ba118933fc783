package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// Summary renders the per-model result table to w. Styling adapts to whether
// w is a terminal.
func Summary(w io.Writer, results []core.ConversionResult) {
	styles := NewStyles(IsTTY(w))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Model", "Relation", "Status", "Warnings", "Render"})

	var ok, warn, failed, skipped int
	for i := range results {
		r := &results[i]
		warnings, _ := core.CountBySeverity(r.Diagnostics)
		t.AppendRow(table.Row{
			r.Model,
			r.Relation,
			statusCell(styles, r.Status),
			warnings,
			fmt.Sprintf("%dms", r.RenderMS),
		})
		switch r.Status {
		case core.ConversionOK:
			ok++
		case core.ConversionWarning:
			warn++
		case core.ConversionFailed:
			failed++
		case core.ConversionSkipped:
			skipped++
		}
	}
	t.Render()

	line := fmt.Sprintf("%d models: %d ok, %d with warnings, %d failed", len(results), ok, warn, failed)
	if skipped > 0 {
		line += fmt.Sprintf(", %d skipped", skipped)
	}
	fmt.Fprintln(w, styles.Muted.Render(line))
}

// Diagnostics prints every diagnostic grouped under its model.
func Diagnostics(w io.Writer, results []core.ConversionResult) {
	styles := NewStyles(IsTTY(w))
	for i := range results {
		r := &results[i]
		if len(r.Diagnostics) == 0 {
			continue
		}
		fmt.Fprintln(w, styles.Header.Render(r.Model))
		for _, d := range r.Diagnostics {
			label := d.Severity.String()
			switch d.Severity {
			case core.SeverityError:
				label = styles.Error.Render(label)
			case core.SeverityWarning:
				label = styles.Warning.Render(label)
			}
			fmt.Fprintf(w, "  %s: %s\n", label, d.Message)
		}
	}
}

func statusCell(styles *Styles, status core.ConversionStatus) string {
	s := string(status)
	switch status {
	case core.ConversionOK:
		return styles.Success.Render(s)
	case core.ConversionWarning:
		return styles.Warning.Render(s)
	case core.ConversionFailed:
		return styles.Error.Render(s)
	}
	return s
}

// truncate shortens a message to a single line for table cells.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Package report renders import results for terminals and for the markdown
// report written alongside converted output.
package report

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Styles holds the lipgloss styles used for terminal output. The zero-value
// styles from NewStyles(false) render plain text, which keeps piped output
// clean.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles builds the style set. Colors are only applied when colored is
// true.
func NewStyles(colored bool) *Styles {
	if !colored {
		return &Styles{}
	}
	return &Styles{
		Header:  lipgloss.NewStyle().Bold(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

package core

import "strings"

// Severity indicates the importance of a conversion diagnostic.
type Severity int

// Severity levels for diagnostics.
const (
	// SeverityError indicates the model's conversion failed.
	SeverityError Severity = iota
	// SeverityWarning indicates a recoverable condition that should be reviewed.
	SeverityWarning
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a string to a Severity value.
// Returns the severity and true if valid, or SeverityWarning and false if invalid.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(s) {
	case "error":
		return SeverityError, true
	case "warning":
		return SeverityWarning, true
	default:
		return SeverityWarning, false
	}
}

// Diagnostic is a single recoverable or fatal condition recorded while
// converting one model. Recoverable conditions are accumulated and returned
// alongside output, never raised as errors across model boundaries.
type Diagnostic struct {
	Severity Severity
	Model    string
	Message  string
}

// Warn builds a warning diagnostic for a model.
func Warn(model, message string) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Model: model, Message: message}
}

// Err builds an error diagnostic for a model.
func Err(model, message string) Diagnostic {
	return Diagnostic{Severity: SeverityError, Model: model, Message: message}
}

// CountBySeverity returns the number of warnings and errors in a diagnostic list.
func CountBySeverity(diags []Diagnostic) (warnings, errors int) {
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		}
	}
	return warnings, errors
}

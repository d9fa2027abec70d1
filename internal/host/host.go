// Package host models the editor-side capabilities the engines consume:
// indentation settings and a diagnostics source.
package host

import "context"

// Position is a 1-indexed line and column.
type Position struct {
	Line   int `json:"line" mapstructure:"line"`
	Column int `json:"column" mapstructure:"column"`
}

// Range spans Start up to but not including End.
type Range struct {
	Start Position `json:"start" mapstructure:"start"`
	End   Position `json:"end" mapstructure:"end"`
}

// Severity levels reported by diagnostics.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
	SeverityHint    = "hint"
)

// Diagnostic is a problem reported against a file.
type Diagnostic struct {
	File     string `json:"file" mapstructure:"file"`
	Range    Range  `json:"range" mapstructure:"range"`
	Severity string `json:"severity" mapstructure:"severity"`
	Message  string `json:"message" mapstructure:"message"`
	Code     string `json:"code,omitempty" mapstructure:"code"`
	Source   string `json:"source,omitempty" mapstructure:"source"`
}

// IndentSettings describes how a file is indented.
type IndentSettings struct {
	UseTabs bool `json:"useTabs"`
	TabSize int  `json:"tabSize"`
}

// Unit returns one level of indentation.
func (s IndentSettings) Unit() string {
	if s.UseTabs {
		return "\t"
	}
	return spaces(s.TabSize)
}

// Capabilities is the editor-adapter surface.
type Capabilities interface {
	IndentSettings(path string) IndentSettings
	Diagnostics(ctx context.Context, path string) ([]Diagnostic, error)
	AllDiagnostics(ctx context.Context) (map[string][]Diagnostic, error)
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

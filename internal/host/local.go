package host

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// sniffLimit bounds how much of a file is inspected to infer indentation.
const sniffLimit = 64 * 1024

type fileReader interface {
	ReadPrefix(path string, limit int64) ([]byte, int64, error)
}

var byExtension = map[string]IndentSettings{
	".go":    {UseTabs: true, TabSize: 4},
	".py":    {TabSize: 4},
	".java":  {TabSize: 4},
	".cs":    {TabSize: 4},
	".rs":    {TabSize: 4},
	".c":     {TabSize: 4},
	".h":     {TabSize: 4},
	".cpp":   {TabSize: 4},
	".js":    {TabSize: 2},
	".jsx":   {TabSize: 2},
	".ts":    {TabSize: 2},
	".tsx":   {TabSize: 2},
	".json":  {TabSize: 2},
	".yaml":  {TabSize: 2},
	".yml":   {TabSize: 2},
	".html":  {TabSize: 2},
	".css":   {TabSize: 2},
	".rb":    {TabSize: 2},
	".xml":   {TabSize: 2},
	".md":    {TabSize: 2},
	".proto": {TabSize: 2},
}

var defaultIndent = IndentSettings{TabSize: 4}

// Local implements Capabilities without an editor. Indentation is inferred
// from the file itself and falls back to per-extension defaults. Diagnostics
// are whatever was last published for a file, typically by a build.
type Local struct {
	root   string
	fs     fileReader
	logger zerolog.Logger

	mu          sync.RWMutex
	diagnostics map[string][]Diagnostic
}

// NewLocal creates a Local host backed by fs. Relative paths are taken
// relative to root.
func NewLocal(root string, fs fileReader, logger zerolog.Logger) *Local {
	if root == "" {
		panic("root is required")
	}
	if fs == nil {
		panic("fs is required")
	}
	return &Local{
		root:        root,
		fs:          fs,
		logger:      logger.With().Str("component", "host").Logger(),
		diagnostics: make(map[string][]Diagnostic),
	}
}

// IndentSettings returns the indentation for path.
func (l *Local) IndentSettings(path string) IndentSettings {
	base := defaultFor(path)
	data, _, err := l.fs.ReadPrefix(l.abs(path), sniffLimit)
	if err != nil {
		return base
	}
	if inferred, ok := inferIndent(data, base.TabSize); ok {
		return inferred
	}
	return base
}

// Diagnostics returns the diagnostics last published for path.
func (l *Local) Diagnostics(_ context.Context, path string) ([]Diagnostic, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.diagnostics[l.abs(path)]), nil
}

// AllDiagnostics returns every published diagnostic keyed by file.
func (l *Local) AllDiagnostics(_ context.Context) (map[string][]Diagnostic, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string][]Diagnostic, len(l.diagnostics))
	for k, v := range l.diagnostics {
		out[k] = slices.Clone(v)
	}
	return out, nil
}

// Publish replaces the diagnostics of every file mentioned in diags.
// Files not mentioned keep their previous diagnostics.
func (l *Local) Publish(diags []Diagnostic) {
	grouped := make(map[string][]Diagnostic)
	for _, d := range diags {
		key := l.abs(d.File)
		grouped[key] = append(grouped[key], d)
	}
	l.mu.Lock()
	maps.Copy(l.diagnostics, grouped)
	l.mu.Unlock()
	l.logger.Debug().Int("files", len(grouped)).Int("diagnostics", len(diags)).Msg("diagnostics published")
}

// Clear drops all published diagnostics.
func (l *Local) Clear() {
	l.mu.Lock()
	clear(l.diagnostics)
	l.mu.Unlock()
}

func (l *Local) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(l.root, path)
}

func defaultFor(path string) IndentSettings {
	base := filepath.Base(path)
	if base == "Makefile" || base == "GNUmakefile" || strings.HasSuffix(base, ".mk") {
		return IndentSettings{UseTabs: true, TabSize: 8}
	}
	if s, ok := byExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return s
	}
	return defaultIndent
}

// inferIndent looks at the leading whitespace of indented lines. Tabs win
// when they lead more lines than spaces. The space width is the smallest
// non-zero indent seen, clamped to 2..8.
func inferIndent(data []byte, fallbackSize int) (IndentSettings, bool) {
	tabs, spaced := 0, 0
	width := 0
	for line := range strings.SplitSeq(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch line[0] {
		case '\t':
			tabs++
		case ' ':
			n := len(line) - len(strings.TrimLeft(line, " "))
			if n < 2 {
				continue // alignment inside block comments
			}
			spaced++
			if width == 0 || n < width {
				width = n
			}
		}
	}
	switch {
	case tabs == 0 && spaced == 0:
		return IndentSettings{}, false
	case tabs > spaced:
		return IndentSettings{UseTabs: true, TabSize: fallbackSize}, true
	}
	return IndentSettings{TabSize: min(max(width, 2), 8)}, true
}

package codeedit

import (
	"strings"

	"github.com/Cyclone1070/gatekeep/internal/host"
)

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

// columns measures whitespace with tabs advancing to the next tab stop.
func columns(ws string, tabSize int) int {
	col := 0
	for _, c := range ws {
		if c == '\t' {
			col += tabSize - col%tabSize
		} else {
			col++
		}
	}
	return col
}

func render(cols int, s host.IndentSettings, tabSize int) string {
	if cols <= 0 {
		return ""
	}
	if s.UseTabs {
		return strings.Repeat("\t", cols/tabSize) + strings.Repeat(" ", cols%tabSize)
	}
	return strings.Repeat(" ", cols)
}

// targetIndent is the indentation of the line being inserted before, or of
// the nearest non-blank line above it when that line is blank or missing.
func targetIndent(lines []string, at int) string {
	for i := min(at, len(lines)-1); i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return leadingWhitespace(lines[i])
		}
	}
	return ""
}

// reindent shifts block so its least-indented line sits at base. Deeper
// lines keep their relative depth, re-rendered in the file's indent style.
// Blank lines become empty.
func reindent(block []string, base string, s host.IndentSettings) []string {
	tabSize := s.TabSize
	if tabSize < 1 {
		tabSize = 4
	}

	minCols := -1
	for _, line := range block {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c := columns(leadingWhitespace(line), tabSize)
		if minCols < 0 || c < minCols {
			minCols = c
		}
	}

	out := make([]string, len(block))
	for i, line := range block {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ws := leadingWhitespace(line)
		rel := columns(ws, tabSize) - minCols
		out[i] = base + render(rel, s, tabSize) + line[len(ws):]
	}
	return out
}

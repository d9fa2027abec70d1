// Package codeedit applies line- and pattern-addressed edits through the
// file operation engine, so every write is backed up, locked and audited.
package codeedit

import (
	"context"
	"strings"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/Cyclone1070/gatekeep/internal/fileops"
	"github.com/Cyclone1070/gatekeep/internal/host"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"
)

// DefaultConfirmationThreshold is the largest deletion allowed without confirmation.
const DefaultConfirmationThreshold = 100

// fileEditor runs read-modify-write transactions over files.
type fileEditor interface {
	Edit(ctx context.Context, req fileops.EditRequest) (*fileops.EditResult, error)
}

type indenter interface {
	IndentSettings(path string) host.IndentSettings
}

type recorder interface {
	Record(rec audit.Record)
}

// Engine performs code edits. It records only the requests it rejects
// before reaching the file engine; everything else is recorded there.
type Engine struct {
	files            fileEditor
	host             indenter
	audit            recorder
	confirmThreshold int
	logger           zerolog.Logger
}

// New creates an Engine. A confirmThreshold < 1 uses DefaultConfirmationThreshold.
func New(files fileEditor, h indenter, rec recorder, confirmThreshold int, logger zerolog.Logger) *Engine {
	if files == nil {
		panic("files is required")
	}
	if h == nil {
		panic("host is required")
	}
	if rec == nil {
		panic("recorder is required")
	}
	if confirmThreshold < 1 {
		confirmThreshold = DefaultConfirmationThreshold
	}
	return &Engine{
		files:            files,
		host:             h,
		audit:            rec,
		confirmThreshold: confirmThreshold,
		logger:           logger.With().Str("component", "codeedit").Logger(),
	}
}

func (e *Engine) reject(ctx context.Context, kind string, params map[string]string, err error) error {
	e.audit.Record(audit.Stamp(ctx, audit.Record{
		Kind:    kind,
		Params:  params,
		Outcome: audit.OutcomeFor(err),
		Error:   audit.ErrorText(err),
	}))
	return err
}

// texts keeps the decoded before/after content of each edited file for diffs.
type texts map[string][2]string

func (t texts) diff(path, rel string) string {
	pair, ok := t[path]
	if !ok {
		return ""
	}
	return unifiedDiff(rel, pair[0], pair[1])
}

func unifiedDiff(name, before, after string) string {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	}
	diff, _ := difflib.GetUnifiedDiffString(ud)
	return diff
}

func joinDiffs(diffs []string) string {
	var b strings.Builder
	for _, d := range diffs {
		if d == "" {
			continue
		}
		b.WriteString(d)
		if !strings.HasSuffix(d, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

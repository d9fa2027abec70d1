package codeedit

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Cyclone1070/gatekeep/internal/fileops"
	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/Cyclone1070/gatekeep/internal/host"
)

// span is a TextEdit resolved to byte offsets in \n-normalised text.
type span struct {
	start, end int
	text       string
	order      int
}

// ApplyQuickFix applies every edit of a fix or none of them. All new file
// contents are computed before anything is written.
func (e *Engine) ApplyQuickFix(ctx context.Context, req ApplyQuickFixRequest) (*ApplyQuickFixResponse, error) {
	const kind = "applyQuickFix"
	params := map[string]string{
		"fixId": req.Fix.ID,
		"edits": strconv.Itoa(len(req.Fix.Edits)),
	}
	if len(req.Fix.Edits) == 0 {
		return nil, e.reject(ctx, kind, params, gateerr.Wrap(gateerr.KindInvalidParams, errNoEdits.Error(), errNoEdits))
	}

	var paths []string
	byFile := make(map[string][]TextEdit)
	for _, te := range req.Fix.Edits {
		if te.File == "" {
			return nil, e.reject(ctx, kind, params, gateerr.Wrap(gateerr.KindInvalidParams, errEditFileEmpty.Error(), errEditFileEmpty))
		}
		if _, ok := byFile[te.File]; !ok {
			paths = append(paths, te.File)
		}
		byFile[te.File] = append(byFile[te.File], te)
	}

	seen := texts{}
	res, err := e.files.Edit(ctx, fileops.EditRequest{
		Operation:    kind,
		Paths:        paths,
		CreateBackup: backupRequested(req.CreateBackup),
		Params:       params,
		Apply: func(files map[string][]byte) (map[string][]byte, error) {
			out := make(map[string][]byte, len(files))
			for _, path := range paths {
				doc, err := parseDocument(files[path])
				if err != nil {
					return nil, err
				}
				before := doc.text()
				after, err := applyEdits(before, byFile[path])
				if err != nil {
					return nil, gateerr.Wrap(gateerr.KindInvalidParams, path+": "+err.Error(), err)
				}
				doc.setText(after)
				data, err := doc.encode()
				if err != nil {
					return nil, err
				}
				seen[path] = [2]string{before, after}
				out[path] = data
			}
			return out, nil
		},
	})
	if err != nil {
		return nil, err
	}

	resp := &ApplyQuickFixResponse{Success: true, FilesModified: []string{}}
	diffs := make([]string, 0, len(res.Files))
	for _, f := range res.Files {
		resp.FilesModified = append(resp.FilesModified, f.Path)
		diffs = append(diffs, seen.diff(f.Key, f.Path))
	}
	resp.Diff = joinDiffs(diffs)
	return resp, nil
}

func applyEdits(text string, edits []TextEdit) (string, error) {
	index := lineOffsets(text)
	spans := make([]span, 0, len(edits))
	for i, te := range edits {
		start, err := offset(text, index, te.Range.Start)
		if err != nil {
			return "", err
		}
		end, err := offset(text, index, te.Range.End)
		if err != nil {
			return "", err
		}
		if end < start {
			return "", errStaleRange
		}
		spans = append(spans, span{start: start, end: end, text: strings.ReplaceAll(te.NewText, "\r\n", "\n"), order: i})
	}

	slices.SortStableFunc(spans, func(a, b span) int {
		if a.start != b.start {
			return a.start - b.start
		}
		return a.order - b.order
	})
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return "", errOverlap
		}
	}

	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		b.WriteString(s.text)
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// lineOffsets returns the byte offset at which each line starts.
func lineOffsets(text string) []int {
	index := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			index = append(index, i+1)
		}
	}
	return index
}

// offset converts a 1-indexed line and rune column into a byte offset.
// Column lineLength+1 addresses the end of the line.
func offset(text string, index []int, p host.Position) (int, error) {
	if p.Line < 1 || p.Line > len(index) || p.Column < 1 {
		return 0, errStaleRange
	}
	lineStart := index[p.Line-1]
	lineEnd := len(text)
	if p.Line < len(index) {
		lineEnd = index[p.Line] - 1
	}
	line := text[lineStart:lineEnd]

	col := p.Column - 1
	if col > utf8.RuneCountInString(line) {
		return 0, errStaleRange
	}
	pos := 0
	for ; col > 0; col-- {
		_, size := utf8.DecodeRuneInString(line[pos:])
		pos += size
	}
	return lineStart + pos, nil
}

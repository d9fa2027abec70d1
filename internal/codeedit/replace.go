package codeedit

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/Cyclone1070/gatekeep/internal/fileops"
	"github.com/Cyclone1070/gatekeep/internal/gateerr"
)

// Replace substitutes every match of a literal or RE2 pattern, optionally
// within a line range. With Preview set nothing is written.
func (e *Engine) Replace(ctx context.Context, req ReplaceRequest) (*ReplaceResponse, error) {
	const kind = "replaceCode"
	params := map[string]string{
		"path":    req.Path,
		"isRegex": strconv.FormatBool(req.IsRegex),
		"preview": strconv.FormatBool(req.Preview),
	}
	if req.StartLine != 0 || req.EndLine != 0 {
		params["startLine"] = strconv.Itoa(req.StartLine)
		params["endLine"] = strconv.Itoa(req.EndLine)
	}

	switch {
	case req.Path == "":
		return nil, e.reject(ctx, kind, params, gateerr.New(gateerr.KindInvalidParams, "path is required"))
	case req.Pattern == "":
		return nil, e.reject(ctx, kind, params, gateerr.New(gateerr.KindInvalidParams, "pattern is required"))
	case req.StartLine < 0 || req.EndLine < 0:
		return nil, e.reject(ctx, kind, params, gateerr.New(gateerr.KindInvalidParams, "line numbers must not be negative"))
	case req.EndLine != 0 && req.EndLine < req.StartLine:
		return nil, e.reject(ctx, kind, params, gateerr.New(gateerr.KindInvalidParams, "endLine must be >= startLine"))
	}

	re, err := compilePattern(req.Pattern, req.IsRegex)
	if err != nil {
		return nil, e.reject(ctx, kind, params, gateerr.Wrap(gateerr.KindInvalidParams, "invalid pattern", err))
	}

	resp := &ReplaceResponse{Path: req.Path, AffectedLines: []int{}}
	seen := texts{}

	res, err := e.files.Edit(ctx, fileops.EditRequest{
		Operation:    kind,
		Paths:        []string{req.Path},
		CreateBackup: backupRequested(req.CreateBackup),
		DryRun:       req.Preview,
		Params:       params,
		Apply: func(files map[string][]byte) (map[string][]byte, error) {
			doc, err := parseDocument(files[req.Path])
			if err != nil {
				return nil, err
			}
			from, to, err := scope(req.StartLine, req.EndLine, doc.lineCount())
			if err != nil {
				return nil, err
			}

			before := doc.text()
			region := strings.Join(doc.lines[from:to], "\n")
			matches := re.FindAllStringIndex(region, -1)
			resp.ReplacementCount = len(matches)
			resp.AffectedLines = affectedLines(region, matches, from+1)
			if len(matches) == 0 {
				return nil, nil
			}

			var replaced string
			if req.IsRegex {
				replaced = re.ReplaceAllString(region, req.Replacement)
			} else {
				replaced = re.ReplaceAllLiteralString(region, req.Replacement)
			}
			lines := make([]string, 0, doc.lineCount())
			lines = append(lines, doc.lines[:from]...)
			lines = append(lines, strings.Split(replaced, "\n")...)
			lines = append(lines, doc.lines[to:]...)
			doc.lines = lines

			out, err := doc.encode()
			if err != nil {
				return nil, err
			}
			seen[req.Path] = [2]string{before, doc.text()}
			return map[string][]byte{req.Path: out}, nil
		},
	})
	if err != nil {
		return nil, err
	}

	resp.Applied = !req.Preview && len(res.Files) > 0
	if len(res.Files) > 0 {
		f := res.Files[0]
		resp.Path = f.Path
		resp.BackupPath = f.BackupPath
		if req.Preview {
			resp.Preview = seen.diff(f.Key, f.Path)
		}
	}
	return resp, nil
}

func compilePattern(pattern string, isRegex bool) (*regexp.Regexp, error) {
	if !isRegex {
		pattern = regexp.QuoteMeta(pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.MatchString("") {
		return nil, errEmptyMatch
	}
	return re, nil
}

// scope converts an optional 1-indexed inclusive range into slice bounds.
func scope(start, end, lineCount int) (from, to int, err error) {
	from, to = 0, lineCount
	if start > 0 {
		from = start - 1
	}
	if end > 0 {
		to = end
	}
	if from > lineCount || to > lineCount || (start > 0 && from >= to) {
		return 0, 0, gateerr.Newf(gateerr.KindInvalidParams, "line range %d-%d is outside the file (%d lines)", start, end, lineCount)
	}
	return from, to, nil
}

// affectedLines lists, ascending and without duplicates, every line a match
// touches. firstLine is the line number of region's first line.
func affectedLines(region string, matches [][]int, firstLine int) []int {
	lines := []int{}
	last := 0
	line := firstLine
	for _, m := range matches {
		line += strings.Count(region[last:m[0]], "\n")
		endLine := line + strings.Count(region[m[0]:m[1]], "\n")
		for l := line; l <= endLine; l++ {
			if len(lines) == 0 || lines[len(lines)-1] < l {
				lines = append(lines, l)
			}
		}
		last = m[0]
	}
	return lines
}

package codeedit

import (
	"context"
	"strconv"

	"github.com/Cyclone1070/gatekeep/internal/fileops"
	"github.com/Cyclone1070/gatekeep/internal/gateerr"
)

// Insert adds content before req.Line.
func (e *Engine) Insert(ctx context.Context, req InsertRequest) (*InsertResponse, error) {
	const kind = "insertCode"
	params := map[string]string{
		"path":           req.Path,
		"line":           strconv.Itoa(req.Line),
		"preserveIndent": strconv.FormatBool(req.PreserveIndent),
	}
	if req.Path == "" {
		return nil, e.reject(ctx, kind, params, gateerr.New(gateerr.KindInvalidParams, "path is required"))
	}
	if req.Line < 1 {
		return nil, e.reject(ctx, kind, params, gateerr.New(gateerr.KindInvalidParams, "line must be >= 1"))
	}

	block := splitBlock(req.Content)
	params["lines"] = strconv.Itoa(len(block))
	resp := &InsertResponse{LinesInserted: len(block)}
	seen := texts{}

	res, err := e.files.Edit(ctx, fileops.EditRequest{
		Operation:    kind,
		Paths:        []string{req.Path},
		CreateBackup: backupRequested(req.CreateBackup),
		Params:       params,
		Apply: func(files map[string][]byte) (map[string][]byte, error) {
			doc, err := parseDocument(files[req.Path])
			if err != nil {
				return nil, err
			}
			if req.Line > doc.lineCount()+1 {
				return nil, gateerr.Newf(gateerr.KindInvalidParams, "line %d is beyond end of file (%d lines)", req.Line, doc.lineCount())
			}
			before := doc.text()

			lines := block
			if req.PreserveIndent {
				lines = reindent(block, targetIndent(doc.lines, req.Line-1), e.host.IndentSettings(req.Path))
			}
			doc.insert(req.Line-1, lines)

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

	resp.ModifiedRange = LineRange{Start: req.Line, End: req.Line + len(block) - 1}
	resp.Path = req.Path
	if len(res.Files) > 0 {
		resp.Path = res.Files[0].Path
		resp.BackupPath = res.Files[0].BackupPath
		resp.Diff = seen.diff(res.Files[0].Key, res.Files[0].Path)
	}
	return resp, nil
}

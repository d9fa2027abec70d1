package codeedit

import (
	"context"
	"strconv"

	"github.com/Cyclone1070/gatekeep/internal/fileops"
	"github.com/Cyclone1070/gatekeep/internal/gateerr"
)

// Delete removes the inclusive line range [StartLine, EndLine]. Ranges
// longer than the confirmation threshold need RequireConfirmation.
func (e *Engine) Delete(ctx context.Context, req DeleteRequest) (*DeleteResponse, error) {
	const kind = "deleteCode"
	params := map[string]string{
		"path":      req.Path,
		"startLine": strconv.Itoa(req.StartLine),
		"endLine":   strconv.Itoa(req.EndLine),
	}
	switch {
	case req.Path == "":
		return nil, e.reject(ctx, kind, params, gateerr.New(gateerr.KindInvalidParams, "path is required"))
	case req.StartLine < 1:
		return nil, e.reject(ctx, kind, params, gateerr.New(gateerr.KindInvalidParams, "startLine must be >= 1"))
	case req.EndLine < req.StartLine:
		return nil, e.reject(ctx, kind, params, gateerr.New(gateerr.KindInvalidParams, "endLine must be >= startLine"))
	}

	count := req.EndLine - req.StartLine + 1
	params["lines"] = strconv.Itoa(count)
	needsConfirmation := count > e.confirmThreshold
	if needsConfirmation && !req.RequireConfirmation {
		err := gateerr.Newf(gateerr.KindConfirmationRequired,
			"deleting %d lines requires confirmation (threshold %d)", count, e.confirmThreshold).
			WithDetails(map[string]any{"linesToDelete": count, "threshold": e.confirmThreshold})
		return nil, e.reject(ctx, kind, params, err)
	}
	params["confirmed"] = strconv.FormatBool(needsConfirmation)

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
			if req.EndLine > doc.lineCount() {
				return nil, gateerr.Newf(gateerr.KindInvalidParams, "line range %d-%d is outside the file (%d lines)", req.StartLine, req.EndLine, doc.lineCount())
			}
			before := doc.text()
			doc.remove(req.StartLine-1, req.EndLine)

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

	resp := &DeleteResponse{Path: req.Path, LinesDeleted: count, Confirmed: needsConfirmation}
	if len(res.Files) > 0 {
		resp.Path = res.Files[0].Path
		resp.BackupPath = res.Files[0].BackupPath
		resp.Diff = seen.diff(res.Files[0].Key, res.Files[0].Path)
	}
	return resp, nil
}

package fileops

import (
	"context"
	"strconv"
)

// ListBackups returns the stored generations of a file, oldest first.
func (e *Engine) ListBackups(ctx context.Context, req ListBackupsRequest) (resp *ListBackupsResponse, err error) {
	params := map[string]string{"path": req.Path}
	defer e.finish(ctx, "listBackups", params, &err)

	if req.Path == "" {
		return nil, invalid(ErrPathRequired)
	}
	abs, rel, err := e.paths.Resolve(req.Path)
	if err != nil {
		return nil, err
	}
	list, err := e.backups.List(abs)
	if err != nil {
		return nil, e.classify(err, rel)
	}
	params["count"] = strconv.Itoa(len(list))
	return &ListBackupsResponse{Path: rel, Backups: list}, nil
}

// RestoreBackup copies a stored generation back over the file. The content
// being replaced is backed up first.
func (e *Engine) RestoreBackup(ctx context.Context, req RestoreBackupRequest) (resp *RestoreBackupResponse, err error) {
	params := map[string]string{"path": req.Path, "generation": strconv.Itoa(req.Generation)}
	defer e.finish(ctx, "restoreBackup", params, &err)

	if req.Path == "" {
		return nil, invalid(ErrPathRequired)
	}
	abs, rel, err := e.paths.Resolve(req.Path)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(abs)
	defer unlock()

	gen := req.Generation
	if gen == 0 {
		list, err := e.backups.List(abs)
		if err != nil {
			return nil, e.classify(err, rel)
		}
		if len(list) == 0 {
			return nil, notFound("no backups for " + rel)
		}
		gen = list[len(list)-1].Generation
		params["generation"] = strconv.Itoa(gen)
	}

	restored, safety, err := e.backups.Restore(abs, gen)
	if err != nil {
		return nil, e.classify(err, rel)
	}
	resp = &RestoreBackupResponse{Path: rel, Generation: restored.Generation}
	if safety != nil {
		resp.SafetyBackupPath = safety.BackupPath
	}
	return resp, nil
}

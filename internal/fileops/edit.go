package fileops

import (
	"bytes"
	"context"
	"maps"
	"os"
	"strconv"
	"strings"

	"github.com/Cyclone1070/gatekeep/internal/gateerr"
)

type editTarget struct {
	key  string
	abs  string
	rel  string
	perm os.FileMode
}

// Edit runs a read-modify-write over existing files while holding every
// path lock. All new contents are computed before the first write, all
// backups are taken before the first write, and a write failure rolls back
// files already written from their in-memory originals.
func (e *Engine) Edit(ctx context.Context, req EditRequest) (res *EditResult, err error) {
	op := req.Operation
	if op == "" {
		op = "editFile"
	}
	params := maps.Clone(req.Params)
	if params == nil {
		params = make(map[string]string)
	}
	params["paths"] = strings.Join(req.Paths, ",")
	params["createBackup"] = strconv.FormatBool(req.CreateBackup)
	if req.DryRun {
		params["dryRun"] = "true"
	}
	defer e.finish(ctx, op, params, &err)

	if req.Apply == nil {
		return nil, invalid(ErrNoEditFunction)
	}
	if len(req.Paths) == 0 {
		return nil, invalid(ErrPathRequired)
	}

	targets, err := e.resolveTargets(req.Paths)
	if err != nil {
		return nil, err
	}

	locks := make([]string, len(targets))
	for i, t := range targets {
		locks[i] = t.abs
	}
	unlock := e.locks.LockAll(locks)
	defer unlock()

	current := make(map[string][]byte, len(targets))
	for i := range targets {
		t := &targets[i]
		info, err := e.fs.Stat(t.abs)
		if err != nil {
			return nil, e.classify(err, t.rel)
		}
		if info.IsDir() {
			return nil, invalid(ErrIsDirectory)
		}
		t.perm = info.Mode().Perm()
		data, err := e.fs.ReadFile(t.abs)
		if err != nil {
			return nil, e.classify(err, t.rel)
		}
		current[t.key] = data
	}

	next, err := req.Apply(maps.Clone(current))
	if err != nil {
		if gateerr.KindOf(err) == gateerr.KindInternal {
			return nil, invalid(err)
		}
		return nil, err
	}

	res = &EditResult{}
	var changed []editTarget
	for key, data := range next {
		if _, ok := current[key]; !ok {
			return nil, gateerr.Wrap(gateerr.KindInternal, "", ErrUnknownEditPath)
		}
		if int64(len(data)) > e.maxFileSize {
			return nil, invalid(ErrFileTooLarge)
		}
	}
	for _, t := range targets {
		after, ok := next[t.key]
		if !ok || bytes.Equal(after, current[t.key]) {
			continue
		}
		changed = append(changed, t)
		res.Files = append(res.Files, EditedFile{Key: t.key, Path: t.rel, Before: current[t.key], After: after})
	}
	params["filesChanged"] = strconv.Itoa(len(changed))

	if req.DryRun || len(changed) == 0 {
		return res, nil
	}

	if req.CreateBackup {
		for i, t := range changed {
			b, err := e.backups.CreateBackup(t.abs)
			if err != nil {
				return nil, err
			}
			res.Files[i].BackupPath, res.Files[i].Generation = b.BackupPath, b.Generation
		}
	}

	for i, t := range changed {
		if err := e.fs.WriteFileAtomic(t.abs, res.Files[i].After, t.perm); err != nil {
			e.rollback(changed[:i], res.Files[:i])
			return nil, e.classify(err, t.rel)
		}
	}
	return res, nil
}

func (e *Engine) resolveTargets(paths []string) ([]editTarget, error) {
	targets := make([]editTarget, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		if p == "" {
			return nil, invalid(ErrPathRequired)
		}
		abs, rel, err := e.paths.Resolve(p)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[abs]; ok {
			if prev == p {
				continue
			}
			return nil, gateerr.Newf(gateerr.KindInvalidParams, "%q and %q refer to the same file", prev, p)
		}
		seen[abs] = p
		targets = append(targets, editTarget{key: p, abs: abs, rel: rel})
	}
	return targets, nil
}

// rollback restores already-written files. It is best effort: failures are
// logged and the caller still reports the original write error.
func (e *Engine) rollback(written []editTarget, files []EditedFile) {
	for i, t := range written {
		if err := e.fs.WriteFileAtomic(t.abs, files[i].Before, t.perm); err != nil {
			e.logger.Error().Err(err).Str("path", t.rel).Msg(ErrRollbackFailed.Error())
		}
	}
}

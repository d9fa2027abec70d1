// Package fileops performs policy-checked, audited and backed-up file operations.
package fileops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/Cyclone1070/gatekeep/internal/backup"
	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/Cyclone1070/gatekeep/internal/pathlock"
	"github.com/rs/zerolog"
)

// pathResolver normalises and validates caller-supplied paths.
type pathResolver interface {
	Resolve(path string) (abs string, rel string, err error)
}

// backupStore creates and restores generation backups.
type backupStore interface {
	CreateBackup(path string) (*backup.Backup, error)
	List(path string) ([]backup.Backup, error)
	Restore(path string, generation int) (restored *backup.Backup, safety *backup.Backup, err error)
}

// fileSystem defines the filesystem operations the engine performs.
type fileSystem interface {
	Stat(path string) (os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	ReadPrefix(path string, limit int64) ([]byte, int64, error)
	WriteFileAtomic(path string, content []byte, perm os.FileMode) error
	EnsureDirs(path string) error
	Remove(path string) error
}

// recorder receives one audit record per operation.
type recorder interface {
	Record(rec audit.Record)
}

// Engine performs file operations. Writes to the same resolved path are
// serialised for the whole backup-then-write sequence.
type Engine struct {
	paths       pathResolver
	backups     backupStore
	fs          fileSystem
	audit       recorder
	locks       *pathlock.Locker
	maxFileSize int64
	logger      zerolog.Logger
}

// New creates an Engine. maxFileSize bounds writes and is the default read limit.
func New(paths pathResolver, backups backupStore, fs fileSystem, rec recorder, locks *pathlock.Locker, maxFileSize int64, logger zerolog.Logger) *Engine {
	if paths == nil || backups == nil || fs == nil || rec == nil || locks == nil {
		panic("fileops: all dependencies are required")
	}
	if maxFileSize < 1 {
		panic("fileops: maxFileSize must be positive")
	}
	return &Engine{
		paths:       paths,
		backups:     backups,
		fs:          fs,
		audit:       rec,
		locks:       locks,
		maxFileSize: maxFileSize,
		logger:      logger.With().Str("component", "fileops").Logger(),
	}
}

// Read returns the file content, truncated to MaxSize raw bytes.
//
// Note: ctx carries request metadata for the audit record; file I/O is not cancellable.
func (e *Engine) Read(ctx context.Context, req ReadRequest) (resp *ReadResponse, err error) {
	params := map[string]string{"path": req.Path}
	defer e.finish(ctx, "readFile", params, &err)

	if req.Path == "" {
		return nil, invalid(ErrPathRequired)
	}
	if req.MaxSize < 0 {
		return nil, invalid(ErrInvalidMaxSize)
	}
	enc, err := NormalizeEncoding(req.Encoding)
	if err != nil {
		return nil, invalid(err)
	}

	abs, rel, err := e.paths.Resolve(req.Path)
	if err != nil {
		return nil, err
	}

	info, err := e.fs.Stat(abs)
	if err != nil {
		return nil, e.classify(err, rel)
	}
	if info.IsDir() {
		return nil, invalid(ErrIsDirectory)
	}

	limit := req.MaxSize
	if limit == 0 {
		limit = e.maxFileSize
	}

	raw, size, err := e.fs.ReadPrefix(abs, limit)
	if err != nil {
		return nil, e.classify(err, rel)
	}
	truncated := size > int64(len(raw))

	ambiguous := false
	if enc == EncodingAuto {
		enc, ambiguous = DetectEncoding(raw, truncated)
	}
	content, err := Decode(raw, enc)
	if err != nil {
		return nil, invalid(err)
	}

	params["bytes"] = strconv.Itoa(len(raw))
	params["truncated"] = strconv.FormatBool(truncated)
	return &ReadResponse{
		Path:              rel,
		Content:           content,
		Encoding:          enc,
		EncodingAmbiguous: ambiguous,
		Size:              size,
		BytesRead:         int64(len(raw)),
		IsTruncated:       truncated,
	}, nil
}

// Write replaces or creates a file. Order: path policy, size, lock, backup,
// directories, atomic write. A failure at any step leaves the original untouched.
func (e *Engine) Write(ctx context.Context, req WriteRequest) (resp *WriteResponse, err error) {
	params := map[string]string{"path": req.Path, "createBackup": strconv.FormatBool(req.CreateBackup)}
	defer e.finish(ctx, "writeFile", params, &err)

	if req.Path == "" {
		return nil, invalid(ErrPathRequired)
	}
	enc, err := NormalizeEncoding(req.Encoding)
	if err != nil {
		return nil, invalid(err)
	}
	if enc == EncodingAuto {
		enc = EncodingUTF8
	}

	abs, rel, err := e.paths.Resolve(req.Path)
	if err != nil {
		return nil, err
	}

	data, err := Encode(req.Content, enc)
	if err != nil {
		return nil, invalid(err)
	}
	if int64(len(data)) > e.maxFileSize {
		return nil, invalid(ErrFileTooLarge)
	}

	unlock := e.locks.Lock(abs)
	defer unlock()

	perm := os.FileMode(0o644)
	info, statErr := e.fs.Stat(abs)
	exists := statErr == nil
	switch {
	case exists && info.IsDir():
		return nil, invalid(ErrIsDirectory)
	case exists:
		perm = info.Mode().Perm()
	case !errors.Is(statErr, os.ErrNotExist):
		return nil, e.classify(statErr, rel)
	}

	resp = &WriteResponse{Path: rel, Created: !exists}
	if req.CreateBackup && exists {
		b, err := e.backups.CreateBackup(abs)
		if err != nil {
			return nil, err
		}
		resp.BackupPath, resp.Generation = b.BackupPath, b.Generation
		params["generation"] = strconv.Itoa(b.Generation)
	}

	created, err := e.ensureParent(abs, req.CreateDirectories)
	if err != nil {
		return nil, e.classify(err, rel)
	}

	if err := e.fs.WriteFileAtomic(abs, data, perm); err != nil {
		e.removeDirs(created)
		return nil, e.classify(err, rel)
	}

	resp.BytesWritten = len(data)
	params["bytes"] = strconv.Itoa(len(data))
	return resp, nil
}

// Delete removes a file, optionally backing it up first.
func (e *Engine) Delete(ctx context.Context, req DeleteRequest) (resp *DeleteResponse, err error) {
	params := map[string]string{"path": req.Path, "createBackup": strconv.FormatBool(req.CreateBackup)}
	defer e.finish(ctx, "deleteFile", params, &err)

	if req.Path == "" {
		return nil, invalid(ErrPathRequired)
	}
	abs, rel, err := e.paths.Resolve(req.Path)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(abs)
	defer unlock()

	info, err := e.fs.Stat(abs)
	if err != nil {
		return nil, e.classify(err, rel)
	}
	if info.IsDir() {
		return nil, invalid(ErrIsDirectory)
	}

	resp = &DeleteResponse{Path: rel}
	if req.CreateBackup {
		b, err := e.backups.CreateBackup(abs)
		if err != nil {
			return nil, err
		}
		resp.BackupPath, resp.Generation = b.BackupPath, b.Generation
	}

	if err := e.fs.Remove(abs); err != nil {
		return nil, e.classify(err, rel)
	}
	return resp, nil
}

// CreateDirectory creates path and any missing parents.
func (e *Engine) CreateDirectory(ctx context.Context, req CreateDirectoryRequest) (resp *CreateDirectoryResponse, err error) {
	params := map[string]string{"path": req.Path}
	defer e.finish(ctx, "createDirectory", params, &err)

	if req.Path == "" {
		return nil, invalid(ErrPathRequired)
	}
	abs, rel, err := e.paths.Resolve(req.Path)
	if err != nil {
		return nil, err
	}

	info, statErr := e.fs.Stat(abs)
	if statErr == nil {
		if !info.IsDir() {
			return nil, invalid(ErrNotADirectory)
		}
		return &CreateDirectoryResponse{Path: rel, Created: false}, nil
	}
	if err := e.fs.EnsureDirs(abs); err != nil {
		return nil, e.classify(err, rel)
	}
	return &CreateDirectoryResponse{Path: rel, Created: true}, nil
}

// ensureParent checks that abs's parent directory exists, creating it when
// create is set. created lists the directories it made, deepest first.
func (e *Engine) ensureParent(abs string, create bool) (created []string, err error) {
	parent := filepath.Dir(abs)
	info, err := e.fs.Stat(parent)
	if err == nil {
		if !info.IsDir() {
			return nil, invalid(ErrNotADirectory)
		}
		return nil, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if !create {
		return nil, gateerr.Wrap(gateerr.KindNotFound, ErrParentMissing.Error(), ErrParentMissing)
	}

	for dir := parent; ; dir = filepath.Dir(dir) {
		if _, err := e.fs.Stat(dir); !errors.Is(err, os.ErrNotExist) {
			break
		}
		created = append(created, dir)
		if filepath.Dir(dir) == dir {
			break
		}
	}
	if err := e.fs.EnsureDirs(parent); err != nil {
		e.removeDirs(created)
		return nil, err
	}
	return created, nil
}

// removeDirs removes directories made for a write that then failed. Only
// empty directories are removed.
func (e *Engine) removeDirs(dirs []string) {
	for _, dir := range dirs {
		if err := e.fs.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn().Err(err).Str("dir", dir).Msg("could not remove directory after failed write")
			return
		}
	}
}

// classify turns a filesystem error into the caller taxonomy. Unexpected
// errors are logged in full here because callers only see a generic message.
func (e *Engine) classify(err error, rel string) error {
	var ge *gateerr.Error
	if errors.As(err, &ge) {
		return err
	}
	switch gateerr.KindOf(err) {
	case gateerr.KindNotFound:
		return gateerr.Wrap(gateerr.KindNotFound, "file not found: "+rel, err)
	case gateerr.KindPermissionDenied:
		return gateerr.Wrap(gateerr.KindPermissionDenied, "permission denied: "+rel, err)
	}
	e.logger.Error().Err(err).Str("path", rel).Msg("file operation failed")
	return gateerr.Wrap(gateerr.KindInternal, "", err)
}

// finish records the outcome held in *errp. A panic is recorded as an
// internal error before it continues unwinding.
func (e *Engine) finish(ctx context.Context, kind string, params map[string]string, errp *error) {
	if r := recover(); r != nil {
		e.record(ctx, kind, params, gateerr.Panic(r))
		panic(r)
	}
	e.record(ctx, kind, params, *errp)
}

func (e *Engine) record(ctx context.Context, kind string, params map[string]string, err error) {
	e.audit.Record(audit.Stamp(ctx, audit.Record{
		Kind:    kind,
		Params:  params,
		Outcome: audit.OutcomeFor(err),
		Error:   audit.ErrorText(err),
	}))
}

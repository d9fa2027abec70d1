// Package fs wraps the local filesystem primitives the engines depend on.
package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// OSFileSystem implements filesystem operations using the local OS filesystem primitives.
type OSFileSystem struct{}

// NewOSFileSystem creates a new OSFileSystem.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// Stat returns file info for a path (follows symlinks).
func (fs *OSFileSystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Lstat returns file info for a path without following symlinks.
func (fs *OSFileSystem) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

// Readlink reads the target of a symlink.
func (fs *OSFileSystem) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

// UserHomeDir returns the current user's home directory.
func (fs *OSFileSystem) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// ReadFile reads the whole file.
func (fs *OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ReadPrefix reads at most limit bytes from the start of the file and reports
// the file's full size. A limit <= 0 reads the entire file.
func (fs *OSFileSystem) ReadPrefix(path string, limit int64) ([]byte, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, err
	}
	if info.IsDir() {
		return nil, 0, &OpError{Op: "read", Path: path, Cause: ErrIsDirectory}
	}

	size := info.Size()
	var r io.Reader = file
	if limit > 0 {
		r = io.LimitReader(file, limit)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return content, size, nil
}

// WriteFileAtomic writes content to a file atomically using temp file + rename pattern.
// The temp file is created in the same directory as the target so the rename stays on one device.
func (fs *OSFileSystem) WriteFileAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".gatekeep-tmp-*")
	if err != nil {
		return &OpError{Op: "create temp", Path: dir, Cause: err}
	}

	tmpPath := tmpFile.Name()
	needsCleanup := true

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
		}
		if needsCleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(content); err != nil {
		return &OpError{Op: "write temp", Path: tmpPath, Cause: err}
	}
	if err := tmpFile.Sync(); err != nil {
		return &OpError{Op: "sync temp", Path: tmpPath, Cause: err}
	}
	if err := tmpFile.Chmod(perm); err != nil {
		return &OpError{Op: "chmod temp", Path: tmpPath, Cause: err}
	}

	// Close file before rename (required on some systems)
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return &OpError{Op: "close temp", Path: tmpPath, Cause: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return &OpError{Op: "rename", Path: path, Cause: err}
	}
	needsCleanup = false
	return nil
}

// CopyFileAtomic copies src to dst verbatim, preserving the source mode.
// dst's parent directories are created as needed.
func (fs *OSFileSystem) CopyFileAtomic(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &OpError{Op: "copy", Path: src, Cause: ErrIsDirectory}
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &OpError{Op: "mkdir", Path: filepath.Dir(dst), Cause: err}
	}
	return fs.WriteFileAtomic(dst, content, info.Mode().Perm())
}

// EnsureDirs creates directories recursively if they don't exist.
func (fs *OSFileSystem) EnsureDirs(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Remove deletes a single file or empty directory.
func (fs *OSFileSystem) Remove(path string) error {
	return os.Remove(path)
}

// ListDir lists the contents of a directory.
func (fs *OSFileSystem) ListDir(path string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

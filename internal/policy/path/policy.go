// Package path confines filesystem paths to the project root and rejects
// sensitive locations.
package path

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/Cyclone1070/gatekeep/internal/policy"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// fileSystem is the subset of the filesystem needed to resolve paths.
type fileSystem interface {
	Lstat(path string) (os.FileInfo, error)
	Readlink(path string) (string, error)
	UserHomeDir() (string, error)
}

// Policy validates paths against a project root and a gitignore-style denylist.
// It is safe for concurrent use.
type Policy struct {
	root    string
	fs      fileSystem
	matcher gitignore.Matcher
}

// New creates a Policy rooted at root, which must be canonical (see CanonicaliseRoot).
// denied holds gitignore patterns relative to root. extraDeniedDirs are absolute
// directories that are rejected too when they fall inside root, such as the backup root.
func New(root string, fs fileSystem, denied []string, extraDeniedDirs ...string) *Policy {
	if root == "" {
		panic("root is required")
	}
	if fs == nil {
		panic("fs is required")
	}

	patterns := make([]gitignore.Pattern, 0, len(denied)+len(extraDeniedDirs))
	for _, line := range denied {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	for _, dir := range extraDeniedDirs {
		rel, err := filepath.Rel(root, filepath.Clean(dir))
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern("/"+filepath.ToSlash(rel)+"/", nil))
	}

	return &Policy{root: root, fs: fs, matcher: gitignore.NewMatcher(patterns)}
}

// Root returns the canonical project root.
func (p *Policy) Root() string {
	return p.root
}

// Resolve returns the normalised absolute path and its slash-separated path
// relative to the root. Rejections are *gateerr.Error of kind PathRejected
// wrapping one of this package's sentinels.
func (p *Policy) Resolve(path string) (abs string, rel string, err error) {
	abs, rel, err = resolve(p.root, p.fs, path)
	if err != nil {
		return "", "", reject(err)
	}
	if p.denied(abs, rel) {
		return "", "", gateerr.Wrap(gateerr.KindPathRejected, "path "+rel+" is denied by policy", ErrDenied)
	}
	return abs, rel, nil
}

// Validate reports whether path may be touched. It never panics.
func (p *Policy) Validate(path string) policy.ValidationResult {
	if _, _, err := p.Resolve(path); err != nil {
		return policy.Deny(gateerr.Public(err))
	}
	return policy.Allow()
}

func (p *Policy) denied(abs, rel string) bool {
	if rel == "" {
		return false
	}
	segments := strings.Split(rel, "/")
	isDir := false
	if info, err := p.fs.Lstat(abs); err == nil {
		isDir = info.IsDir()
	}
	return p.matcher.Match(segments, isDir)
}

func reject(err error) error {
	switch {
	case errors.Is(err, ErrOutsideRoot):
		return gateerr.Wrap(gateerr.KindPathRejected, ErrOutsideRoot.Error(), err)
	case errors.Is(err, ErrSymlinkLoop):
		return gateerr.Wrap(gateerr.KindPathRejected, ErrSymlinkLoop.Error(), err)
	case errors.Is(err, ErrEmptyPath), errors.Is(err, ErrInvalidPath):
		return gateerr.Wrap(gateerr.KindInvalidParams, err.Error(), err)
	}
	// Anything that stops resolution fails closed.
	return gateerr.Wrap(gateerr.KindPathRejected, "path cannot be resolved", err)
}

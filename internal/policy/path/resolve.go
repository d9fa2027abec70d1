package path

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxSymlinkHops = 64

// CanonicaliseRoot makes root absolute and resolves its symlinks.
// Returns an error if the path doesn't exist or isn't a directory.
func CanonicaliseRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", &RootError{Root: root, Cause: err}
	}

	resolved, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", &RootError{Root: absRoot, Cause: err}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", &RootError{Root: resolved, Cause: err}
	}
	if !info.IsDir() {
		return "", &RootError{Root: resolved, Cause: ErrNotADirectory}
	}
	return resolved, nil
}

// resolve normalises path against root and follows symlinks component by
// component, failing as soon as any step leaves root.
func resolve(root string, fs fileSystem, path string) (abs string, rel string, err error) {
	if path == "" {
		return "", "", ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return "", "", ErrInvalidPath
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := fs.UserHomeDir()
		if err != nil {
			return "", "", fmt.Errorf("expand ~: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}

	var absInput string
	if filepath.IsAbs(path) {
		absInput = filepath.Clean(path)
	} else {
		absInput = filepath.Join(root, path)
	}

	lexicalRel, err := filepath.Rel(root, absInput)
	if err != nil || lexicalRel == ".." || strings.HasPrefix(lexicalRel, ".."+string(filepath.Separator)) {
		return "", "", ErrOutsideRoot
	}
	if lexicalRel == "." {
		return root, "", nil
	}

	hops := 0
	resolved, _, err := walkComponents(root, fs, lexicalRel, &hops)
	if err != nil {
		return "", "", err
	}

	finalRel, err := filepath.Rel(root, resolved)
	if err != nil {
		return "", "", ErrOutsideRoot
	}
	finalRel = filepath.ToSlash(finalRel)
	if finalRel == "." {
		finalRel = ""
	}
	return resolved, finalRel, nil
}

// walkComponents resolves rel (already lexically inside root) one component
// at a time. A symlink target is itself walked from root, so links reached
// through other links are resolved too. hops counts every link followed
// across the whole walk. Missing components are appended verbatim so callers
// can create them; exists reports whether the full path was found.
func walkComponents(root string, fs fileSystem, rel string, hops *int) (resolved string, exists bool, err error) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	current := root

	for i, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if current == root {
				return "", false, ErrOutsideRoot
			}
			current = filepath.Dir(current)
			continue
		}

		next, found, err := resolveEntry(root, fs, filepath.Join(current, part), hops)
		if err != nil {
			return "", false, err
		}
		if !found {
			for _, rest := range parts[i+1:] {
				if rest != "" && rest != "." {
					next = filepath.Join(next, rest)
				}
			}
			if !within(next, root) {
				return "", false, ErrOutsideRoot
			}
			return next, false, nil
		}
		current = next
	}
	return current, true, nil
}

// resolveEntry resolves one path whose parent is already fully resolved.
// Every link target must stay inside root, including a dangling one.
func resolveEntry(root string, fs fileSystem, path string, hops *int) (resolved string, exists bool, err error) {
	info, err := fs.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return path, false, nil
		}
		return "", false, fmt.Errorf("lstat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		if !within(path, root) {
			return "", false, ErrOutsideRoot
		}
		return path, true, nil
	}

	*hops++
	if *hops > maxSymlinkHops {
		return "", false, ErrSymlinkLoop
	}

	target, err := fs.Readlink(path)
	if err != nil {
		return "", false, fmt.Errorf("readlink %s: %w", path, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	target = filepath.Clean(target)
	if !within(target, root) {
		return "", false, ErrOutsideRoot
	}

	targetRel, err := filepath.Rel(root, target)
	if err != nil {
		return "", false, ErrOutsideRoot
	}
	return walkComponents(root, fs, targetRel, hops)
}

// within reports whether path is root or below it.
func within(path, root string) bool {
	path = filepath.Clean(path)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// Package mocks provides fault-injecting doubles for engine tests.
package mocks

import (
	"os"
	"sync"

	gatefs "github.com/Cyclone1070/gatekeep/internal/service/fs"
)

// FaultyFileSystem wraps the real filesystem and fails selected operations.
// Errors are keyed by operation name ("Stat", "WriteFileAtomic", ...) and
// optionally by path.
type FaultyFileSystem struct {
	*gatefs.OSFileSystem

	Mu        sync.Mutex
	OpErrors  map[string]error            // operation -> error to return
	PathErrs  map[string]map[string]error // operation -> path -> error
	FailAfter map[string]int              // operation -> calls allowed before OpErrors applies
	Calls     map[string]int              // operation -> calls seen
}

// NewFaultyFileSystem creates a FaultyFileSystem with no faults configured.
func NewFaultyFileSystem() *FaultyFileSystem {
	return &FaultyFileSystem{
		OSFileSystem: gatefs.NewOSFileSystem(),
		OpErrors:     make(map[string]error),
		PathErrs:     make(map[string]map[string]error),
		FailAfter:    make(map[string]int),
		Calls:        make(map[string]int),
	}
}

// SetOperationError fails every call to op.
func (f *FaultyFileSystem) SetOperationError(op string, err error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.OpErrors[op] = err
}

// SetOperationErrorAfter lets n calls to op succeed, then fails the rest.
func (f *FaultyFileSystem) SetOperationErrorAfter(op string, n int, err error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.OpErrors[op] = err
	f.FailAfter[op] = n
}

// SetPathError fails op only for path.
func (f *FaultyFileSystem) SetPathError(op, path string, err error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if f.PathErrs[op] == nil {
		f.PathErrs[op] = make(map[string]error)
	}
	f.PathErrs[op][path] = err
}

// CallCount returns how many times op was invoked.
func (f *FaultyFileSystem) CallCount(op string) int {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	return f.Calls[op]
}

func (f *FaultyFileSystem) fault(op, path string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.Calls[op]++
	if err, ok := f.PathErrs[op][path]; ok {
		return err
	}
	err, ok := f.OpErrors[op]
	if !ok {
		return nil
	}
	if f.Calls[op] <= f.FailAfter[op] {
		return nil
	}
	return err
}

func (f *FaultyFileSystem) Stat(path string) (os.FileInfo, error) {
	if err := f.fault("Stat", path); err != nil {
		return nil, err
	}
	return f.OSFileSystem.Stat(path)
}

func (f *FaultyFileSystem) ReadFile(path string) ([]byte, error) {
	if err := f.fault("ReadFile", path); err != nil {
		return nil, err
	}
	return f.OSFileSystem.ReadFile(path)
}

func (f *FaultyFileSystem) ReadPrefix(path string, limit int64) ([]byte, int64, error) {
	if err := f.fault("ReadPrefix", path); err != nil {
		return nil, 0, err
	}
	return f.OSFileSystem.ReadPrefix(path, limit)
}

func (f *FaultyFileSystem) WriteFileAtomic(path string, content []byte, perm os.FileMode) error {
	if err := f.fault("WriteFileAtomic", path); err != nil {
		return err
	}
	return f.OSFileSystem.WriteFileAtomic(path, content, perm)
}

func (f *FaultyFileSystem) CopyFileAtomic(src, dst string) error {
	if err := f.fault("CopyFileAtomic", src); err != nil {
		return err
	}
	return f.OSFileSystem.CopyFileAtomic(src, dst)
}

func (f *FaultyFileSystem) EnsureDirs(path string) error {
	if err := f.fault("EnsureDirs", path); err != nil {
		return err
	}
	return f.OSFileSystem.EnsureDirs(path)
}

func (f *FaultyFileSystem) Remove(path string) error {
	if err := f.fault("Remove", path); err != nil {
		return err
	}
	return f.OSFileSystem.Remove(path)
}

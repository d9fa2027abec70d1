// Package testhelpers provides shared fixtures for engine and integration tests.
package testhelpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	pathpolicy "github.com/Cyclone1070/gatekeep/internal/policy/path"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Workspace is a temporary project root with a canonical path.
type Workspace struct {
	Root string
}

// CreateTestWorkspace creates a canonical temporary project root.
func CreateTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	root, err := pathpolicy.CanonicaliseRoot(t.TempDir())
	require.NoError(t, err)
	return &Workspace{Root: root}
}

// Path returns the absolute path of rel inside the workspace.
func (w *Workspace) Path(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}

// WriteFile creates rel with content, making parent directories as needed.
func (w *Workspace) WriteFile(t *testing.T, rel string, content []byte) string {
	t.Helper()
	abs := w.Path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, content, 0o644))
	return abs
}

// ReadFile returns the content of rel.
func (w *Workspace) ReadFile(t *testing.T, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(w.Path(rel))
	require.NoError(t, err)
	return data
}

// NewAuditLog returns an in-memory audit log and its sink.
func NewAuditLog() (*audit.Log, *audit.MemorySink) {
	sink := audit.NewMemorySink()
	return audit.New(sink, zerolog.Nop()), sink
}

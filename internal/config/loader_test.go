package config

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockFileSystem implements FileSystem for testing.
type MockFileSystem struct {
	HomeDir     string
	HomeDirErr  error
	Files       map[string][]byte
	ReadFileErr error
}

func (m *MockFileSystem) UserHomeDir() (string, error) {
	return m.HomeDir, m.HomeDirErr
}

func (m *MockFileSystem) ReadFile(path string) ([]byte, error) {
	if m.ReadFileErr != nil {
		return nil, m.ReadFileErr
	}
	data, ok := m.Files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

const dotfile = "/home/user/.config/gatekeep/config.json"

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// --- HAPPY PATH TESTS ---

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	fs := &MockFileSystem{HomeDir: "/home/user", Files: map[string][]byte{}}
	loader := NewLoaderWithFS(fs)

	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Server.MaxConcurrentRequests)
	assert.Equal(t, 60000, cfg.Exec.DefaultTimeoutMs)
	assert.Equal(t, int64(10*1024*1024), cfg.Files.MaxFileSize)
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
	assert.Equal(t, 10, cfg.Backup.MaxGenerations)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_PartialOverride_MergesWithDefaults(t *testing.T) {
	configJSON := `{"server": {"max_queue_depth": 32}, "backup": {"max_generations": 3}}`
	fs := &MockFileSystem{
		HomeDir: "/home/user",
		Files:   map[string][]byte{dotfile: []byte(configJSON)},
	}

	cfg, err := NewLoaderWithFS(fs).Load()

	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Server.MaxQueueDepth)         // Overridden
	assert.Equal(t, 3, cfg.Backup.MaxGenerations)         // Overridden
	assert.Equal(t, 10, cfg.Server.MaxConcurrentRequests) // Default
	assert.Equal(t, 7, cfg.Backup.RetentionDays)          // Default
	assert.Contains(t, cfg.Policy.DeniedPaths, ".git/")   // Default list
}

func TestLoad_EnvOverridesDotfile(t *testing.T) {
	configJSON := `{"project_root": "/from/file", "exec": {"default_timeout_ms": 1000}}`
	fs := &MockFileSystem{
		HomeDir: "/home/user",
		Files:   map[string][]byte{dotfile: []byte(configJSON)},
	}
	env := envMap(map[string]string{
		"PROJECT_ROOT":            "/from/env",
		"LOG_PATH":                "/var/log/gatekeep.log",
		"MAX_CONCURRENT_REQUESTS": "3",
		"DEFAULT_TIMEOUT":         "5000",
		"MAX_FILE_SIZE":           "2048",
		"BACKUP_RETENTION_DAYS":   "1",
		"MAX_BACKUP_GENERATIONS":  "2",
		"LOG_LEVEL":               "debug",
	})

	cfg, err := NewLoaderWithEnv(fs, env).Load()

	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.ProjectRoot)
	assert.Equal(t, "/var/log/gatekeep.log", cfg.Audit.Path)
	assert.Equal(t, 3, cfg.Server.MaxConcurrentRequests)
	assert.Equal(t, 5000, cfg.Exec.DefaultTimeoutMs)
	assert.Equal(t, int64(2048), cfg.Files.MaxFileSize)
	assert.Equal(t, 1, cfg.Backup.RetentionDays)
	assert.Equal(t, 2, cfg.Backup.MaxGenerations)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFrom_ExplicitPath(t *testing.T) {
	fs := &MockFileSystem{
		Files: map[string][]byte{"/etc/gatekeep.json": []byte(`{"audit": {"sink": "sqlite", "path": "audit.db"}}`)},
	}

	cfg, err := NewLoaderWithFS(fs).LoadFrom("/etc/gatekeep.json")

	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Audit.Sink)
	assert.Equal(t, "audit.db", cfg.Audit.Path)
}

// --- ERROR PATH TESTS ---

func TestLoad_MalformedJSON_ReturnsError(t *testing.T) {
	fs := &MockFileSystem{
		HomeDir: "/home/user",
		Files:   map[string][]byte{dotfile: []byte(`{"server": {`)},
	}

	cfg, err := NewLoaderWithFS(fs).Load()

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid config file")
}

func TestLoad_PermissionDenied_ReturnsError(t *testing.T) {
	fs := &MockFileSystem{HomeDir: "/home/user", ReadFileErr: os.ErrPermission}

	_, err := NewLoaderWithFS(fs).Load()

	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestLoad_HomeDirError_ReturnsDefaults(t *testing.T) {
	fs := &MockFileSystem{HomeDirErr: errors.New("no home")}

	cfg, err := NewLoaderWithFS(fs).Load()

	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Server.MaxConcurrentRequests)
}

func TestLoad_NegativeValues_Rejected(t *testing.T) {
	fs := &MockFileSystem{
		HomeDir: "/home/user",
		Files:   map[string][]byte{dotfile: []byte(`{"files": {"max_file_size": -1}}`)},
	}

	_, err := NewLoaderWithFS(fs).Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "max_file_size")
}

func TestLoad_MalformedEnvNumber_ReturnsError(t *testing.T) {
	fs := &MockFileSystem{HomeDir: "/home/user", Files: map[string][]byte{}}
	env := envMap(map[string]string{"MAX_CONCURRENT_REQUESTS": "ten"})

	_, err := NewLoaderWithEnv(fs, env).Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CONCURRENT_REQUESTS")
}

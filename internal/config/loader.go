package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	// ConfigDir is the directory name under ~/.config
	ConfigDir = "gatekeep"
	// ConfigFile is the config file name
	ConfigFile = "config.json"
)

// FileSystem abstracts file operations for testability
type FileSystem interface {
	UserHomeDir() (string, error)
	ReadFile(path string) ([]byte, error)
}

// ConfigFileReader implements FileSystem using the real OS for config loading
type ConfigFileReader struct{}

func (ConfigFileReader) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

func (ConfigFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Loader handles configuration loading with injected dependencies
type Loader struct {
	fs     FileSystem
	getenv func(string) string
}

// NewLoader creates a production Loader using the real filesystem and environment
func NewLoader() *Loader {
	return &Loader{fs: ConfigFileReader{}, getenv: os.Getenv}
}

// NewLoaderWithFS creates a Loader with a custom filesystem and no environment (for testing)
func NewLoaderWithFS(fs FileSystem) *Loader {
	return &Loader{fs: fs, getenv: func(string) string { return "" }}
}

// NewLoaderWithEnv creates a Loader with a custom filesystem and environment lookup
func NewLoaderWithEnv(fs FileSystem, getenv func(string) string) *Loader {
	return &Loader{fs: fs, getenv: getenv}
}

// Load reads configuration from ~/.config/gatekeep/config.json,
// merges it with defaults and applies environment overrides.
// Returns default config if dotfile doesn't exist.
// Returns error only for parse errors, permission issues, or validation failures.
func (l *Loader) Load() (*Config, error) {
	homeDir, err := l.fs.UserHomeDir()
	if err != nil {
		return l.finish(DefaultConfig()) // Use defaults if can't get home dir
	}
	return l.LoadFrom(filepath.Join(homeDir, ".config", ConfigDir, ConfigFile))
}

// LoadFrom reads configuration from an explicit path. A missing file yields defaults.
//
// NOTE: JSON keys are unmarshalled directly over the default configuration,
// so explicit zero values in the file override defaults.
func (l *Loader) LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := l.fs.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return l.finish(cfg)
		}
		return nil, err // Return error for permission issues
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return l.finish(cfg)
}

func (l *Loader) finish(cfg *Config) (*Config, error) {
	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the recognised environment variables. Unset or empty
// variables leave the current value alone; malformed numbers are an error.
func (l *Loader) applyEnv(cfg *Config) error {
	if v := l.getenv("PROJECT_ROOT"); v != "" {
		cfg.ProjectRoot = v
	}
	if v := l.getenv("LOG_PATH"); v != "" {
		cfg.Audit.Path = v
	}
	if v := l.getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_CONCURRENT_REQUESTS", &cfg.Server.MaxConcurrentRequests},
		{"DEFAULT_TIMEOUT", &cfg.Exec.DefaultTimeoutMs},
		{"BACKUP_RETENTION_DAYS", &cfg.Backup.RetentionDays},
		{"MAX_BACKUP_GENERATIONS", &cfg.Backup.MaxGenerations},
	}
	for _, e := range ints {
		v := l.getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", e.key, v, err)
		}
		*e.dst = n
	}

	if v := l.getenv("MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_FILE_SIZE=%q: %w", v, err)
		}
		cfg.Files.MaxFileSize = n
	}
	return nil
}

// Load is a convenience function using the default loader
func Load() (*Config, error) {
	return NewLoader().Load()
}

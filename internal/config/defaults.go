package config

// Config holds all gateway configuration values.
// Defaults are set in DefaultConfig() and can be overridden via dotfile, then environment.
// NOTE: Values in config files override defaults, including explicit zero values.
// Missing keys are left at their default values.
type Config struct {
	// ProjectRoot is the directory every path operation is confined to.
	// Empty means the current working directory.
	ProjectRoot string `json:"project_root"`

	Server ServerConfig `json:"server"`
	Files  FilesConfig  `json:"files"`
	Backup BackupConfig `json:"backup"`
	Exec   ExecConfig   `json:"exec"`
	Policy PolicyConfig `json:"policy"`
	Audit  AuditConfig  `json:"audit"`
	Log    LogConfig    `json:"log"`
}

type ServerConfig struct {
	MaxConcurrentRequests int `json:"max_concurrent_requests"` // Default: 10
	MaxQueueDepth         int `json:"max_queue_depth"`         // Default: 0 (unbounded queue)
}

type FilesConfig struct {
	MaxFileSize                 int64 `json:"max_file_size"`                 // Default: 10 * 1024 * 1024 (10MiB)
	DeleteConfirmationThreshold int   `json:"delete_confirmation_threshold"` // Default: 100 lines
}

type BackupConfig struct {
	// Dir is the backup root. Relative paths are resolved against the project root.
	Dir            string `json:"dir"`             // Default: .gatekeep/backups
	RetentionDays  int    `json:"retention_days"`  // Default: 7
	MaxGenerations int    `json:"max_generations"` // Default: 10
}

type ExecConfig struct {
	DefaultTimeoutMs       int   `json:"default_timeout_ms"`       // Default: 60000
	MaxTimeoutMs           int   `json:"max_timeout_ms"`           // Default: 3600000
	KillGracePeriodMs      int   `json:"kill_grace_period_ms"`     // Default: 2000
	MaxConcurrentProcesses int   `json:"max_concurrent_processes"` // Default: 4
	MaxOutputBytes         int64 `json:"max_output_bytes"`         // Default: 10 * 1024 * 1024 (10MiB)
	BinarySampleSize       int   `json:"binary_sample_size"`       // Default: 8000
	ExitedRetentionSeconds int   `json:"exited_retention_seconds"` // Default: 600
}

type PolicyConfig struct {
	// DeniedPaths are gitignore-style patterns matched against project-relative paths.
	DeniedPaths []string `json:"denied_paths"`
	// RulesFile is an optional YAML file with command allow/deny rules.
	RulesFile  string `json:"rules_file"`
	WatchRules bool   `json:"watch_rules"` // Default: true
}

type AuditConfig struct {
	Sink string `json:"sink"` // "jsonl" (default), "sqlite" or "none"
	Path string `json:"path"` // Default: .gatekeep/audit.log
}

type LogConfig struct {
	Level string `json:"level"` // error|warn|info|debug. Default: info
	File  string `json:"file"`  // Empty logs to stderr
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			MaxConcurrentRequests: 10,
			MaxQueueDepth:         0,
		},
		Files: FilesConfig{
			MaxFileSize:                 10 * 1024 * 1024,
			DeleteConfirmationThreshold: 100,
		},
		Backup: BackupConfig{
			Dir:            ".gatekeep/backups",
			RetentionDays:  7,
			MaxGenerations: 10,
		},
		Exec: ExecConfig{
			DefaultTimeoutMs:       60000,
			MaxTimeoutMs:           3600000,
			KillGracePeriodMs:      2000,
			MaxConcurrentProcesses: 4,
			MaxOutputBytes:         10 * 1024 * 1024,
			BinarySampleSize:       8000,
			ExitedRetentionSeconds: 600,
		},
		Policy: PolicyConfig{
			DeniedPaths: []string{
				".git/",
				".env",
				".env.*",
				"*.pem",
				"*.key",
				"id_rsa*",
				"id_ed25519*",
				".ssh/",
				".aws/",
				".npmrc",
				".netrc",
				".gatekeep/",
			},
			WatchRules: true,
		},
		Audit: AuditConfig{
			Sink: "jsonl",
			Path: ".gatekeep/audit.log",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

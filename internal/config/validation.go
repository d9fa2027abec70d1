package config

import (
	"fmt"
	"slices"
)

var validLogLevels = []string{"error", "warn", "info", "debug"}

var validAuditSinks = []string{"jsonl", "sqlite", "none"}

// Validate checks config values for correctness.
// Returns an error listing every invalid value.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.MaxConcurrentRequests < 1 {
		errs = append(errs, "server.max_concurrent_requests must be >= 1")
	}
	if c.Server.MaxQueueDepth < 0 {
		errs = append(errs, "server.max_queue_depth must be >= 0")
	}

	if c.Files.MaxFileSize < 1 {
		errs = append(errs, "files.max_file_size must be >= 1")
	}
	if c.Files.DeleteConfirmationThreshold < 1 {
		errs = append(errs, "files.delete_confirmation_threshold must be >= 1")
	}

	if c.Backup.Dir == "" {
		errs = append(errs, "backup.dir must not be empty")
	}
	if c.Backup.RetentionDays < 0 {
		errs = append(errs, "backup.retention_days must be >= 0")
	}
	if c.Backup.MaxGenerations < 1 {
		errs = append(errs, "backup.max_generations must be >= 1")
	}

	if c.Exec.DefaultTimeoutMs < 1 {
		errs = append(errs, "exec.default_timeout_ms must be >= 1")
	}
	if c.Exec.MaxTimeoutMs < 1 {
		errs = append(errs, "exec.max_timeout_ms must be >= 1")
	}
	if c.Exec.DefaultTimeoutMs > c.Exec.MaxTimeoutMs {
		errs = append(errs, "exec.default_timeout_ms must be <= exec.max_timeout_ms")
	}
	if c.Exec.KillGracePeriodMs < 0 {
		errs = append(errs, "exec.kill_grace_period_ms must be >= 0")
	}
	if c.Exec.MaxConcurrentProcesses < 1 {
		errs = append(errs, "exec.max_concurrent_processes must be >= 1")
	}
	if c.Exec.MaxOutputBytes < 1 {
		errs = append(errs, "exec.max_output_bytes must be >= 1")
	}
	if c.Exec.BinarySampleSize < 0 {
		errs = append(errs, "exec.binary_sample_size must be >= 0")
	}
	if c.Exec.ExitedRetentionSeconds < 0 {
		errs = append(errs, "exec.exited_retention_seconds must be >= 0")
	}

	if !slices.Contains(validAuditSinks, c.Audit.Sink) {
		errs = append(errs, fmt.Sprintf("audit.sink must be one of %v", validAuditSinks))
	}
	if c.Audit.Sink != "none" && c.Audit.Path == "" {
		errs = append(errs, "audit.path must not be empty")
	}

	if !slices.Contains(validLogLevels, c.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level must be one of %v", validLogLevels))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}

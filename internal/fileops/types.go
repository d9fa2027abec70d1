package fileops

import "github.com/Cyclone1070/gatekeep/internal/backup"

type ReadRequest struct {
	Path     string `json:"path" mapstructure:"path"`
	Encoding string `json:"encoding,omitempty" mapstructure:"encoding"`
	// MaxSize caps the bytes returned. Zero uses the configured maximum file size.
	MaxSize int64 `json:"maxSize,omitempty" mapstructure:"maxSize"`
}

type ReadResponse struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	// EncodingAmbiguous is set when auto-detection fell back to utf-8.
	EncodingAmbiguous bool  `json:"encodingAmbiguous,omitempty"`
	Size              int64 `json:"size"`
	BytesRead         int64 `json:"bytesRead"`
	IsTruncated       bool  `json:"isTruncated"`
}

type WriteRequest struct {
	Path              string `json:"path" mapstructure:"path"`
	Content           string `json:"content" mapstructure:"content"`
	Encoding          string `json:"encoding,omitempty" mapstructure:"encoding"`
	CreateBackup      bool   `json:"createBackup,omitempty" mapstructure:"createBackup"`
	CreateDirectories bool   `json:"createDirectories,omitempty" mapstructure:"createDirectories"`
}

type WriteResponse struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytesWritten"`
	Created      bool   `json:"created"`
	BackupPath   string `json:"backupPath,omitempty"`
	Generation   int    `json:"generation,omitempty"`
}

type DeleteRequest struct {
	Path         string `json:"path" mapstructure:"path"`
	CreateBackup bool   `json:"createBackup,omitempty" mapstructure:"createBackup"`
}

type DeleteResponse struct {
	Path       string `json:"path"`
	BackupPath string `json:"backupPath,omitempty"`
	Generation int    `json:"generation,omitempty"`
}

type CreateDirectoryRequest struct {
	Path string `json:"path" mapstructure:"path"`
}

type CreateDirectoryResponse struct {
	Path    string `json:"path"`
	Created bool   `json:"created"`
}

type ListBackupsRequest struct {
	Path string `json:"path" mapstructure:"path"`
}

type ListBackupsResponse struct {
	Path    string          `json:"path"`
	Backups []backup.Backup `json:"backups"`
}

type RestoreBackupRequest struct {
	Path string `json:"path" mapstructure:"path"`
	// Generation selects the backup; zero restores the newest.
	Generation int `json:"generation,omitempty" mapstructure:"generation"`
}

type RestoreBackupResponse struct {
	Path       string `json:"path"`
	Generation int    `json:"generation"`
	// SafetyBackupPath holds the content that was replaced, if the file existed.
	SafetyBackupPath string `json:"safetyBackupPath,omitempty"`
}

// EditRequest is a read-modify-write of one or more existing files.
type EditRequest struct {
	// Operation names the audit record, e.g. "insertCode".
	Operation    string
	Paths        []string
	CreateBackup bool
	// DryRun computes the new contents without writing or backing up.
	DryRun bool
	// Params is merged into the audit summary.
	Params map[string]string
	// Apply receives the current raw contents keyed by the requested path and
	// returns replacements for the files it changes. An error aborts the edit
	// before anything is written.
	Apply func(current map[string][]byte) (map[string][]byte, error)
}

// EditedFile describes one file touched by an edit.
type EditedFile struct {
	// Key is the path as given in EditRequest.Paths.
	Key        string `json:"-"`
	Path       string `json:"path"`
	Before     []byte `json:"-"`
	After      []byte `json:"-"`
	BackupPath string `json:"backupPath,omitempty"`
	Generation int    `json:"generation,omitempty"`
}

type EditResult struct {
	// Files lists the changed files in request order.
	Files []EditedFile
}

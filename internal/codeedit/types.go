package codeedit

import "github.com/Cyclone1070/gatekeep/internal/host"

// LineRange is an inclusive range of 1-indexed lines.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type InsertRequest struct {
	Path string `json:"path" mapstructure:"path"`
	// Line is the 1-indexed line the content is inserted before. lineCount+1 appends.
	Line           int    `json:"line" mapstructure:"line"`
	Content        string `json:"content" mapstructure:"content"`
	PreserveIndent bool   `json:"preserveIndent,omitempty" mapstructure:"preserveIndent"`
	CreateBackup   *bool  `json:"createBackup,omitempty" mapstructure:"createBackup"`
}

type InsertResponse struct {
	Path          string    `json:"path"`
	ModifiedRange LineRange `json:"modifiedRange"`
	LinesInserted int       `json:"linesInserted"`
	Diff          string    `json:"diff,omitempty"`
	BackupPath    string    `json:"backupPath,omitempty"`
}

type DeleteRequest struct {
	Path      string `json:"path" mapstructure:"path"`
	StartLine int    `json:"startLine" mapstructure:"startLine"`
	EndLine   int    `json:"endLine" mapstructure:"endLine"`
	// RequireConfirmation must be set to delete more lines than the confirmation threshold.
	RequireConfirmation bool  `json:"requireConfirmation,omitempty" mapstructure:"requireConfirmation"`
	CreateBackup        *bool `json:"createBackup,omitempty" mapstructure:"createBackup"`
}

type DeleteResponse struct {
	Path         string `json:"path"`
	LinesDeleted int    `json:"linesDeleted"`
	Confirmed    bool   `json:"confirmed"`
	Diff         string `json:"diff,omitempty"`
	BackupPath   string `json:"backupPath,omitempty"`
}

type ReplaceRequest struct {
	Path        string `json:"path" mapstructure:"path"`
	Pattern     string `json:"pattern" mapstructure:"pattern"`
	Replacement string `json:"replacement" mapstructure:"replacement"`
	// IsRegex selects RE2 syntax; the replacement may then use $1 and ${name}.
	IsRegex bool `json:"isRegex,omitempty" mapstructure:"isRegex"`
	// Preview computes the result without writing.
	Preview bool `json:"preview,omitempty" mapstructure:"preview"`
	// StartLine and EndLine optionally scope the search. Zero means unbounded.
	StartLine    int   `json:"startLine,omitempty" mapstructure:"startLine"`
	EndLine      int   `json:"endLine,omitempty" mapstructure:"endLine"`
	CreateBackup *bool `json:"createBackup,omitempty" mapstructure:"createBackup"`
}

type ReplaceResponse struct {
	Path             string `json:"path"`
	ReplacementCount int    `json:"replacementCount"`
	AffectedLines    []int  `json:"affectedLines"`
	Preview          string `json:"preview,omitempty"`
	Applied          bool   `json:"applied"`
	BackupPath       string `json:"backupPath,omitempty"`
}

// TextEdit replaces Range in File with NewText.
type TextEdit struct {
	File    string     `json:"file" mapstructure:"file"`
	Range   host.Range `json:"range" mapstructure:"range"`
	NewText string     `json:"newText" mapstructure:"newText"`
}

// QuickFix is a named set of edits applied together.
type QuickFix struct {
	ID          string           `json:"id" mapstructure:"id"`
	Title       string           `json:"title" mapstructure:"title"`
	Description string           `json:"description,omitempty" mapstructure:"description"`
	Edits       []TextEdit       `json:"edits" mapstructure:"edits"`
	Diagnostic  *host.Diagnostic `json:"diagnostic,omitempty" mapstructure:"diagnostic"`
}

type ApplyQuickFixRequest struct {
	Fix          QuickFix `json:"fix" mapstructure:"fix"`
	CreateBackup *bool    `json:"createBackup,omitempty" mapstructure:"createBackup"`
}

type ApplyQuickFixResponse struct {
	Success       bool     `json:"success"`
	FilesModified []string `json:"filesModified"`
	Diff          string   `json:"diff,omitempty"`
}

// backupRequested treats an omitted createBackup as true.
func backupRequested(b *bool) bool {
	return b == nil || *b
}

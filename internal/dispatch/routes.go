package dispatch

import (
	"context"
	"strings"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/Cyclone1070/gatekeep/internal/codeedit"
	"github.com/Cyclone1070/gatekeep/internal/execution"
	"github.com/Cyclone1070/gatekeep/internal/fileops"
	"github.com/Cyclone1070/gatekeep/internal/policy"
)

type pathValidator interface {
	Validate(path string) policy.ValidationResult
}

type commandValidator interface {
	Validate(command string, args []string) policy.ValidationResult
}

type fileEngine interface {
	Read(ctx context.Context, req fileops.ReadRequest) (*fileops.ReadResponse, error)
	Write(ctx context.Context, req fileops.WriteRequest) (*fileops.WriteResponse, error)
	Delete(ctx context.Context, req fileops.DeleteRequest) (*fileops.DeleteResponse, error)
	CreateDirectory(ctx context.Context, req fileops.CreateDirectoryRequest) (*fileops.CreateDirectoryResponse, error)
	ListBackups(ctx context.Context, req fileops.ListBackupsRequest) (*fileops.ListBackupsResponse, error)
	RestoreBackup(ctx context.Context, req fileops.RestoreBackupRequest) (*fileops.RestoreBackupResponse, error)
}

type codeEngine interface {
	Insert(ctx context.Context, req codeedit.InsertRequest) (*codeedit.InsertResponse, error)
	Delete(ctx context.Context, req codeedit.DeleteRequest) (*codeedit.DeleteResponse, error)
	Replace(ctx context.Context, req codeedit.ReplaceRequest) (*codeedit.ReplaceResponse, error)
	ApplyQuickFix(ctx context.Context, req codeedit.ApplyQuickFixRequest) (*codeedit.ApplyQuickFixResponse, error)
}

type execEngine interface {
	Execute(ctx context.Context, req execution.ExecuteRequest) (*execution.ExecuteResponse, error)
	ExecuteBuild(ctx context.Context, req execution.BuildRequest) (*execution.BuildResponse, error)
	Kill(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (*execution.ProcessStatus, error)
}

// Engines are the collaborators behind the built-in operation kinds.
type Engines struct {
	Paths    pathValidator
	Commands commandValidator
	Files    fileEngine
	Code     codeEngine
	Exec     execEngine
}

// KillResponse confirms a kill request.
type KillResponse struct {
	ProcessID string `json:"processId"`
	Killed    bool   `json:"killed"`
}

// RegisterEngines registers every built-in operation kind.
func (d *Dispatcher) RegisterEngines(e Engines) {
	if e.Paths == nil || e.Commands == nil || e.Files == nil || e.Code == nil || e.Exec == nil {
		panic("all engines are required")
	}

	d.Register(
		NewRoute("validatePath", "Check whether a path may be accessed", func(ctx context.Context, req pathRequest) (policy.ValidationResult, error) {
			res := e.Paths.Validate(req.Path)
			d.recordVerdict(ctx, "validatePath", map[string]string{"path": req.Path}, res)
			return res, nil
		}),
		NewRoute("validateCommand", "Check whether a command may be executed", func(ctx context.Context, req commandRequest) (policy.ValidationResult, error) {
			res := e.Commands.Validate(req.Command, req.Args)
			d.recordVerdict(ctx, "validateCommand", map[string]string{"command": req.Command, "args": strings.Join(req.Args, " ")}, res)
			return res, nil
		}),

		NewRoute("readFile", "Read a file, detecting its encoding", e.Files.Read),
		NewRoute("writeFile", "Write a file atomically, optionally backing up the original", e.Files.Write),
		NewRoute("deleteFile", "Delete a file, optionally backing it up first", e.Files.Delete),
		NewRoute("createDirectory", "Create a directory and any missing parents", e.Files.CreateDirectory),

		NewRoute("insertCode", "Insert lines before a given line", e.Code.Insert),
		NewRoute("deleteCode", "Delete a range of lines", e.Code.Delete),
		NewRoute("replaceCode", "Replace text or regex matches, optionally as a preview", e.Code.Replace),
		NewRoute("applyQuickFix", "Apply a quick fix across files atomically", e.Code.ApplyQuickFix),

		NewRoute("executeCommand", "Run an allow-listed command without a shell", e.Exec.Execute),
		NewRoute("executeBuild", "Detect and run the project build, parsing diagnostics", e.Exec.ExecuteBuild),
		NewRoute("killProcess", "Terminate a background process", func(ctx context.Context, req processRequest) (*KillResponse, error) {
			if err := e.Exec.Kill(ctx, req.ProcessID); err != nil {
				return nil, err
			}
			return &KillResponse{ProcessID: req.ProcessID, Killed: true}, nil
		}),
		NewRoute("processStatus", "Report the state and output of a background process", func(ctx context.Context, req processRequest) (*execution.ProcessStatus, error) {
			return e.Exec.Status(ctx, req.ProcessID)
		}),

		NewRoute("listBackups", "List the backup generations of a file", e.Files.ListBackups),
		NewRoute("restoreBackup", "Restore a file from a backup generation", e.Files.RestoreBackup),

		NewRoute("listTools", "List the available operation kinds", func(ctx context.Context, _ empty) ([]Tool, error) {
			d.audit.Record(audit.Stamp(ctx, audit.Record{Kind: "listTools", Outcome: audit.OutcomeSuccess}))
			return d.Tools(), nil
		}),
	)
}

func (d *Dispatcher) recordVerdict(ctx context.Context, kind string, params map[string]string, res policy.ValidationResult) {
	rec := audit.Record{Kind: kind, Params: params, Outcome: audit.OutcomeSuccess}
	if !res.Valid {
		rec.Outcome = audit.OutcomeBlocked
		rec.Error = res.Reason
	}
	d.audit.Record(audit.Stamp(ctx, rec))
}

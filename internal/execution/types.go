package execution

import (
	"time"

	"github.com/Cyclone1070/gatekeep/internal/host"
)

// State is the lifecycle state of a managed process.
type State string

const (
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateKilled   State = "killed"
	StateTimedOut State = "timedOut"
)

type ExecuteRequest struct {
	Command string   `json:"command" mapstructure:"command"`
	Args    []string `json:"args,omitempty" mapstructure:"args"`
	// Cwd defaults to the project root.
	Cwd string `json:"cwd,omitempty" mapstructure:"cwd"`
	// TimeoutMs overrides the configured default, up to the configured maximum.
	TimeoutMs  int               `json:"timeoutMs,omitempty" mapstructure:"timeoutMs"`
	Background bool              `json:"background,omitempty" mapstructure:"background"`
	Env        map[string]string `json:"env,omitempty" mapstructure:"env"`
}

type ExecuteResponse struct {
	ExitCode   int    `json:"exitCode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"durationMs"`
	// ProcessID is set for background executions.
	ProcessID string `json:"processId,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	State     State  `json:"state"`
}

// ProcessStatus is a point-in-time snapshot of a tracked process.
type ProcessStatus struct {
	ID         string    `json:"processId"`
	Command    string    `json:"command"`
	Args       []string  `json:"args,omitempty"`
	State      State     `json:"state"`
	ExitCode   *int      `json:"exitCode,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	Deadline   time.Time `json:"deadline"`
	DurationMs int64     `json:"durationMs"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	Truncated  bool      `json:"truncated,omitempty"`
}

// Build types.
const (
	BuildAuto    = "auto"
	BuildNPM     = "npm"
	BuildYarn    = "yarn"
	BuildPNPM    = "pnpm"
	BuildMaven   = "maven"
	BuildGradle  = "gradle"
	BuildMSBuild = "msbuild"
	BuildGo      = "go"
	BuildMake    = "make"
	BuildCargo   = "cargo"
)

type BuildRequest struct {
	ProjectPath string `json:"projectPath,omitempty" mapstructure:"projectPath"`
	BuildType   string `json:"buildType,omitempty" mapstructure:"buildType"`
	Target      string `json:"target,omitempty" mapstructure:"target"`
	TimeoutMs   int    `json:"timeoutMs,omitempty" mapstructure:"timeoutMs"`
}

type BuildResponse struct {
	Success    bool              `json:"success"`
	BuildType  string            `json:"buildType"`
	Command    []string          `json:"command"`
	BuildLog   string            `json:"buildLog"`
	Errors     []host.Diagnostic `json:"errors"`
	Warnings   []host.Diagnostic `json:"warnings"`
	Artifacts  []string          `json:"artifacts,omitempty"`
	ExitCode   int               `json:"exitCode"`
	DurationMs int64             `json:"durationMs"`
	Truncated  bool              `json:"truncated,omitempty"`
}

package dispatch

import "github.com/Cyclone1070/gatekeep/internal/gateerr"

// OperationRequest is one inbound call. Payload holds the kind-specific
// fields; Paths and Options are folded into it before decoding.
type OperationRequest struct {
	Kind      string         `json:"kind"`
	Paths     []string       `json:"paths,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Actor     string         `json:"actor,omitempty"`
}

// OperationResponse carries the result, the error, or both: a timed-out
// command still reports the output it produced.
type OperationResponse struct {
	RequestID string     `json:"requestId"`
	Kind      string     `json:"kind"`
	OK        bool       `json:"ok"`
	Result    any        `json:"result,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the caller-facing form of an error.
type ErrorBody struct {
	Kind    gateerr.Kind   `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Tool describes one operation kind.
type Tool struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

type pathRequest struct {
	Path string `mapstructure:"path"`
}

type commandRequest struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

type processRequest struct {
	ProcessID string `mapstructure:"processId"`
}

type empty struct{}

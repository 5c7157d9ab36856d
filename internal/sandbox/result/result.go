// Package result defines the response envelope and dispatch lifecycle states.
package result

// Status is the envelope-level outcome reported by the launcher.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// KindSecurity marks an envelope error raised by the allow-list guard rather
// than by user code.
const KindSecurity = "security"

// Envelope is the single response written by the launcher and read exactly
// once by the dispatcher. For script_run and shell_run a successful Result
// equals CapturedOutput; those modes have no structured return value.
type Envelope struct {
	Status         Status      `json:"status"`
	Result         interface{} `json:"result,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	ErrorTrace     string      `json:"error_trace,omitempty"`
	ErrorKind      string      `json:"error_kind,omitempty"`
	CapturedOutput string      `json:"captured_output"`
}

// RunResult is the dispatcher-level view of one completed call.
type RunResult struct {
	Value          interface{}
	CapturedOutput string
	ExitCode       int
	WallTimeMs     int64
}

// DispatchState tracks how far one call progressed through the protocol.
type DispatchState string

const (
	StateConstructed       DispatchState = "Constructed"
	StateRequestSerialized DispatchState = "RequestSerialized"
	StateChildSpawned      DispatchState = "ChildSpawned"
	StateResultRead        DispatchState = "ResultRead"
	StateChildExitNonzero  DispatchState = "ChildExitNonzero"
	StateArtifactMissing   DispatchState = "ArtifactMissing"
	StateTerminal          DispatchState = "Terminal"
)

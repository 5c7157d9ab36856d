package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 20000-20999: Sandbox pipeline errors (the sandbox failure family)
//
// Every code in the 20000 range is part of the sandbox failure family: callers
// are expected to match on the family, not on individual members, except for
// the two reserved sub-ranges (resource limits at 20100, security at 20200).

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	Internal      ErrorCode = 10001
	InvalidParams ErrorCode = 10002
	NotFound      ErrorCode = 10003
	Timeout       ErrorCode = 10004
	Unsupported   ErrorCode = 10005

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Sandbox Pipeline Errors (20000-20999) ==========

	// Pipeline failures (20000-20099): anything that breaks the
	// request -> spawn -> response round trip.
	SandboxFailure     ErrorCode = 20000
	HelperNotFound     ErrorCode = 20001
	ChildExitNonzero   ErrorCode = 20002
	NoResponseArtifact ErrorCode = 20003
	ChildException     ErrorCode = 20004
	ProvisionFailed    ErrorCode = 20005
	RootImageInvalid   ErrorCode = 20006
	UnsupportedHost    ErrorCode = 20007

	// Resource ceiling violations detected before spawning (20100-20199)
	ResourceLimitExceeded ErrorCode = 20100

	// Allow-list denials raised inside the child (20200-20299)
	SecurityViolation ErrorCode = 20200
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:       "Success",
	Internal:      "Internal error",
	InvalidParams: "Invalid parameters",
	NotFound:      "Resource not found",
	Timeout:       "Operation timed out",
	Unsupported:   "Operation not supported",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Sandbox pipeline
	SandboxFailure:     "Sandbox execution failed",
	HelperNotFound:     "Sandbox helper binary is not installed",
	ChildExitNonzero:   "Sandbox child exited with a nonzero status",
	NoResponseArtifact: "Sandbox produced no output",
	ChildException:     "Sandbox child reported an exception",
	ProvisionFailed:    "Environment provisioning failed",
	RootImageInvalid:   "Control directory is not a usable root image",
	UnsupportedHost:    "Host platform is not supported",

	// Resource limits
	ResourceLimitExceeded: "Resource ceiling already exceeded",

	// Security
	SecurityViolation: "File access outside the allowed paths",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// InSandboxFamily reports whether the code belongs to the sandbox failure
// family, resource-limit and security sub-ranges included.
func (c ErrorCode) InSandboxFamily() bool {
	return c >= 20000 && c < 21000
}

// Package spec defines work items and resource limits for sandbox execution.
package spec

import (
	appErr "agentbox/pkg/errors"
)

// Mode selects which of the four work item shapes is being requested.
type Mode string

const (
	ModeLibraryCall Mode = "library_call"
	ModeModuleCall  Mode = "module_call"
	ModeScriptRun   Mode = "script_run"
	ModeShellRun    Mode = "shell_run"
)

// LibraryTarget names a function on an importable module, optionally reached
// through a no-argument-constructible class.
type LibraryTarget struct {
	Module   string `json:"module"`
	Class    string `json:"class,omitempty"`
	Function string `json:"function"`
}

// ModuleFileTarget names a function inside a module loaded from an explicit
// file path.
type ModuleFileTarget struct {
	Path     string `json:"path"`
	Function string `json:"function"`
}

// ScriptTarget names a script file and its string arguments.
type ScriptTarget struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

// ShellTarget carries a literal shell command.
type ShellTarget struct {
	Command string `json:"command"`
}

// WorkItem is one execution request. Exactly one target field must be
// populated and it must match Mode. Work items are serialized into a request
// artifact per call and never persisted.
type WorkItem struct {
	Mode Mode `json:"mode"`

	Library    *LibraryTarget    `json:"library,omitempty"`
	ModuleFile *ModuleFileTarget `json:"module_file,omitempty"`
	Script     *ScriptTarget     `json:"script,omitempty"`
	Shell      *ShellTarget      `json:"shell,omitempty"`

	Args   []interface{}          `json:"args,omitempty"`
	Kwargs map[string]interface{} `json:"kwargs,omitempty"`

	// WorkingDir is virtual-rooted when supplied by callers and translated
	// to a host path before serialization.
	WorkingDir       string   `json:"working_dir,omitempty"`
	ExtraSearchPaths []string `json:"extra_search_paths,omitempty"`
	Dependencies     []string `json:"-"`
	ProvisionCommand string   `json:"-"`
}

// Validate checks that exactly one target shape is populated and that it
// matches the declared mode.
func (w *WorkItem) Validate() error {
	populated := 0
	if w.Library != nil {
		populated++
	}
	if w.ModuleFile != nil {
		populated++
	}
	if w.Script != nil {
		populated++
	}
	if w.Shell != nil {
		populated++
	}
	if populated != 1 {
		return appErr.ValidationError("target", "exactly one target shape must be populated")
	}

	switch w.Mode {
	case ModeLibraryCall:
		if w.Library == nil {
			return appErr.ValidationError("library", "required for library_call")
		}
		if w.Library.Module == "" {
			return appErr.ValidationError("library.module", "required")
		}
		if w.Library.Function == "" {
			return appErr.ValidationError("library.function", "required")
		}
	case ModeModuleCall:
		if w.ModuleFile == nil {
			return appErr.ValidationError("module_file", "required for module_call")
		}
		if w.ModuleFile.Path == "" {
			return appErr.ValidationError("module_file.path", "required")
		}
		if w.ModuleFile.Function == "" {
			return appErr.ValidationError("module_file.function", "required")
		}
	case ModeScriptRun:
		if w.Script == nil {
			return appErr.ValidationError("script", "required for script_run")
		}
		if w.Script.Path == "" {
			return appErr.ValidationError("script.path", "required")
		}
	case ModeShellRun:
		if w.Shell == nil {
			return appErr.ValidationError("shell", "required for shell_run")
		}
		if w.Shell.Command == "" {
			return appErr.ValidationError("shell.command", "required")
		}
	default:
		return appErr.ValidationError("mode", "unknown mode")
	}

	return nil
}

// ResourceLimits describes the ceilings applied to every child. Fixed at
// Sandbox construction, reapplied fresh inside each child.
type ResourceLimits struct {
	CPUTimeSeconds int      `json:"cpu_time_seconds"`
	MemoryMB       int      `json:"memory_mb"`
	AllowedPaths   []string `json:"allowed_paths,omitempty"`
}

// MemoryBytes converts the configured megabyte value to bytes.
func (l ResourceLimits) MemoryBytes() int64 {
	return int64(l.MemoryMB) * 1024 * 1024
}

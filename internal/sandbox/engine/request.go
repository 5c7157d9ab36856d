// Package engine spawns sandboxed child processes and exchanges request and
// response artifacts with them over the workspace control directory.
package engine

import (
	"encoding/json"
	"os"

	appErr "agentbox/pkg/errors"

	"agentbox/internal/sandbox/limits"
	"agentbox/internal/sandbox/profile"
	"agentbox/internal/sandbox/spec"
)

// The helper signals an allow-list denial with this exit status and stderr
// marker; the dispatcher maps the pair to SecurityViolation. The values are
// mirrored in cmd/agentbox-init.
const (
	helperDeniedExitCode = 77
	helperDeniedMarker   = "agentbox-init: path outside the allowed roots"
)

// mountSpec describes one bind mount the helper performs before chroot.
type mountSpec struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"read_only"`
}

// initSection is the part of the request artifact consumed by the
// agentbox-init helper rather than by the launcher. It is present only when
// the helper is in the spawn chain.
type initSection struct {
	Chroot     string                  `json:"chroot,omitempty"`
	Mounts     []mountSpec             `json:"mounts,omitempty"`
	Dir        string                  `json:"dir,omitempty"`
	Env        map[string]string       `json:"env,omitempty"`
	Exec       []string                `json:"exec"`
	Seccomp    *profile.SeccompProfile `json:"seccomp,omitempty"`
	Rlimits    *limits.Plan            `json:"rlimits,omitempty"`
	GuardRoots []string                `json:"guard_roots,omitempty"`
}

// childRequest is the full request artifact. The launcher reads the payload
// fields; the helper, when present, reads only the init section.
type childRequest struct {
	Mode             spec.Mode              `json:"mode"`
	Library          *spec.LibraryTarget    `json:"library,omitempty"`
	ModuleFile       *spec.ModuleFileTarget `json:"module_file,omitempty"`
	Script           *spec.ScriptTarget     `json:"script,omitempty"`
	Shell            *spec.ShellTarget      `json:"shell,omitempty"`
	Args             []interface{}          `json:"args,omitempty"`
	Kwargs           map[string]interface{} `json:"kwargs,omitempty"`
	WorkingDir       string                 `json:"working_dir,omitempty"`
	ExtraSearchPaths []string               `json:"extra_search_paths,omitempty"`
	Limits           limits.Plan            `json:"limits"`
	ApplyLimits      bool                   `json:"apply_limits"`
	GuardRoots       []string               `json:"guard_roots,omitempty"`
	Init             *initSection           `json:"init,omitempty"`
}

func writeRequest(path string, req *childRequest) error {
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return appErr.Wrapf(err, appErr.Internal, "marshal request failed")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return appErr.Wrapf(err, appErr.SandboxFailure, "write request artifact failed")
	}
	return nil
}

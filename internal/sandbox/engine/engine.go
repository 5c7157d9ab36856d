package engine

import (
	"context"
	"sort"

	appErr "agentbox/pkg/errors"

	"agentbox/internal/sandbox/limits"
	"agentbox/internal/sandbox/profile"
	"agentbox/internal/sandbox/result"
	"agentbox/internal/sandbox/spec"
	"agentbox/internal/sandbox/workspace"
)

const defaultOutputMaxBytes int64 = 64 * 1024

// Config controls how the engine spawns sandboxed children.
type Config struct {
	// Mode must be a concrete isolation mode, never auto.
	Mode  profile.IsolationMode
	Tools profile.Tooling

	// Seccomp is optional and only honored on backends that run the
	// helper binary in the spawn chain.
	Seccomp *profile.SeccompProfile

	Workspace *workspace.Filesystem

	// Control is the absolute path of the workspace control directory
	// where request and response artifacts are exchanged.
	Control string

	// Python is the runtime interpreter path, Launcher the installed
	// launcher file, both inside the control directory.
	Python   string
	Launcher string

	// Env is the base environment handed to the child. Children never
	// inherit the host environment.
	Env map[string]string

	// GuardRoots is serialized into the request for backends without
	// OS-level isolation so the child can refuse out-of-tree paths.
	GuardRoots []string

	OutputMaxBytes int64
}

// Engine turns one work item into one sandboxed child process and waits
// for its response artifact. It holds no per-run state and is safe to
// reuse sequentially; runs are never overlapped.
type Engine struct {
	cfg Config
}

// New validates the mode against the probed tooling and returns an engine
// fixed to that backend.
func New(cfg Config) (*Engine, error) {
	if cfg.Mode == profile.ModeAuto || !cfg.Mode.Valid() {
		return nil, appErr.ValidationError("isolation", "mode must be resolved before engine construction")
	}
	if cfg.Workspace == nil {
		return nil, appErr.ValidationError("workspace", "workspace filesystem is required")
	}
	if cfg.Control == "" {
		return nil, appErr.ValidationError("control", "control directory is required")
	}
	if cfg.Python == "" || cfg.Launcher == "" {
		return nil, appErr.ValidationError("runtime", "interpreter and launcher paths are required")
	}
	switch cfg.Mode {
	case profile.ModeNativeProfile:
		if cfg.Tools.NativeWrapPath == "" {
			return nil, appErr.HelperNotFoundError(profile.NativeSandboxBinary)
		}
	case profile.ModeNamespaceContainer:
		if cfg.Tools.BwrapPath == "" {
			return nil, appErr.HelperNotFoundError(profile.BwrapBinary)
		}
		if cfg.Seccomp != nil && cfg.Tools.HelperPath == "" {
			return nil, appErr.HelperNotFoundError(profile.HelperBinary)
		}
	case profile.ModePrivilegedChroot, profile.ModePlainSubprocess:
		if cfg.Tools.HelperPath == "" {
			return nil, appErr.HelperNotFoundError(profile.HelperBinary)
		}
	}
	if cfg.OutputMaxBytes <= 0 {
		cfg.OutputMaxBytes = defaultOutputMaxBytes
	}
	return &Engine{cfg: cfg}, nil
}

// Mode reports the backend the engine was fixed to.
func (e *Engine) Mode() profile.IsolationMode { return e.cfg.Mode }

// Execute runs one work item to completion and returns its result. The
// item carries host-form paths; the engine rewrites them into the view
// the chosen backend presents to the child.
func (e *Engine) Execute(ctx context.Context, item *spec.WorkItem, plan limits.Plan) (*result.RunResult, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	req := e.buildRequest(item, plan)
	return e.dispatch(ctx, req)
}

// virtualView reports whether the child observes the workspace at its
// virtual mount point instead of the host path.
func (e *Engine) virtualView() bool {
	return e.cfg.Mode == profile.ModeNamespaceContainer || e.cfg.Mode == profile.ModePrivilegedChroot
}

// helperInChain reports whether the agentbox-init helper sits between the
// engine and the launcher. The helper applies rlimits itself, so the
// launcher must not.
func (e *Engine) helperInChain() bool {
	switch e.cfg.Mode {
	case profile.ModePrivilegedChroot, profile.ModePlainSubprocess:
		return true
	case profile.ModeNamespaceContainer:
		return e.cfg.Seccomp != nil
	default:
		return false
	}
}

func (e *Engine) buildRequest(item *spec.WorkItem, plan limits.Plan) *childRequest {
	req := &childRequest{
		Mode:             item.Mode,
		Library:          item.Library,
		ModuleFile:       item.ModuleFile,
		Script:           item.Script,
		Shell:            item.Shell,
		Args:             item.Args,
		Kwargs:           item.Kwargs,
		WorkingDir:       item.WorkingDir,
		ExtraSearchPaths: item.ExtraSearchPaths,
		Limits:           plan,
		ApplyLimits:      !e.helperInChain(),
	}
	if req.WorkingDir == "" {
		req.WorkingDir = e.cfg.Workspace.HostRoot()
	}
	if !e.cfg.Mode.Isolated() {
		req.GuardRoots = e.cfg.GuardRoots
	}
	if e.virtualView() {
		rewriteToVirtual(e.cfg.Workspace, req)
	}
	return req
}

// rewriteToVirtual maps every caller-visible path in the request into the
// workspace mount point the child will see. Control-directory plumbing is
// left alone; those paths are bound at their real location as well.
func rewriteToVirtual(ws *workspace.Filesystem, req *childRequest) {
	req.WorkingDir = ws.MapToVirtual(req.WorkingDir)
	if req.ModuleFile != nil {
		mf := *req.ModuleFile
		mf.Path = ws.MapToVirtual(mf.Path)
		req.ModuleFile = &mf
	}
	if req.Script != nil {
		sc := *req.Script
		sc.Path = ws.MapToVirtual(sc.Path)
		sc.Args = mapStrings(ws.MapToVirtual, sc.Args)
		req.Script = &sc
	}
	if req.Shell != nil {
		sh := *req.Shell
		sh.Command = ws.MapToVirtual(sh.Command)
		req.Shell = &sh
	}
	req.ExtraSearchPaths = mapStrings(ws.MapToVirtual, req.ExtraSearchPaths)
	if len(req.Args) > 0 {
		req.Args = ws.TranslateToVirtual(req.Args).([]interface{})
	}
	if len(req.Kwargs) > 0 {
		req.Kwargs = ws.TranslateToVirtual(req.Kwargs).(map[string]interface{})
	}
}

func mapStrings(fn func(string) string, in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fn(s)
	}
	return out
}

// sortedEnv flattens an environment map into KEY=VALUE pairs with a
// deterministic order.
func sortedEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+env[key])
	}
	return out
}

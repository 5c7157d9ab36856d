package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	appErr "agentbox/pkg/errors"

	"agentbox/internal/sandbox/profile"
	"agentbox/internal/sandbox/workspace"
)

// spawnPlan is everything the dispatcher needs to start one child.
type spawnPlan struct {
	path string
	args []string
	dir  string
	env  []string
}

// containerFreshMounts are top-level entries that get a fresh
// pseudo-filesystem inside the container instead of a host bind.
var containerFreshMounts = map[string]bool{"proc": true, "dev": true, "tmp": true}

// containerRootBinds enumerates the real filesystem root and emits one
// read-only bind per top-level entry, so host paths (interpreter,
// libraries, /etc symlink targets under /run) resolve identically inside
// the container while staying unwritable.
func containerRootBinds() ([]string, error) {
	entries, err := os.ReadDir("/")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxFailure, "enumerate filesystem root failed")
	}
	args := make([]string, 0, 3*len(entries))
	for _, entry := range entries {
		if containerFreshMounts[entry.Name()] {
			continue
		}
		path := "/" + entry.Name()
		args = append(args, "--ro-bind", path, path)
	}
	return args, nil
}

func (e *Engine) spawnFor(req *childRequest, reqPath, respPath string) (spawnPlan, error) {
	switch e.cfg.Mode {
	case profile.ModeInProcessLimits:
		return e.directSpawn(reqPath, respPath), nil
	case profile.ModePlainSubprocess:
		return e.subprocessSpawn(req, reqPath, respPath), nil
	case profile.ModePrivilegedChroot:
		return e.chrootSpawn(req, reqPath, respPath)
	case profile.ModeNamespaceContainer:
		return e.containerSpawn(req, reqPath, respPath)
	case profile.ModeNativeProfile:
		return e.nativeSpawn(reqPath, respPath), nil
	}
	return spawnPlan{}, appErr.New(appErr.Unsupported).WithMessagef("isolation mode %s has no backend", e.cfg.Mode)
}

// directSpawn runs the launcher straight under the runtime interpreter.
// The launcher applies its own rlimits and path guard.
func (e *Engine) directSpawn(reqPath, respPath string) spawnPlan {
	return spawnPlan{
		path: e.cfg.Python,
		args: []string{e.cfg.Launcher, reqPath, respPath},
		dir:  e.cfg.Workspace.HostRoot(),
		env:  sortedEnv(e.cfg.Env),
	}
}

// subprocessSpawn interposes the helper so rlimits, environment scrubbing,
// and the optional seccomp filter are applied before the interpreter runs.
// With no filesystem isolation on this backend, the guard roots ride along
// so the helper can refuse out-of-tree paths at its own access sites.
func (e *Engine) subprocessSpawn(req *childRequest, reqPath, respPath string) spawnPlan {
	req.Init = &initSection{
		Env:        e.cfg.Env,
		Exec:       []string{e.cfg.Python, e.cfg.Launcher, reqPath, respPath},
		Seccomp:    e.cfg.Seccomp,
		Rlimits:    &req.Limits,
		GuardRoots: req.GuardRoots,
	}
	return spawnPlan{
		path: e.cfg.Tools.HelperPath,
		args: []string{reqPath},
		dir:  e.cfg.Workspace.HostRoot(),
		env:  sortedEnv(e.cfg.Env),
	}
}

// chrootSpawn treats the control directory as a minimal root image: the
// helper binds the workspace and /dev inside it, chroots, and executes the
// launcher through in-image paths.
func (e *Engine) chrootSpawn(req *childRequest, reqPath, respPath string) (spawnPlan, error) {
	if !e.rootImagePresent() {
		return spawnPlan{}, appErr.New(appErr.RootImageInvalid).WithMessagef(
			"control directory %s lacks bin/sh and usr; unpack a root image before selecting %s",
			e.cfg.Control, profile.ModePrivilegedChroot)
	}
	ws := e.cfg.Workspace
	env := virtualEnv(ws, e.cfg.Env)
	req.Init = &initSection{
		Chroot: e.cfg.Control,
		Mounts: []mountSpec{
			{Source: ws.HostRoot(), Target: ws.VirtualRoot()},
			{Source: "/dev", Target: "/dev"},
		},
		Dir:     req.WorkingDir,
		Env:     env,
		Exec:    []string{ws.ToVirtual(e.cfg.Python), ws.ToVirtual(e.cfg.Launcher), ws.ToVirtual(reqPath), ws.ToVirtual(respPath)},
		Seccomp: e.cfg.Seccomp,
		Rlimits: &req.Limits,
	}
	return spawnPlan{
		path: e.cfg.Tools.HelperPath,
		args: []string{reqPath},
		env:  sortedEnv(e.cfg.Env),
	}, nil
}

func (e *Engine) rootImagePresent() bool {
	for _, probe := range []string{"bin/sh", "usr"} {
		if _, err := os.Stat(filepath.Join(e.cfg.Control, probe)); err == nil {
			return true
		}
	}
	return false
}

// containerSpawn assembles the bwrap invocation: every top-level host
// entry bound read-only (proc, dev, and tmp mounted fresh instead), the
// workspace bound read-write at its virtual root, and the control
// directory bound at its real path so runtime plumbing keeps host-form
// paths. When a seccomp profile is configured the helper is interposed
// inside the container to load it.
func (e *Engine) containerSpawn(req *childRequest, reqPath, respPath string) (spawnPlan, error) {
	ws := e.cfg.Workspace
	ctrl := canonicalHostPath(e.cfg.Control)

	binds, err := containerRootBinds()
	if err != nil {
		return spawnPlan{}, err
	}
	args := make([]string, 0, len(binds)+48)
	args = append(args, binds...)
	args = append(args, "--proc", "/proc", "--dev", "/dev", "--tmpfs", "/tmp")
	args = append(args, "--bind", ws.HostRoot(), ws.VirtualRoot())
	args = append(args, "--bind", ctrl, ctrl)
	args = append(args, "--unshare-pid", "--unshare-ipc", "--unshare-uts", "--die-with-parent")
	args = append(args, "--clearenv")
	for _, kv := range sortedEnv(virtualEnv(ws, e.cfg.Env)) {
		key, value, _ := strings.Cut(kv, "=")
		args = append(args, "--setenv", key, value)
	}
	args = append(args, "--chdir", req.WorkingDir)

	command := []string{e.cfg.Python, e.cfg.Launcher, reqPath, respPath}
	if e.cfg.Seccomp != nil {
		helper := e.cfg.Tools.HelperPath
		args = append(args, "--ro-bind", helper, helper)
		req.Init = &initSection{
			Exec:    command,
			Seccomp: e.cfg.Seccomp,
			Rlimits: &req.Limits,
		}
		command = []string{helper, reqPath}
	}
	args = append(args, "--")
	args = append(args, command...)

	return spawnPlan{
		path: e.cfg.Tools.BwrapPath,
		args: args,
		env:  sortedEnv(e.cfg.Env),
	}, nil
}

// nativeSpawn wraps the interpreter in sandbox-exec with a generated
// Seatbelt policy. There is no helper on this platform; the launcher
// applies rlimits itself.
func (e *Engine) nativeSpawn(reqPath, respPath string) spawnPlan {
	policy := seatbeltPolicy(
		canonicalHostPath(e.cfg.Workspace.HostRoot()),
		canonicalHostPath(os.TempDir()),
	)
	return spawnPlan{
		path: e.cfg.Tools.NativeWrapPath,
		args: []string{"-p", policy, e.cfg.Python, e.cfg.Launcher, reqPath, respPath},
		dir:  e.cfg.Workspace.HostRoot(),
		env:  sortedEnv(e.cfg.Env),
	}
}

// seatbeltPolicy renders the sandbox-exec profile: everything readable,
// writes confined to the workspace, the temp directory, and devices.
func seatbeltPolicy(workspaceRoot, tmpDir string) string {
	var b strings.Builder
	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n")
	b.WriteString("(allow process-fork)\n")
	b.WriteString("(allow process-exec)\n")
	b.WriteString("(allow file-read*)\n")
	fmt.Fprintf(&b, "(allow file-write* (subpath %q) (subpath %q) (subpath \"/private/tmp\") (subpath \"/dev\"))\n",
		workspaceRoot, tmpDir)
	b.WriteString("(allow file-ioctl (subpath \"/dev\"))\n")
	b.WriteString("(allow sysctl-read)\n")
	b.WriteString("(allow mach-lookup)\n")
	b.WriteString("(allow signal (target same-sandbox))\n")
	b.WriteString("(allow network*)\n")
	return b.String()
}

// canonicalHostPath resolves symlinks so policy and mount paths match what
// the child observes. Paths that fail to resolve are used as given.
func canonicalHostPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// virtualEnv rewrites environment values into workspace-virtual form for
// backends whose children observe the workspace at the virtual root.
func virtualEnv(ws *workspace.Filesystem, env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for key, value := range env {
		out[key] = ws.MapToVirtual(value)
	}
	return out
}

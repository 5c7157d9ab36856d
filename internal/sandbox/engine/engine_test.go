package engine

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"agentbox/internal/sandbox/limits"
	"agentbox/internal/sandbox/profile"
	"agentbox/internal/sandbox/spec"
	"agentbox/internal/sandbox/workspace"
	pkgerrors "agentbox/pkg/errors"
)

var allTools = profile.Tooling{
	BwrapPath:      "/usr/bin/bwrap",
	HelperPath:     "/usr/local/bin/agentbox-init",
	NativeWrapPath: "/usr/bin/sandbox-exec",
}

var testPlan = limits.Plan{CPUTimeSeconds: 5, MemoryBytes: 64 << 20}

func testConfig(t *testing.T, mode profile.IsolationMode) Config {
	t.Helper()
	root := t.TempDir()
	ws, err := workspace.New(root, "", ".agentbox")
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	ctrl := filepath.Join(root, ".agentbox")
	if err := os.MkdirAll(ctrl, 0o755); err != nil {
		t.Fatalf("mkdir control: %v", err)
	}
	return Config{
		Mode:       mode,
		Tools:      allTools,
		Workspace:  ws,
		Control:    ctrl,
		Python:     filepath.Join(ctrl, "runtime", "bin", "python3"),
		Launcher:   filepath.Join(ctrl, "launcher.py"),
		Env:        map[string]string{"HOME": root, "PATH": "/usr/bin"},
		GuardRoots: []string{root, ctrl},
	}
}

func newTestEngine(t *testing.T, mode profile.IsolationMode, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := testConfig(t, mode)
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func scriptItem(root string) *spec.WorkItem {
	return &spec.WorkItem{
		Mode: spec.ModeScriptRun,
		Script: &spec.ScriptTarget{
			Path: filepath.Join(root, "run.py"),
			Args: []string{filepath.Join(root, "in.txt"), "-v"},
		},
		Args:             []interface{}{filepath.Join(root, "data.bin"), 7},
		Kwargs:           map[string]interface{}{"out": filepath.Join(root, "out")},
		ExtraSearchPaths: []string{filepath.Join(root, "lib")},
	}
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*Config)
		wantCode pkgerrors.ErrorCode
	}{
		{
			name:     "auto is rejected",
			mutate:   func(c *Config) { c.Mode = profile.ModeAuto },
			wantCode: pkgerrors.ValidationFailed,
		},
		{
			name:     "unknown mode",
			mutate:   func(c *Config) { c.Mode = profile.IsolationMode("jail") },
			wantCode: pkgerrors.ValidationFailed,
		},
		{
			name:     "missing workspace",
			mutate:   func(c *Config) { c.Workspace = nil },
			wantCode: pkgerrors.ValidationFailed,
		},
		{
			name:     "missing control",
			mutate:   func(c *Config) { c.Control = "" },
			wantCode: pkgerrors.ValidationFailed,
		},
		{
			name:     "missing interpreter",
			mutate:   func(c *Config) { c.Python = "" },
			wantCode: pkgerrors.ValidationFailed,
		},
		{
			name: "container without bwrap",
			mutate: func(c *Config) {
				c.Mode = profile.ModeNamespaceContainer
				c.Tools.BwrapPath = ""
			},
			wantCode: pkgerrors.HelperNotFound,
		},
		{
			name: "container seccomp without helper",
			mutate: func(c *Config) {
				c.Mode = profile.ModeNamespaceContainer
				c.Seccomp = &profile.SeccompProfile{DefaultAction: "allow"}
				c.Tools.HelperPath = ""
			},
			wantCode: pkgerrors.HelperNotFound,
		},
		{
			name: "chroot without helper",
			mutate: func(c *Config) {
				c.Mode = profile.ModePrivilegedChroot
				c.Tools.HelperPath = ""
			},
			wantCode: pkgerrors.HelperNotFound,
		},
		{
			name: "plain subprocess without helper",
			mutate: func(c *Config) {
				c.Mode = profile.ModePlainSubprocess
				c.Tools.HelperPath = ""
			},
			wantCode: pkgerrors.HelperNotFound,
		},
		{
			name: "native without sandbox-exec",
			mutate: func(c *Config) {
				c.Mode = profile.ModeNativeProfile
				c.Tools.NativeWrapPath = ""
			},
			wantCode: pkgerrors.HelperNotFound,
		},
		{
			name:   "in-process needs no tools",
			mutate: func(c *Config) { c.Tools = profile.Tooling{} },
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t, profile.ModeInProcessLimits)
			tc.mutate(&cfg)
			_, err := New(cfg)
			if tc.wantCode != 0 {
				if code := pkgerrors.GetCode(err); code != tc.wantCode {
					t.Fatalf("unexpected code: %v, want %v", code, tc.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewAppliesOutputCapDefault(t *testing.T) {
	e := newTestEngine(t, profile.ModeInProcessLimits, nil)
	if e.cfg.OutputMaxBytes != defaultOutputMaxBytes {
		t.Fatalf("OutputMaxBytes = %d", e.cfg.OutputMaxBytes)
	}
}

func TestBuildRequestPlainModes(t *testing.T) {
	t.Run("in-process applies its own limits", func(t *testing.T) {
		e := newTestEngine(t, profile.ModeInProcessLimits, nil)
		root := e.cfg.Workspace.HostRoot()
		req := e.buildRequest(scriptItem(root), testPlan)

		if !req.ApplyLimits {
			t.Fatalf("launcher must apply limits without a helper in the chain")
		}
		if !reflect.DeepEqual(req.GuardRoots, e.cfg.GuardRoots) {
			t.Fatalf("GuardRoots = %v", req.GuardRoots)
		}
		if req.WorkingDir != root {
			t.Fatalf("WorkingDir = %s, want workspace root", req.WorkingDir)
		}
		if req.Script.Path != filepath.Join(root, "run.py") {
			t.Fatalf("script path rewritten for a host-view backend: %s", req.Script.Path)
		}
		if req.Limits != testPlan {
			t.Fatalf("Limits = %+v", req.Limits)
		}
	})

	t.Run("helper applies limits for plain subprocess", func(t *testing.T) {
		e := newTestEngine(t, profile.ModePlainSubprocess, nil)
		root := e.cfg.Workspace.HostRoot()
		req := e.buildRequest(scriptItem(root), testPlan)

		if req.ApplyLimits {
			t.Fatalf("launcher must not reapply limits behind the helper")
		}
		if len(req.GuardRoots) == 0 {
			t.Fatalf("non-isolated backend needs guard roots")
		}
	})

	t.Run("explicit working dir preserved", func(t *testing.T) {
		e := newTestEngine(t, profile.ModeInProcessLimits, nil)
		root := e.cfg.Workspace.HostRoot()
		item := scriptItem(root)
		item.WorkingDir = filepath.Join(root, "sub")
		req := e.buildRequest(item, testPlan)
		if req.WorkingDir != filepath.Join(root, "sub") {
			t.Fatalf("WorkingDir = %s", req.WorkingDir)
		}
	})
}

func TestBuildRequestVirtualModes(t *testing.T) {
	e := newTestEngine(t, profile.ModeNamespaceContainer, nil)
	root := e.cfg.Workspace.HostRoot()
	item := scriptItem(root)
	req := e.buildRequest(item, testPlan)

	if req.GuardRoots != nil {
		t.Fatalf("isolated backend must not serialize guard roots: %v", req.GuardRoots)
	}
	if !req.ApplyLimits {
		t.Fatalf("container without seccomp has no helper; launcher applies limits")
	}
	if req.WorkingDir != "/workspace" {
		t.Fatalf("WorkingDir = %s", req.WorkingDir)
	}
	if req.Script.Path != "/workspace/run.py" {
		t.Fatalf("script path = %s", req.Script.Path)
	}
	if !reflect.DeepEqual(req.Script.Args, []string{"/workspace/in.txt", "-v"}) {
		t.Fatalf("script args = %v", req.Script.Args)
	}
	if !reflect.DeepEqual(req.Args, []interface{}{"/workspace/data.bin", 7}) {
		t.Fatalf("args = %v", req.Args)
	}
	if req.Kwargs["out"] != "/workspace/out" {
		t.Fatalf("kwargs = %v", req.Kwargs)
	}
	if !reflect.DeepEqual(req.ExtraSearchPaths, []string{"/workspace/lib"}) {
		t.Fatalf("extra search paths = %v", req.ExtraSearchPaths)
	}

	// The caller's item must not observe the rewrite.
	if item.Script.Path != filepath.Join(root, "run.py") {
		t.Fatalf("caller item mutated: %s", item.Script.Path)
	}
	if item.WorkingDir != "" {
		t.Fatalf("caller item working dir mutated: %s", item.WorkingDir)
	}

	t.Run("seccomp puts the helper in the chain", func(t *testing.T) {
		e := newTestEngine(t, profile.ModeNamespaceContainer, func(c *Config) {
			c.Seccomp = &profile.SeccompProfile{DefaultAction: "allow"}
		})
		req := e.buildRequest(scriptItem(e.cfg.Workspace.HostRoot()), testPlan)
		if req.ApplyLimits {
			t.Fatalf("helper applies limits when seccomp is configured")
		}
	})

	t.Run("shell command rewritten", func(t *testing.T) {
		e := newTestEngine(t, profile.ModePrivilegedChroot, nil)
		root := e.cfg.Workspace.HostRoot()
		item := &spec.WorkItem{
			Mode:  spec.ModeShellRun,
			Shell: &spec.ShellTarget{Command: "cat " + filepath.Join(root, "f.txt")},
		}
		req := e.buildRequest(item, testPlan)
		if req.Shell.Command != "cat /workspace/f.txt" {
			t.Fatalf("shell command = %s", req.Shell.Command)
		}
		if req.ApplyLimits {
			t.Fatalf("chroot backend runs behind the helper")
		}
	})
}

func TestDirectSpawn(t *testing.T) {
	e := newTestEngine(t, profile.ModeInProcessLimits, nil)
	root := e.cfg.Workspace.HostRoot()
	req := e.buildRequest(scriptItem(root), testPlan)
	reqPath := filepath.Join(e.cfg.Control, "req-1.json")
	respPath := filepath.Join(e.cfg.Control, "resp-1.json")

	sp, err := e.spawnFor(req, reqPath, respPath)
	if err != nil {
		t.Fatalf("spawn plan: %v", err)
	}
	if sp.path != e.cfg.Python {
		t.Fatalf("path = %s", sp.path)
	}
	if !reflect.DeepEqual(sp.args, []string{e.cfg.Launcher, reqPath, respPath}) {
		t.Fatalf("args = %v", sp.args)
	}
	if sp.dir != root {
		t.Fatalf("dir = %s", sp.dir)
	}
	if !reflect.DeepEqual(sp.env, []string{"HOME=" + root, "PATH=/usr/bin"}) {
		t.Fatalf("env = %v", sp.env)
	}
	if req.Init != nil {
		t.Fatalf("direct spawn must not carry an init section")
	}
}

func TestSubprocessSpawn(t *testing.T) {
	e := newTestEngine(t, profile.ModePlainSubprocess, nil)
	root := e.cfg.Workspace.HostRoot()
	req := e.buildRequest(scriptItem(root), testPlan)
	reqPath := filepath.Join(e.cfg.Control, "req-1.json")
	respPath := filepath.Join(e.cfg.Control, "resp-1.json")

	sp, err := e.spawnFor(req, reqPath, respPath)
	if err != nil {
		t.Fatalf("spawn plan: %v", err)
	}
	if sp.path != e.cfg.Tools.HelperPath {
		t.Fatalf("path = %s", sp.path)
	}
	if !reflect.DeepEqual(sp.args, []string{reqPath}) {
		t.Fatalf("args = %v", sp.args)
	}
	if req.Init == nil {
		t.Fatalf("helper needs an init section")
	}
	wantExec := []string{e.cfg.Python, e.cfg.Launcher, reqPath, respPath}
	if !reflect.DeepEqual(req.Init.Exec, wantExec) {
		t.Fatalf("init exec = %v", req.Init.Exec)
	}
	if !reflect.DeepEqual(req.Init.Env, e.cfg.Env) {
		t.Fatalf("init env = %v", req.Init.Env)
	}
	if req.Init.Rlimits == nil || *req.Init.Rlimits != testPlan {
		t.Fatalf("init rlimits = %v", req.Init.Rlimits)
	}
	if !reflect.DeepEqual(req.Init.GuardRoots, e.cfg.GuardRoots) {
		t.Fatalf("init guard roots = %v", req.Init.GuardRoots)
	}
}

func TestChrootSpawn(t *testing.T) {
	t.Run("without root image", func(t *testing.T) {
		e := newTestEngine(t, profile.ModePrivilegedChroot, nil)
		req := e.buildRequest(scriptItem(e.cfg.Workspace.HostRoot()), testPlan)
		_, err := e.spawnFor(req, "req.json", "resp.json")
		if pkgerrors.GetCode(err) != pkgerrors.RootImageInvalid {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(err.Error(), "lacks bin/sh and usr") {
			t.Fatalf("unexpected message: %v", err)
		}
	})

	t.Run("with root image", func(t *testing.T) {
		e := newTestEngine(t, profile.ModePrivilegedChroot, nil)
		root := e.cfg.Workspace.HostRoot()
		ctrl := e.cfg.Control
		if err := os.MkdirAll(filepath.Join(ctrl, "bin"), 0o755); err != nil {
			t.Fatalf("mkdir bin: %v", err)
		}
		if err := os.WriteFile(filepath.Join(ctrl, "bin", "sh"), []byte("#!/bin/true\n"), 0o755); err != nil {
			t.Fatalf("write sh: %v", err)
		}
		if err := os.MkdirAll(filepath.Join(ctrl, "usr"), 0o755); err != nil {
			t.Fatalf("mkdir usr: %v", err)
		}

		req := e.buildRequest(scriptItem(root), testPlan)
		reqPath := filepath.Join(ctrl, "req-1.json")
		respPath := filepath.Join(ctrl, "resp-1.json")
		sp, err := e.spawnFor(req, reqPath, respPath)
		if err != nil {
			t.Fatalf("spawn plan: %v", err)
		}

		if sp.path != e.cfg.Tools.HelperPath {
			t.Fatalf("path = %s", sp.path)
		}
		if !reflect.DeepEqual(sp.args, []string{reqPath}) {
			t.Fatalf("args = %v", sp.args)
		}
		if req.Init.Chroot != ctrl {
			t.Fatalf("chroot = %s", req.Init.Chroot)
		}
		wantMounts := []mountSpec{
			{Source: root, Target: "/workspace"},
			{Source: "/dev", Target: "/dev"},
		}
		if !reflect.DeepEqual(req.Init.Mounts, wantMounts) {
			t.Fatalf("mounts = %v", req.Init.Mounts)
		}
		if req.Init.Dir != "/workspace" {
			t.Fatalf("init dir = %s", req.Init.Dir)
		}
		wantExec := []string{
			"/workspace/.agentbox/runtime/bin/python3",
			"/workspace/.agentbox/launcher.py",
			"/workspace/.agentbox/req-1.json",
			"/workspace/.agentbox/resp-1.json",
		}
		if !reflect.DeepEqual(req.Init.Exec, wantExec) {
			t.Fatalf("init exec = %v", req.Init.Exec)
		}
		if req.Init.Env["HOME"] != "/workspace" {
			t.Fatalf("init env not virtualized: %v", req.Init.Env)
		}
	})
}

func TestContainerSpawn(t *testing.T) {
	e := newTestEngine(t, profile.ModeNamespaceContainer, nil)
	root := e.cfg.Workspace.HostRoot()
	ctrl := canonicalHostPath(e.cfg.Control)
	req := e.buildRequest(scriptItem(root), testPlan)
	reqPath := filepath.Join(e.cfg.Control, "req-1.json")
	respPath := filepath.Join(e.cfg.Control, "resp-1.json")

	sp, err := e.spawnFor(req, reqPath, respPath)
	if err != nil {
		t.Fatalf("spawn plan: %v", err)
	}
	if sp.path != e.cfg.Tools.BwrapPath {
		t.Fatalf("path = %s", sp.path)
	}

	entries, err := os.ReadDir("/")
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	want := make([]string, 0, 3*len(entries)+48)
	for _, entry := range entries {
		switch entry.Name() {
		case "proc", "dev", "tmp":
			continue
		}
		want = append(want, "--ro-bind", "/"+entry.Name(), "/"+entry.Name())
	}
	want = append(want, "--proc", "/proc", "--dev", "/dev", "--tmpfs", "/tmp")
	want = append(want, "--bind", root, "/workspace")
	want = append(want, "--bind", ctrl, ctrl)
	want = append(want, "--unshare-pid", "--unshare-ipc", "--unshare-uts", "--die-with-parent")
	want = append(want, "--clearenv")
	want = append(want, "--setenv", "HOME", "/workspace", "--setenv", "PATH", "/usr/bin")
	want = append(want, "--chdir", "/workspace")
	want = append(want, "--", e.cfg.Python, e.cfg.Launcher, reqPath, respPath)
	if !reflect.DeepEqual(sp.args, want) {
		t.Fatalf("args mismatch:\n got: %v\nwant: %v", sp.args, want)
	}
	if req.Init != nil {
		t.Fatalf("container without seccomp must not carry an init section")
	}
}

func TestContainerBindsEveryTopLevelEntry(t *testing.T) {
	e := newTestEngine(t, profile.ModeNamespaceContainer, nil)
	req := e.buildRequest(scriptItem(e.cfg.Workspace.HostRoot()), testPlan)
	sp, err := e.spawnFor(req, "req.json", "resp.json")
	if err != nil {
		t.Fatalf("spawn plan: %v", err)
	}

	joined := " " + strings.Join(sp.args, " ") + " "
	entries, err := os.ReadDir("/")
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == "proc" || name == "dev" || name == "tmp" {
			continue
		}
		if !strings.Contains(joined, " --ro-bind /"+name+" /"+name+" ") {
			t.Fatalf("top-level entry /%s has no ro-bind in bwrap argv:\n%v", name, sp.args)
		}
	}
	for _, fresh := range []string{"--proc /proc", "--dev /dev", "--tmpfs /tmp"} {
		if !strings.Contains(joined, " "+fresh+" ") {
			t.Fatalf("fresh mount %q missing from bwrap argv:\n%v", fresh, sp.args)
		}
	}
	for _, name := range []string{"proc", "dev", "tmp"} {
		if strings.Contains(joined, " --ro-bind /"+name+" ") {
			t.Fatalf("/%s bound from the host instead of mounted fresh:\n%v", name, sp.args)
		}
	}
}

func TestContainerSpawnWithSeccomp(t *testing.T) {
	seccomp := &profile.SeccompProfile{
		DefaultAction: "allow",
		Syscalls:      []profile.SeccompRule{{Names: []string{"socket"}, Action: "kill"}},
	}
	e := newTestEngine(t, profile.ModeNamespaceContainer, func(c *Config) {
		c.Seccomp = seccomp
	})
	root := e.cfg.Workspace.HostRoot()
	req := e.buildRequest(scriptItem(root), testPlan)
	reqPath := filepath.Join(e.cfg.Control, "req-1.json")
	respPath := filepath.Join(e.cfg.Control, "resp-1.json")

	sp, err := e.spawnFor(req, reqPath, respPath)
	if err != nil {
		t.Fatalf("spawn plan: %v", err)
	}

	helper := e.cfg.Tools.HelperPath
	joined := strings.Join(sp.args, " ")
	if !strings.Contains(joined, "--ro-bind "+helper+" "+helper) {
		t.Fatalf("helper not bound into the container: %v", sp.args)
	}
	tail := sp.args[len(sp.args)-3:]
	if !reflect.DeepEqual(tail, []string{"--", helper, reqPath}) {
		t.Fatalf("command tail = %v", tail)
	}
	if req.Init == nil || req.Init.Seccomp != seccomp {
		t.Fatalf("init section missing seccomp profile")
	}
	wantExec := []string{e.cfg.Python, e.cfg.Launcher, reqPath, respPath}
	if !reflect.DeepEqual(req.Init.Exec, wantExec) {
		t.Fatalf("init exec = %v", req.Init.Exec)
	}
}

func TestNativeSpawn(t *testing.T) {
	e := newTestEngine(t, profile.ModeNativeProfile, nil)
	root := e.cfg.Workspace.HostRoot()
	reqPath := filepath.Join(e.cfg.Control, "req-1.json")
	respPath := filepath.Join(e.cfg.Control, "resp-1.json")
	req := e.buildRequest(scriptItem(root), testPlan)

	sp, err := e.spawnFor(req, reqPath, respPath)
	if err != nil {
		t.Fatalf("spawn plan: %v", err)
	}
	if sp.path != e.cfg.Tools.NativeWrapPath {
		t.Fatalf("path = %s", sp.path)
	}
	if sp.args[0] != "-p" {
		t.Fatalf("args = %v", sp.args)
	}
	policy := sp.args[1]
	if !strings.Contains(policy, "(deny default)") {
		t.Fatalf("policy missing default deny:\n%s", policy)
	}
	if !strings.Contains(policy, canonicalHostPath(root)) {
		t.Fatalf("policy missing workspace subpath:\n%s", policy)
	}
	if !reflect.DeepEqual(sp.args[2:], []string{e.cfg.Python, e.cfg.Launcher, reqPath, respPath}) {
		t.Fatalf("command = %v", sp.args[2:])
	}
	if sp.dir != root {
		t.Fatalf("dir = %s", sp.dir)
	}
}

func TestSeatbeltPolicy(t *testing.T) {
	got := seatbeltPolicy("/ws", "/tmpx")
	want := strings.Join([]string{
		"(version 1)",
		"(deny default)",
		"(allow process-fork)",
		"(allow process-exec)",
		"(allow file-read*)",
		`(allow file-write* (subpath "/ws") (subpath "/tmpx") (subpath "/private/tmp") (subpath "/dev"))`,
		`(allow file-ioctl (subpath "/dev"))`,
		"(allow sysctl-read)",
		"(allow mach-lookup)",
		"(allow signal (target same-sandbox))",
		"(allow network*)",
	}, "\n") + "\n"
	if got != want {
		t.Fatalf("policy mismatch:\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestSortedEnv(t *testing.T) {
	got := sortedEnv(map[string]string{"PATH": "/usr/bin", "A": "1", "HOME": "/root"})
	want := []string{"A=1", "HOME=/root", "PATH=/usr/bin"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sortedEnv = %v", got)
	}
}

func TestVirtualEnv(t *testing.T) {
	ws, err := workspace.New("/home/user/project", "", "")
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	got := virtualEnv(ws, map[string]string{
		"HOME": "/home/user/project",
		"DATA": "/home/user/project/data",
		"PATH": "/usr/bin",
	})
	want := map[string]string{
		"HOME": "/workspace",
		"DATA": "/workspace/data",
		"PATH": "/usr/bin",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("virtualEnv = %v", got)
	}
}

func TestBoundedBuffer(t *testing.T) {
	b := newBoundedBuffer(8)
	n, err := b.Write([]byte("0123456789"))
	if err != nil || n != 10 {
		t.Fatalf("write = %d, %v", n, err)
	}
	if b.String() != "01234567" {
		t.Fatalf("String() = %q", b.String())
	}
	if _, err := b.Write([]byte("more")); err != nil {
		t.Fatalf("write past cap: %v", err)
	}
	if b.String() != "01234567" {
		t.Fatalf("buffer grew past cap: %q", b.String())
	}
}

func TestExitCodeFromErr(t *testing.T) {
	if got := exitCodeFromErr(nil, nil); got != 0 {
		t.Fatalf("exitCodeFromErr(nil) = %d", got)
	}
	if got := exitCodeFromErr(errors.New("spawn failed"), nil); got != -1 {
		t.Fatalf("exitCodeFromErr(plain) = %d", got)
	}
}

// Package sandbox is the public entrypoint: one Sandbox executes work
// items one at a time inside the strongest isolation the host offers,
// under CPU and memory ceilings, rooted at a single writable workspace.
package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	appErr "agentbox/pkg/errors"
	"agentbox/pkg/utils/contextkey"
	"agentbox/pkg/utils/logger"

	"agentbox/internal/sandbox/engine"
	"agentbox/internal/sandbox/limits"
	"agentbox/internal/sandbox/profile"
	"agentbox/internal/sandbox/provision"
	"agentbox/internal/sandbox/result"
	"agentbox/internal/sandbox/security"
	"agentbox/internal/sandbox/spec"
	"agentbox/internal/sandbox/workspace"
)

const defaultChildPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Config is the construction-time configuration of one Sandbox.
type Config struct {
	// CPUTimeSeconds and MemoryMB bound each child. Zero disables the
	// respective ceiling. MemoryMB is converted to bytes internally and
	// clamped against the ambient container ceiling.
	CPUTimeSeconds int
	MemoryMB       int

	// AllowedPaths extends file access beyond the workspace and the
	// fixed locale/MIME read locations.
	AllowedPaths []string

	// HostWorkspace is an absolute path. It becomes the sole writable
	// root and hosts the control directory.
	HostWorkspace string

	// VirtualWorkspace is shown to callers in place of HostWorkspace.
	// Defaults to workspace.DefaultVirtualRoot.
	VirtualWorkspace string

	// Isolation selects the linux backend: auto, chroot,
	// namespace-container, or plain-subprocess. Empty means
	// namespace-container. Darwin always uses the native profile.
	Isolation string

	// HelperPath overrides the init-helper lookup, which otherwise
	// checks next to the current executable and then PATH.
	HelperPath string

	// Python is the base interpreter the runtime is built from.
	// Defaults to python3.
	Python string

	// MirrorURL points dependency installs at a private package index.
	MirrorURL string

	// PipArgs are appended to every dependency install invocation.
	PipArgs []string

	// SeccompProfile names a YAML syscall profile loaded at
	// construction and applied by the init helper on linux.
	SeccompProfile string

	// Log configures the process-wide logger when set.
	Log *logger.Config
}

// RunOptions adjusts one call. The zero value is valid.
type RunOptions struct {
	// WorkingDir is where the work item runs, in virtual or host form.
	// Defaults to the workspace root.
	WorkingDir string

	// ExtraSearchPaths are prepended to the child's module search path.
	ExtraSearchPaths []string

	// Dependencies are installed into the workspace package prefix
	// before the call runs.
	Dependencies []string

	// ProvisionCommand is a raw shell command run with the install
	// environment before the call.
	ProvisionCommand string
}

// Sandbox is safe for sequential reuse. Concurrent calls on one instance
// are unsupported; hold one Sandbox per concurrent unit of work.
type Sandbox struct {
	cfg     Config
	mode    profile.IsolationMode
	ws      *workspace.Filesystem
	guard   *security.Guard
	limiter *limits.Limiter
	prov    *provision.Provisioner
	eng     *engine.Engine
}

// New probes the host tooling once, fixes the isolation backend, and wires
// the workspace mapping, limiter, guard, provisioner, and engine. Nothing
// is provisioned yet; the runtime is built lazily on first use.
func New(cfg Config) (*Sandbox, error) {
	if cfg.Log != nil {
		if err := logger.Init(*cfg.Log); err != nil {
			return nil, err
		}
	}

	requested, err := profile.ParseMode(cfg.Isolation)
	if err != nil {
		return nil, err
	}
	prov, err := provision.New(provision.Config{
		Workspace: cfg.HostWorkspace,
		Python:    cfg.Python,
		MirrorURL: cfg.MirrorURL,
		PipArgs:   cfg.PipArgs,
	})
	if err != nil {
		return nil, err
	}
	ws, err := workspace.New(cfg.HostWorkspace, cfg.VirtualWorkspace, provision.ControlDirName)
	if err != nil {
		return nil, err
	}

	tools := profile.ProbeTooling(cfg.HelperPath)
	mode, err := profile.Detect(requested, runtime.GOOS, tools)
	if err != nil {
		return nil, err
	}

	var seccompProfile *profile.SeccompProfile
	if cfg.SeccompProfile != "" {
		if helperCapable(mode) {
			seccompProfile, err = profile.LoadSeccompProfile(cfg.SeccompProfile)
			if err != nil {
				return nil, err
			}
		} else {
			logger.Warn(context.Background(), "seccomp profile ignored by backend",
				zap.String("isolation", string(mode)))
		}
	}

	roots := make([]string, 0, 1+len(security.DefaultReadPaths)+len(cfg.AllowedPaths))
	roots = append(roots, cfg.HostWorkspace)
	roots = append(roots, security.DefaultReadPaths...)
	roots = append(roots, cfg.AllowedPaths...)
	guard := security.NewGuard(roots)

	eng, err := engine.New(engine.Config{
		Mode:       mode,
		Tools:      tools,
		Seccomp:    seccompProfile,
		Workspace:  ws,
		Control:    prov.ControlDir(),
		Python:     prov.RuntimePython(),
		Launcher:   prov.LauncherPath(),
		Env:        childEnv(prov, cfg.HostWorkspace),
		GuardRoots: guard.Roots(),
	})
	if err != nil {
		return nil, err
	}

	return &Sandbox{
		cfg:     cfg,
		mode:    mode,
		ws:      ws,
		guard:   guard,
		limiter: limits.NewLimiter(),
		prov:    prov,
		eng:     eng,
	}, nil
}

// helperCapable reports whether the backend runs the init helper, the only
// component able to load a seccomp filter.
func helperCapable(mode profile.IsolationMode) bool {
	switch mode {
	case profile.ModeNamespaceContainer, profile.ModePrivilegedChroot, profile.ModePlainSubprocess:
		return true
	}
	return false
}

// childEnv is the scrubbed environment every child starts from; children
// never inherit the engine's own environment. The runtime and node
// prefixes lead PATH so provisioned tools win.
func childEnv(prov *provision.Provisioner, home string) map[string]string {
	path := strings.Join([]string{
		filepath.Join(prov.RuntimeDir(), "bin"),
		filepath.Join(prov.NodeDepsDir(), "bin"),
		defaultChildPath,
	}, ":")
	return map[string]string{
		"PATH":                    path,
		"HOME":                    home,
		"LANG":                    "C.UTF-8",
		"PYTHONPATH":              prov.PythonDepsDir(),
		"PYTHONUNBUFFERED":        "1",
		"PYTHONDONTWRITEBYTECODE": "1",
	}
}

// RunLibraryCall imports module, optionally instantiates class with no
// arguments, and calls function with args and kwargs.
func (s *Sandbox) RunLibraryCall(ctx context.Context, module, class, function string, args []interface{}, kwargs map[string]interface{}, opts *RunOptions) (*result.RunResult, error) {
	item := &spec.WorkItem{
		Mode:    spec.ModeLibraryCall,
		Library: &spec.LibraryTarget{Module: module, Class: class, Function: function},
		Args:    args,
		Kwargs:  kwargs,
	}
	return s.run(ctx, item, opts)
}

// RunModuleCall loads a module from an explicit file path and calls
// function with args and kwargs.
func (s *Sandbox) RunModuleCall(ctx context.Context, path, function string, args []interface{}, kwargs map[string]interface{}, opts *RunOptions) (*result.RunResult, error) {
	item := &spec.WorkItem{
		Mode:       spec.ModeModuleCall,
		ModuleFile: &spec.ModuleFileTarget{Path: path, Function: function},
		Args:       args,
		Kwargs:     kwargs,
	}
	return s.run(ctx, item, opts)
}

// RunScript executes a standalone script and returns its combined
// captured output.
func (s *Sandbox) RunScript(ctx context.Context, path string, args []string, opts *RunOptions) (string, error) {
	item := &spec.WorkItem{
		Mode:   spec.ModeScriptRun,
		Script: &spec.ScriptTarget{Path: path, Args: args},
	}
	res, err := s.run(ctx, item, opts)
	if err != nil {
		return "", err
	}
	return res.CapturedOutput, nil
}

// RunShell runs a literal shell command in the workspace and returns its
// combined captured output.
func (s *Sandbox) RunShell(ctx context.Context, command string, opts *RunOptions) (string, error) {
	item := &spec.WorkItem{
		Mode:  spec.ModeShellRun,
		Shell: &spec.ShellTarget{Command: command},
	}
	res, err := s.run(ctx, item, opts)
	if err != nil {
		return "", err
	}
	return res.CapturedOutput, nil
}

func (s *Sandbox) run(ctx context.Context, item *spec.WorkItem, opts *RunOptions) (*result.RunResult, error) {
	if opts == nil {
		opts = &RunOptions{}
	}
	ctx = context.WithValue(ctx, contextkey.Workspace, s.ws.HostRoot())
	ctx = context.WithValue(ctx, contextkey.Isolation, string(s.mode))

	s.toHostForm(item, opts)
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if err := s.provisionFor(ctx, item); err != nil {
		return nil, err
	}

	plan, err := s.limiter.Plan(spec.ResourceLimits{
		CPUTimeSeconds: s.cfg.CPUTimeSeconds,
		MemoryMB:       s.cfg.MemoryMB,
	})
	if err != nil {
		return nil, err
	}

	res, err := s.eng.Execute(ctx, item, plan)
	if err != nil {
		return nil, err
	}
	res.Value = s.ws.TranslateToVirtual(res.Value)
	res.CapturedOutput = s.ws.MapToVirtual(res.CapturedOutput)
	return res, nil
}

// toHostForm rewrites caller-supplied virtual paths into host form, the
// canonical form everything below the facade works in.
func (s *Sandbox) toHostForm(item *spec.WorkItem, opts *RunOptions) {
	ws := s.ws
	item.WorkingDir = ws.MapToHost(opts.WorkingDir)
	if len(opts.ExtraSearchPaths) > 0 {
		item.ExtraSearchPaths = make([]string, len(opts.ExtraSearchPaths))
		for i, p := range opts.ExtraSearchPaths {
			item.ExtraSearchPaths[i] = ws.MapToHost(p)
		}
	}
	item.Dependencies = opts.Dependencies
	item.ProvisionCommand = opts.ProvisionCommand

	if item.ModuleFile != nil {
		item.ModuleFile.Path = ws.MapToHost(item.ModuleFile.Path)
	}
	if item.Script != nil {
		item.Script.Path = ws.MapToHost(item.Script.Path)
		if len(item.Script.Args) > 0 {
			// Rewrite into a fresh slice; the target aliases the
			// caller's args.
			mapped := make([]string, len(item.Script.Args))
			for i, a := range item.Script.Args {
				mapped[i] = ws.MapToHost(a)
			}
			item.Script.Args = mapped
		}
	}
	if item.Shell != nil {
		item.Shell.Command = ws.MapToHost(item.Shell.Command)
	}
	if len(item.Args) > 0 {
		item.Args = ws.TranslateToHost(item.Args).([]interface{})
	}
	if len(item.Kwargs) > 0 {
		item.Kwargs = ws.TranslateToHost(item.Kwargs).(map[string]interface{})
	}
}

// provisionFor builds the cached runtime and, only when the item needs
// them, the installer, the package prefixes, and the requested
// dependencies or provisioning command.
func (s *Sandbox) provisionFor(ctx context.Context, item *spec.WorkItem) error {
	if err := s.prov.EnsureRuntime(ctx); err != nil {
		return err
	}
	if len(item.Dependencies) == 0 && item.ProvisionCommand == "" {
		return nil
	}
	if err := s.prov.EnsureInstaller(ctx); err != nil {
		return err
	}
	if err := s.prov.EnsureInstallPrefixes(); err != nil {
		return err
	}
	if len(item.Dependencies) > 0 {
		if err := s.prov.InstallDependencies(ctx, item.Dependencies); err != nil {
			return err
		}
	}
	if item.ProvisionCommand != "" {
		if err := s.prov.RunProvisionCommand(ctx, item.ProvisionCommand); err != nil {
			return err
		}
	}
	return nil
}

// TranslateToHost rewrites a string, or nested lists/maps of strings,
// from virtual to host form.
func (s *Sandbox) TranslateToHost(v interface{}) interface{} { return s.ws.TranslateToHost(v) }

// TranslateToVirtual rewrites a string, or nested lists/maps of strings,
// from host to virtual form.
func (s *Sandbox) TranslateToVirtual(v interface{}) interface{} { return s.ws.TranslateToVirtual(v) }

// Workspace exposes the host-virtual path mapping.
func (s *Sandbox) Workspace() *workspace.Filesystem { return s.ws }

// Listing renders the redacted workspace tree.
func (s *Sandbox) Listing(opts workspace.ListingOptions) (string, error) {
	return s.ws.Listing(opts)
}

// Mode reports the isolation backend fixed at construction.
func (s *Sandbox) Mode() profile.IsolationMode { return s.mode }

// ControlDir reports the workspace control directory.
func (s *Sandbox) ControlDir() string { return s.prov.ControlDir() }

// Provisioner exposes environment provisioning, for callers that unpack
// root images or prime dependencies ahead of the first call.
func (s *Sandbox) Provisioner() *provision.Provisioner { return s.prov }

// Close removes any leftover request and response artifacts. The cached
// runtime and installed launcher stay for reuse by later instances.
func (s *Sandbox) Close() error {
	for _, pattern := range []string{"req-*.json", "resp-*.json"} {
		matches, err := filepath.Glob(filepath.Join(s.prov.ControlDir(), pattern))
		if err != nil {
			return appErr.Wrapf(err, appErr.Internal, "scan control directory failed")
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Warn(context.Background(), "remove artifact failed",
					zap.String("path", path), zap.Error(err))
			}
		}
	}
	return nil
}

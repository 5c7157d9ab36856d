// Package provision manages the per-workspace control directory: the cached
// runtime environment, the launcher file, the package installer and its
// private install prefixes.
package provision

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	appErr "agentbox/pkg/errors"
	"agentbox/pkg/utils/logger"
)

const (
	// ControlDirName is the private directory created inside the workspace.
	ControlDirName = ".agentbox"

	runtimeDirName = "runtime"
	launcherName   = "launcher.py"
	metaFileName   = "meta.json"
	depsDirName    = "deps"
	pythonDepsName = "python"
	nodeDepsName   = "node"
	mirrorConfName = "pip.conf"
	defaultPython  = "python3"
)

// runtimeMeta records what the cached runtime was built from, so a stale or
// foreign control directory is rebuilt instead of trusted.
type runtimeMeta struct {
	Interpreter    string `json:"interpreter"`
	CreatedAt      string `json:"created_at"`
	LauncherSHA256 string `json:"launcher_sha256"`
}

// Config controls provisioning.
type Config struct {
	// Workspace is the absolute host workspace path.
	Workspace string
	// Python is the base interpreter used to build the runtime.
	Python string
	// MirrorURL, when set, is written into the runtime's installer
	// configuration so dependency installs use a private mirror.
	MirrorURL string
	// PipArgs are extra flags appended to every install invocation,
	// shlex-split from configuration.
	PipArgs []string
}

// Provisioner lazily builds and reuses one runtime per workspace. It is not
// safe for concurrent use; callers serialize per Sandbox instance.
type Provisioner struct {
	cfg    Config
	ctrl   string
	runner commandRunner

	runtimeReady   bool
	installerReady bool
}

// New builds a provisioner rooted at the workspace's control directory.
func New(cfg Config) (*Provisioner, error) {
	if cfg.Workspace == "" || !filepath.IsAbs(cfg.Workspace) {
		return nil, appErr.ValidationError("workspace", "must be an absolute path")
	}
	if cfg.Python == "" {
		cfg.Python = defaultPython
	}
	return &Provisioner{
		cfg:    cfg,
		ctrl:   filepath.Join(cfg.Workspace, ControlDirName),
		runner: osRunner{},
	}, nil
}

// ControlDir returns the private per-workspace directory.
func (p *Provisioner) ControlDir() string { return p.ctrl }

// RuntimeDir returns the cached runtime environment root.
func (p *Provisioner) RuntimeDir() string { return filepath.Join(p.ctrl, runtimeDirName) }

// RuntimePython returns the runtime's interpreter path.
func (p *Provisioner) RuntimePython() string {
	return filepath.Join(p.RuntimeDir(), "bin", "python3")
}

// LauncherPath returns the installed launcher file.
func (p *Provisioner) LauncherPath() string { return filepath.Join(p.ctrl, launcherName) }

// PythonDepsDir returns the private python install prefix.
func (p *Provisioner) PythonDepsDir() string {
	return filepath.Join(p.ctrl, depsDirName, pythonDepsName)
}

// NodeDepsDir returns the private node install prefix.
func (p *Provisioner) NodeDepsDir() string {
	return filepath.Join(p.ctrl, depsDirName, nodeDepsName)
}

// EnsureRuntime creates the cached runtime and launcher on first use and
// reuses them afterwards. The runtime is built without a package installer;
// the installer is bootstrapped separately on first actual need.
func (p *Provisioner) EnsureRuntime(ctx context.Context) error {
	if p.runtimeReady {
		return nil
	}
	if err := os.MkdirAll(p.ctrl, 0o755); err != nil {
		return appErr.Wrapf(err, appErr.ProvisionFailed, "create control directory failed")
	}

	if p.checkDisk() {
		if err := p.installLauncher(); err != nil {
			return err
		}
		p.runtimeReady = true
		return nil
	}

	logger.Info(ctx, "provisioning runtime environment",
		zap.String("workspace", p.cfg.Workspace),
		zap.String("interpreter", p.cfg.Python))

	output, err := p.runner.run(ctx, p.cfg.Workspace, nil,
		p.cfg.Python, "-m", "venv", "--without-pip", p.RuntimeDir())
	if err != nil {
		return appErr.Wrapf(err, appErr.ProvisionFailed, "create runtime environment failed").
			WithOutput(output)
	}

	if err := p.installLauncher(); err != nil {
		return err
	}
	if err := p.writeMeta(); err != nil {
		return err
	}
	p.runtimeReady = true
	return nil
}

// checkDisk reports whether a previously provisioned runtime is on disk and
// was built by a compatible interpreter.
func (p *Provisioner) checkDisk() bool {
	if _, err := os.Stat(filepath.Join(p.RuntimeDir(), "pyvenv.cfg")); err != nil {
		return false
	}
	data, err := os.ReadFile(filepath.Join(p.ctrl, metaFileName))
	if err != nil {
		return false
	}
	var stored runtimeMeta
	if err := json.Unmarshal(data, &stored); err != nil {
		return false
	}
	return stored.Interpreter == p.cfg.Python
}

func (p *Provisioner) writeMeta() error {
	meta := runtimeMeta{
		Interpreter:    p.cfg.Python,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		LauncherSHA256: LauncherDigest(),
	}
	data, _ := json.Marshal(meta)
	if err := os.WriteFile(filepath.Join(p.ctrl, metaFileName), data, 0o644); err != nil {
		return appErr.Wrapf(err, appErr.ProvisionFailed, "write runtime meta failed")
	}
	return nil
}

package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	appErr "agentbox/pkg/errors"
	"agentbox/pkg/utils/logger"
)

// EnsureInstaller bootstraps the package installer into the runtime on first
// actual need, then points it at the private mirror when one is configured.
// The runtime is created without an installer, so the first dependency list
// or provisioning command pays this cost once.
func (p *Provisioner) EnsureInstaller(ctx context.Context) error {
	if p.installerReady {
		return nil
	}
	if err := p.EnsureRuntime(ctx); err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(p.RuntimeDir(), "bin", "pip3")); err != nil {
		logger.Info(ctx, "bootstrapping package installer",
			zap.String("runtime", p.RuntimeDir()))
		output, err := p.runner.run(ctx, p.cfg.Workspace, nil,
			p.RuntimePython(), "-m", "ensurepip", "--upgrade")
		if err != nil {
			return appErr.Wrapf(err, appErr.ProvisionFailed, "bootstrap package installer failed").
				WithOutput(output)
		}
	}

	if err := p.writeMirrorConf(); err != nil {
		return err
	}
	p.installerReady = true
	return nil
}

// writeMirrorConf points the runtime's installer at the private mirror. The
// config lives inside the runtime so it never leaks into global state.
func (p *Provisioner) writeMirrorConf() error {
	if p.cfg.MirrorURL == "" {
		return nil
	}
	conf := fmt.Sprintf("[global]\nindex-url = %s\n", p.cfg.MirrorURL)
	path := filepath.Join(p.RuntimeDir(), mirrorConfName)
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		return appErr.Wrapf(err, appErr.ProvisionFailed, "write mirror config failed")
	}
	return nil
}

// EnsureInstallPrefixes creates the private per-ecosystem install prefixes.
func (p *Provisioner) EnsureInstallPrefixes() error {
	for _, dir := range []string{p.PythonDepsDir(), p.NodeDepsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return appErr.Wrapf(err, appErr.ProvisionFailed, "create install prefix %s failed", dir)
		}
	}
	return nil
}

// InstallEnv returns the environment variables that point each supported
// ecosystem's installer at its private per-workspace prefix, so installs
// never touch shared or global locations.
func (p *Provisioner) InstallEnv() []string {
	return []string{
		"PIP_TARGET=" + p.PythonDepsDir(),
		"PYTHONPATH=" + p.PythonDepsDir(),
		"NPM_CONFIG_PREFIX=" + p.NodeDepsDir(),
	}
}

// InstallDependencies installs the requested list into the private python
// prefix, capturing installer output into the failure path.
func (p *Provisioner) InstallDependencies(ctx context.Context, deps []string) error {
	if len(deps) == 0 {
		return nil
	}
	if err := p.EnsureInstaller(ctx); err != nil {
		return err
	}
	if err := p.EnsureInstallPrefixes(); err != nil {
		return err
	}

	args := []string{"-m", "pip", "install"}
	if p.cfg.MirrorURL != "" {
		args = append(args, "--index-url", p.cfg.MirrorURL)
	}
	args = append(args, p.cfg.PipArgs...)
	args = append(args, deps...)

	logger.Info(ctx, "installing dependencies", zap.Strings("deps", deps))
	output, err := p.runner.run(ctx, p.cfg.Workspace, p.InstallEnv(), p.RuntimePython(), args...)
	if err != nil {
		return appErr.Wrapf(err, appErr.ProvisionFailed,
			"install dependencies %v failed", deps).WithOutput(output)
	}
	return nil
}

// RunProvisionCommand runs a caller-supplied raw provisioning command under
// the shell with the private install environment.
func (p *Provisioner) RunProvisionCommand(ctx context.Context, command string) error {
	if command == "" {
		return nil
	}
	if err := p.EnsureInstaller(ctx); err != nil {
		return err
	}
	if err := p.EnsureInstallPrefixes(); err != nil {
		return err
	}

	logger.Info(ctx, "running provisioning command", zap.String("command", command))
	env := append(p.InstallEnv(), "PATH="+p.installPath())
	output, err := p.runner.run(ctx, p.cfg.Workspace, env, "sh", "-c", command)
	if err != nil {
		return appErr.Wrapf(err, appErr.ProvisionFailed,
			"provisioning command failed").WithOutput(output)
	}
	return nil
}

// installPath puts the runtime and the private node prefix ahead of the host
// search path, so provisioning commands resolve the isolated tools first.
func (p *Provisioner) installPath() string {
	return filepath.Join(p.RuntimeDir(), "bin") +
		string(os.PathListSeparator) + filepath.Join(p.NodeDepsDir(), "bin") +
		string(os.PathListSeparator) + os.Getenv("PATH")
}

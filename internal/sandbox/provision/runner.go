package provision

import (
	"context"
	"os"
	"os/exec"
)

// commandRunner abstracts subprocess execution so provisioning logic can be
// tested without an interpreter on the host.
type commandRunner interface {
	run(ctx context.Context, dir string, env []string, name string, args ...string) (string, error)
}

// osRunner executes real subprocesses with combined output capture.
type osRunner struct{}

func (osRunner) run(ctx context.Context, dir string, env []string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = append(os.Environ(), env...)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

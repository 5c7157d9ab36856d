//go:build darwin

package engine

import "syscall"

// childSysProcAttr places the child in its own process group so cancel can
// reach grandchildren spawned by the launcher. Mount namespaces do not
// exist here; the flag is accepted for call-site symmetry.
func childSysProcAttr(bool) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

//go:build linux

package engine

import "syscall"

// childSysProcAttr places the child in its own process group and ties its
// lifetime to the engine process. privateMounts additionally unshares the
// mount namespace so helper bind mounts vanish with the child; that
// requires the privileges the chroot backend already assumes.
func childSysProcAttr(privateMounts bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if privateMounts {
		attr.Unshareflags = syscall.CLONE_NEWNS
	}
	return attr
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

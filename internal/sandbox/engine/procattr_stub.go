//go:build !linux && !darwin

package engine

import "syscall"

func childSysProcAttr(bool) *syscall.SysProcAttr { return nil }

func killProcessGroup(int) {}

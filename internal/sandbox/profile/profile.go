// Package profile defines isolation modes, backend detection, and the
// optional seccomp profile applied by the init helper.
package profile

import (
	"os"
	"os/exec"
	"path/filepath"

	appErr "agentbox/pkg/errors"
)

// IsolationMode identifies one sandbox backend variant.
type IsolationMode string

const (
	// ModeAuto is resolved to a concrete variant by Detect at construction.
	ModeAuto IsolationMode = "auto"

	// ModeNativeProfile wraps the child in the host's declarative
	// per-process sandbox (darwin sandbox-exec).
	ModeNativeProfile IsolationMode = "native-profile"

	// ModeNamespaceContainer builds a fresh root from bind mounts inside
	// new namespaces via bwrap. Networking stays shared.
	ModeNamespaceContainer IsolationMode = "namespace-container"

	// ModePrivilegedChroot changes root to the control directory, which
	// must be a complete minimal root image.
	ModePrivilegedChroot IsolationMode = "privileged-chroot"

	// ModePlainSubprocess runs an ordinary child with rlimits and the
	// allow-list guard, no filesystem isolation.
	ModePlainSubprocess IsolationMode = "plain-subprocess"

	// ModeInProcessLimits runs the launcher directly under the runtime
	// interpreter; the launcher applies rlimits and the guard itself.
	ModeInProcessLimits IsolationMode = "in-process-limits"
)

// BwrapBinary is the namespace-container helper probed on PATH.
const BwrapBinary = "bwrap"

// HelperBinary is the init helper that applies limits and mounts before
// handing control to the launcher.
const HelperBinary = "agentbox-init"

// NativeSandboxBinary is the darwin profile interpreter.
const NativeSandboxBinary = "sandbox-exec"

// Valid reports whether the mode names a known variant, ModeAuto included.
func (m IsolationMode) Valid() bool {
	switch m {
	case ModeAuto, ModeNativeProfile, ModeNamespaceContainer,
		ModePrivilegedChroot, ModePlainSubprocess, ModeInProcessLimits:
		return true
	}
	return false
}

// Isolated reports whether the variant provides OS filesystem isolation.
// The allow-list guard is only serialized for non-isolated variants.
func (m IsolationMode) Isolated() bool {
	switch m {
	case ModeNativeProfile, ModeNamespaceContainer, ModePrivilegedChroot:
		return true
	}
	return false
}

// ParseMode validates a caller-supplied mode string. The default is
// namespace-container; "chroot" is accepted as shorthand for the
// privileged-chroot variant.
func ParseMode(s string) (IsolationMode, error) {
	switch s {
	case "":
		return ModeNamespaceContainer, nil
	case "chroot":
		return ModePrivilegedChroot, nil
	}
	m := IsolationMode(s)
	if !m.Valid() {
		return "", appErr.ValidationError("isolation", "unknown isolation mode "+s)
	}
	return m, nil
}

// Tooling records which helper binaries resolve on this host. Probed once
// at construction; Detect never re-probes.
type Tooling struct {
	BwrapPath      string
	HelperPath     string
	NativeWrapPath string
}

// ProbeTooling locates the isolation helpers. An explicit helper path wins;
// otherwise the helper is looked up next to the current executable, then on
// PATH. bwrap and sandbox-exec are PATH-only.
func ProbeTooling(explicitHelper string) Tooling {
	var t Tooling

	if p, err := exec.LookPath(BwrapBinary); err == nil {
		t.BwrapPath = p
	}
	if p, err := exec.LookPath(NativeSandboxBinary); err == nil {
		t.NativeWrapPath = p
	}

	if explicitHelper != "" {
		if _, err := os.Stat(explicitHelper); err == nil {
			t.HelperPath = explicitHelper
		}
		return t
	}

	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), HelperBinary)
		if _, err := os.Stat(sibling); err == nil {
			t.HelperPath = sibling
			return t
		}
	}
	if p, err := exec.LookPath(HelperBinary); err == nil {
		t.HelperPath = p
	}
	return t
}

// Detect resolves the requested mode to the concrete variant used for the
// Sandbox's whole lifetime. goos is a parameter so tests can cover every
// branch on one host.
func Detect(requested IsolationMode, goos string, tools Tooling) (IsolationMode, error) {
	if !requested.Valid() {
		return "", appErr.ValidationError("isolation", "unknown isolation mode "+string(requested))
	}

	switch goos {
	case "darwin":
		// The mode selector only exists for linux; darwin always runs
		// the native profile.
		if tools.NativeWrapPath == "" {
			return "", appErr.HelperNotFoundError(NativeSandboxBinary)
		}
		return ModeNativeProfile, nil

	case "linux":
		switch requested {
		case ModeAuto:
			if tools.BwrapPath != "" {
				return ModeNamespaceContainer, nil
			}
			if tools.HelperPath != "" {
				return ModePlainSubprocess, nil
			}
			return ModeInProcessLimits, nil
		case ModeNativeProfile:
			return "", appErr.ValidationError("isolation",
				"native-profile is only available on darwin")
		case ModeNamespaceContainer:
			if tools.BwrapPath == "" {
				return "", appErr.HelperNotFoundError(BwrapBinary)
			}
			return requested, nil
		case ModePrivilegedChroot, ModePlainSubprocess:
			if tools.HelperPath == "" {
				return "", appErr.HelperNotFoundError(HelperBinary)
			}
			return requested, nil
		case ModeInProcessLimits:
			return requested, nil
		}
	}

	return "", appErr.Newf(appErr.UnsupportedHost, "sandbox execution is not supported on %s", goos)
}

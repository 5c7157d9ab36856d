//go:build linux

// agentbox-init is the last trusted process before user code: it reads the
// init section of a request artifact, applies mounts, chroot, rlimits, the
// optional seccomp filter, and the scrubbed environment, then replaces
// itself with the launcher command. It never interprets the payload
// section; that belongs to the launcher.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

// A denied path is reported with this exit status and stderr marker so the
// spawner can tell an allow-list denial from an ordinary failure. The values
// are mirrored in the engine's dispatcher.
const (
	deniedExitCode = 77
	deniedMarker   = "agentbox-init: path outside the allowed roots"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		var denied *deniedError
		if errors.As(err, &denied) {
			os.Exit(deniedExitCode)
		}
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 2 {
		return fmt.Errorf("usage: agentbox-init <request-path>")
	}
	req, err := readRequest(os.Args[1])
	if err != nil {
		return err
	}
	init := req.Init
	if init == nil || len(init.Exec) == 0 {
		return fmt.Errorf("request has no init section")
	}

	guard := newPathGuard(init.GuardRoots)

	if len(init.Mounts) > 0 {
		for _, m := range init.Mounts {
			if err := guard.check(m.Source); err != nil {
				return err
			}
		}
		if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
			return fmt.Errorf("make mount private: %w", err)
		}
		if err := applyBindMounts(init.Chroot, init.Mounts); err != nil {
			return err
		}
	}
	if init.Chroot != "" {
		if err := unix.Chroot(init.Chroot); err != nil {
			return fmt.Errorf("chroot: %w", err)
		}
		if err := os.Chdir("/"); err != nil {
			return fmt.Errorf("chdir root: %w", err)
		}
	}
	if init.Dir != "" {
		if err := guard.check(init.Dir); err != nil {
			return err
		}
		if err := os.Chdir(init.Dir); err != nil {
			return fmt.Errorf("chdir workdir: %w", err)
		}
	}
	if init.Rlimits != nil {
		if err := applyRlimits(*init.Rlimits); err != nil {
			return err
		}
	}
	if init.Seccomp != nil {
		if err := applySeccomp(init.Seccomp); err != nil {
			return err
		}
	}

	env := execEnv(init.Env)
	target := init.Exec[0]
	if !filepath.IsAbs(target) {
		resolved, err := exec.LookPath(target)
		if err != nil {
			return fmt.Errorf("resolve command: %w", err)
		}
		target = resolved
	}
	if err := guard.check(target); err != nil {
		return err
	}
	return unix.Exec(target, init.Exec, env)
}

// deniedError marks a guard denial so main can exit with the reserved
// status instead of the generic failure status.
type deniedError struct{ path string }

func (e *deniedError) Error() string {
	return fmt.Sprintf("%s: %s", deniedMarker, e.path)
}

// pathGuard mirrors the host-side allow list for backends without
// filesystem isolation. An empty root set means the spawner relies on OS
// isolation instead, and every path passes.
type pathGuard struct{ roots []string }

func newPathGuard(roots []string) *pathGuard {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if root != "" {
			cleaned = append(cleaned, filepath.Clean(root))
		}
	}
	return &pathGuard{roots: cleaned}
}

func (g *pathGuard) check(path string) error {
	if len(g.roots) == 0 || path == "" {
		return nil
	}
	cleaned := filepath.Clean(path)
	for _, root := range g.roots {
		if root == "/" || cleaned == root || strings.HasPrefix(cleaned, root+"/") {
			return nil
		}
	}
	return &deniedError{path: path}
}

type request struct {
	Init *initSection `json:"init"`
}

type initSection struct {
	Chroot     string            `json:"chroot"`
	Mounts     []mountSpec       `json:"mounts"`
	Dir        string            `json:"dir"`
	Env        map[string]string `json:"env"`
	Exec       []string          `json:"exec"`
	Seccomp    *seccompConfig    `json:"seccomp"`
	Rlimits    *rlimitPlan       `json:"rlimits"`
	GuardRoots []string          `json:"guard_roots"`
}

type mountSpec struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"read_only"`
}

type rlimitPlan struct {
	CPUTimeSeconds int   `json:"cpu_time_seconds"`
	MemoryBytes    int64 `json:"memory_bytes"`
}

type seccompConfig struct {
	DefaultAction string        `json:"defaultAction"`
	Syscalls      []seccompRule `json:"syscalls"`
}

type seccompRule struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

func readRequest(path string) (request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return request{}, fmt.Errorf("read request: %w", err)
	}
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func applyBindMounts(rootfs string, mounts []mountSpec) error {
	for _, m := range mounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("invalid mount spec")
		}
		target := m.Target
		if rootfs != "" {
			target = filepath.Join(rootfs, m.Target)
		}
		if err := ensureMountTarget(m.Source, target); err != nil {
			return err
		}
		if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind mount: %w", err)
		}
		if m.ReadOnly {
			if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return fmt.Errorf("remount readonly: %w", err)
			}
		}
	}
	if rootfs != "" {
		procPath := filepath.Join(rootfs, "proc")
		if err := os.MkdirAll(procPath, 0755); err != nil {
			return fmt.Errorf("mkdir proc: %w", err)
		}
		if err := unix.Mount("proc", procPath, "proc", 0, ""); err != nil && !errors.Is(err, unix.EBUSY) {
			return fmt.Errorf("mount proc: %w", err)
		}
	}
	return nil
}

func ensureMountTarget(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("mkdir mount target: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("mkdir mount target dir: %w", err)
	}
	file, err := os.OpenFile(target, os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("create mount target file: %w", err)
	}
	return file.Close()
}

func applyRlimits(limits rlimitPlan) error {
	if limits.CPUTimeSeconds > 0 {
		seconds := uint64(limits.CPUTimeSeconds)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: seconds, Max: seconds}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if limits.MemoryBytes > 0 {
		bytes := uint64(limits.MemoryBytes)
		if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit as: %w", err)
		}
	}
	return nil
}

func applySeccomp(cfg *seccompConfig) error {
	defaultAction, err := parseSeccompAction(cfg.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	for _, rule := range cfg.Syscalls {
		action, err := parseSeccompAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				return fmt.Errorf("resolve syscall %s: %w", name, err)
			}
			if err := filter.AddRuleExact(call, action); err != nil {
				return fmt.Errorf("add seccomp rule: %w", err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func parseSeccompAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW", "ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS", "KILL":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}

// execEnv renders the environment for the exec'd launcher. A nil map means
// the spawner already scrubbed and set the environment, so it is kept.
func execEnv(env map[string]string) []string {
	if env == nil {
		return os.Environ()
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+env[key])
	}
	return out
}

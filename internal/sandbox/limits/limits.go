// Package limits computes the effective resource ceilings carried into every
// child. Ceilings are applied inside the child before user code runs;
// exceeding one kills the child at the OS level, so the host side only plans
// values and rejects requests that are already unsatisfiable.
package limits

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"agentbox/internal/sandbox/spec"
	appErr "agentbox/pkg/errors"
)

// DefaultCgroupRoot is where ambient container ceilings are read.
const DefaultCgroupRoot = "/sys/fs/cgroup"

const (
	// Cgroup files report absurdly large numbers when unconfined.
	ambientUnlimited = int64(1) << 60

	// Below this floor an interpreter cannot even start, so spawning is
	// pointless and the violation is reported before the child exists.
	minViableMemoryBytes = int64(8) * 1024 * 1024
)

// Plan is the effective ceiling set for one child, serialized into the
// request artifact. A zero field means no ceiling of that kind.
type Plan struct {
	CPUTimeSeconds int   `json:"cpu_time_seconds,omitempty"`
	MemoryBytes    int64 `json:"memory_bytes,omitempty"`
}

// Limiter clamps requested ceilings against the ambient environment: the
// container-reported memory ceiling and the process's active hard ceiling.
// Neither is ever raised.
type Limiter struct {
	cgroupRoot  string
	goos        string
	hardCeiling func() int64
}

// NewLimiter builds a limiter for the real host.
func NewLimiter() *Limiter {
	return NewLimiterAt(DefaultCgroupRoot, runtime.GOOS)
}

// NewLimiterAt builds a limiter reading ambient ceilings under root, treating
// goos as the host OS. Tests use fixture directories and foreign goos values.
func NewLimiterAt(root, goos string) *Limiter {
	return &Limiter{
		cgroupRoot:  root,
		goos:        goos,
		hardCeiling: activeHardMemoryCeiling,
	}
}

// Plan computes the ceilings for one child. On darwin the memory ceiling is
// skipped entirely: address-space accounting under the native sandbox kills
// interpreter start-up, so only the CPU ceiling applies there.
func (l *Limiter) Plan(req spec.ResourceLimits) (Plan, error) {
	var p Plan
	if req.CPUTimeSeconds > 0 {
		p.CPUTimeSeconds = req.CPUTimeSeconds
	}

	if l.goos == "darwin" || req.MemoryMB <= 0 {
		return p, nil
	}

	mem := req.MemoryBytes()
	if ambient := l.AmbientMemoryCeiling(); ambient > 0 && ambient < mem {
		mem = ambient
	}
	if hard := l.hardCeiling(); hard > 0 && hard < mem {
		mem = hard
	}
	if mem < minViableMemoryBytes {
		return Plan{}, appErr.ResourceLimitError(
			"effective memory ceiling %d bytes is below the %d byte floor", mem, minViableMemoryBytes)
	}
	p.MemoryBytes = mem
	return p, nil
}

// AmbientMemoryCeiling reads the container-reported memory ceiling: the
// unified accounting file first, then the two legacy locations. Returns 0
// when no ceiling is configured.
func (l *Limiter) AmbientMemoryCeiling() int64 {
	for _, name := range []string{
		"memory.max",                   // cgroup v2 unified hierarchy
		"memory/memory.limit_in_bytes", // cgroup v1 controller mount
		"memory.limit_in_bytes",        // cgroup v1 direct mount
	} {
		if v, ok := readCeilingFile(filepath.Join(l.cgroupRoot, name)); ok {
			return v
		}
	}
	return 0
}

func readCeilingFile(path string) (int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	value := strings.TrimSpace(string(data))
	if value == "" || value == "max" {
		return 0, false
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 || n >= ambientUnlimited {
		return 0, false
	}
	return n, true
}

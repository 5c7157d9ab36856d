//go:build linux || darwin

package limits

import "golang.org/x/sys/unix"

// activeHardMemoryCeiling returns the process's current RLIMIT_AS hard
// ceiling, or 0 when unlimited. Children inherit it, so planning above it
// would be lying to the caller.
func activeHardMemoryCeiling() int64 {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_AS, &rl); err != nil {
		return 0
	}
	if rl.Max == unix.RLIM_INFINITY {
		return 0
	}
	v := int64(rl.Max)
	if v <= 0 || v >= ambientUnlimited {
		return 0
	}
	return v
}

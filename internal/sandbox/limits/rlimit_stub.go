//go:build !linux && !darwin

package limits

// activeHardMemoryCeiling has no meaning on hosts without rlimits.
func activeHardMemoryCeiling() int64 {
	return 0
}

//go:build !linux

package sandtrace

// MaybeTraceeInit always returns false on non-Linux platforms: the
// ptrace-based tracer this package implements has no such platform.
func MaybeTraceeInit() bool {
	return false
}

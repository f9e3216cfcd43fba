//go:build linux

package linux

// ResourceLimits bounds the rlimits applied to the tracee in the re-exec
// stub, as a defense-in-depth measure independent of the ptrace policy
// engine (which has no rlimit concept of its own).
type ResourceLimits struct {
	// MaxProcesses is the maximum number of processes the tracee may spawn.
	MaxProcesses int

	// MaxMemoryBytes is the maximum address-space size in bytes.
	MaxMemoryBytes int64

	// MaxFileDescriptors is the maximum number of open file descriptors.
	MaxFileDescriptors int

	// MaxCPUSeconds is the maximum CPU time in seconds. Zero means unlimited.
	MaxCPUSeconds int
}

// DefaultResourceLimits returns the default rlimits applied to a tracee
// when no override is configured.
func DefaultResourceLimits() *ResourceLimits {
	return &ResourceLimits{
		MaxProcesses:       1024,
		MaxMemoryBytes:     2 * 1024 * 1024 * 1024,
		MaxFileDescriptors: 1024,
		MaxCPUSeconds:      0,
	}
}

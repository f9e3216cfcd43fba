//go:build linux

package sandtrace

import "github.com/kalbhor/sandtrace/platform/linux"

// MaybeTraceeInit checks whether the current process was re-executed as
// the tracee-init defense-in-depth stub rather than the real build tool.
// If so, it applies Landlock/seccomp/rlimits and execs the real target —
// this call never returns in that case. Otherwise it returns false and
// the caller continues normally.
//
// Call this at the very beginning of main() before any other
// initialization:
//
//	func main() {
//	    if sandtrace.MaybeTraceeInit() {
//	        return
//	    }
//	    // ... rest of main
//	}
func MaybeTraceeInit() bool {
	return linux.MaybeTraceeInit()
}

package engine

import "strings"

// probedAllocatorPaths lists the filesystem paths glibc/jemalloc/etc.
// allocator initialization may probe before any sandbox state exists.
// A call touching one of these must return the kernel's own answer
// (here: "not found") before the tracer/observer is ever constructed —
// spec §5's canonical example is readlink("/etc/malloc.conf"); we
// generalize it to access()/faccessat() against the same path per
// SPEC_FULL.md §12, since some allocator versions probe via access
// instead of readlink.
var probedAllocatorPaths = []string{
	"/etc/malloc.conf",
}

// IsPreTracerShortCircuit reports whether a call against path must be
// answered before the tracer/observer exists, bypassing policy, dedup,
// and reporting entirely. Such calls are "sometimes" hooks in the
// teacher's own vocabulary: any syscall reachable from allocator
// initialization needs this fast path, not just readlink.
func IsPreTracerShortCircuit(path string) bool {
	for _, p := range probedAllocatorPaths {
		if path == p || strings.HasSuffix(path, "/"+trimLeadingSlash(p)) {
			return true
		}
	}
	return false
}

func trimLeadingSlash(p string) string {
	return strings.TrimPrefix(p, "/")
}

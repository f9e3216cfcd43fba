package sandtrace

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/kalbhor/sandtrace/internal/elf"
)

// staticCacheTTL bounds how long a cached static/dynamic classification
// is trusted before IsStatic re-reads the ELF header. Build trees
// rebuild binaries in place; a stale "static" verdict on a path that
// now holds a freshly linked dynamic binary would be a silent miss.
const staticCacheTTL = 30 * time.Second

type staticCacheEntry struct {
	isStatic bool
	at       time.Time
}

// StaticBinaryCache is a bounded-lifetime (path, is-static) cache used
// by MustTrace so repeated checks of the same tool don't re-read its ELF
// header. Entries live in a map keyed by path and keep no order; the
// exec handling in Tracer does not consult it.
type StaticBinaryCache struct {
	mu      sync.Mutex
	entries map[string]staticCacheEntry
}

// NewStaticBinaryCache returns an empty cache.
func NewStaticBinaryCache() *StaticBinaryCache {
	return &StaticBinaryCache{entries: make(map[string]staticCacheEntry)}
}

// IsStatic reports whether path is statically linked, consulting the
// cache before falling back to elf.IsStaticallyLinked on a miss or
// expired entry.
func (c *StaticBinaryCache) IsStatic(path string) (bool, error) {
	c.mu.Lock()
	if e, ok := c.entries[path]; ok && time.Since(e.at) < staticCacheTTL {
		c.mu.Unlock()
		return e.isStatic, nil
	}
	c.mu.Unlock()

	isStatic, err := elf.IsStaticallyLinked(path)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.entries[path] = staticCacheEntry{isStatic: isStatic, at: time.Now()}
	c.mu.Unlock()
	return isStatic, nil
}

// ForcedPtraceList holds the basenames of executables that must always
// be routed through the ptrace driver regardless of their own linkage,
// per the __FORCED_PTRACE_LIST__ environment contract.
type ForcedPtraceList struct {
	names map[string]struct{}
}

// NewForcedPtraceList parses a colon-separated basename list.
func NewForcedPtraceList(colonSeparated string) *ForcedPtraceList {
	l := &ForcedPtraceList{names: make(map[string]struct{})}
	start := 0
	for i := 0; i <= len(colonSeparated); i++ {
		if i == len(colonSeparated) || colonSeparated[i] == ':' {
			if i > start {
				l.names[colonSeparated[start:i]] = struct{}{}
			}
			start = i + 1
		}
	}
	return l
}

// Contains reports whether the basename of path is in the forced list.
func (l *ForcedPtraceList) Contains(path string) bool {
	if l == nil {
		return false
	}
	_, ok := l.names[filepath.Base(path)]
	return ok
}

// MustTrace decides, for a given exec target, whether this core's
// single tracer mechanism is required rather than optional — always
// true under SPEC_FULL.md §0 (every exec goes through the tracer), but
// the three spec-named reasons are preserved as named booleans so a
// caller reporting "why" can cite one: unconditional policy flag,
// forced-list membership, or static linkage.
func MustTrace(path string, forced *ForcedPtraceList, unconditional bool, cache *StaticBinaryCache) (trace bool, reason string) {
	if unconditional {
		return true, "unconditional-ptrace policy flag"
	}
	if forced.Contains(path) {
		return true, "forced-ptrace list"
	}
	isStatic, err := cache.IsStatic(path)
	if err == nil && isStatic {
		return true, "statically linked"
	}
	return true, "dynamically linked (still traced; SPEC_FULL.md §0)"
}

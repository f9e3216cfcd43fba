// Package fdtable implements the tracer's bounded descriptor-to-path
// cache (spec component C2): a fast, best-effort mapping from a small
// open file descriptor in the traced process to its last-known
// canonical path.
package fdtable

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
)

// Capacity is the highest descriptor value cached. Descriptors at or
// above this value always fall through to a /proc read.
const Capacity = 1024

// Table is a process-local, capacity-bounded fd→path cache. It carries
// no internal locking: each slot is written by a single pointer-sized
// atomic publication, matching the ownership model described for C2 —
// a traced process that shares one fd across threads sees a cache miss
// followed by a fresh /proc read, never corruption.
type Table struct {
	slots    [Capacity]atomic.Pointer[string]
	disabled atomic.Bool
}

// New returns an empty, enabled table.
func New() *Table {
	return &Table{}
}

// Get resolves fd to a canonical path, consulting the cache first. On a
// miss (or once the table has been disabled) it reads
// /proc/<pid>/fd/<fd> for pid != 0, or the calling process's own
// /proc/self/fd/<fd> when pid == 0, caching the result unless disabled.
func (t *Table) Get(fd, pid int) (string, error) {
	if fd >= 0 && fd < Capacity && !t.disabled.Load() {
		if p := t.slots[fd].Load(); p != nil {
			return *p, nil
		}
	}
	path, err := readProcFd(fd, pid)
	if err != nil {
		return "", err
	}
	t.Put(fd, path)
	return path, nil
}

// Put records path for fd. Best-effort: descriptors outside
// [0, Capacity), calls after Disable, and non-filesystem targets
// (pipe:[...], socket:[...], anon_inode:...) are silently ignored —
// their close is never observed, so a cached entry for one would go
// stale forever.
func (t *Table) Put(fd int, path string) {
	if fd < 0 || fd >= Capacity || t.disabled.Load() {
		return
	}
	if !isCacheableTarget(path) {
		return
	}
	p := path
	t.slots[fd].Store(&p)
}

func isCacheableTarget(path string) bool {
	return !strings.HasPrefix(path, "pipe:") &&
		!strings.HasPrefix(path, "socket:") &&
		!strings.HasPrefix(path, "anon_inode:")
}

// Clear invalidates a single descriptor slot. Called on close, on
// dup/dup2/dup3 of the target fd, and on a successful open/creat that
// reuses a previously cached descriptor number.
func (t *Table) Clear(fd int) {
	if fd < 0 || fd >= Capacity {
		return
	}
	t.slots[fd].Store(nil)
}

// ClearAll invalidates every slot. Called once after fork (the child's
// descriptor table is a snapshot that the parent may still mutate) and
// on exec (the address space, and therefore the cache, is gone).
func (t *Table) ClearAll() {
	for i := range t.slots {
		t.slots[i].Store(nil)
	}
}

// Disable permanently stops caching; it is one-way. After Disable every
// Get falls through to /proc.
func (t *Table) Disable() {
	t.disabled.Store(true)
	t.ClearAll()
}

func readProcFd(fd, pid int) (string, error) {
	var procPath string
	if pid == 0 {
		procPath = fmt.Sprintf("/proc/self/fd/%d", fd)
	} else {
		procPath = fmt.Sprintf("/proc/%d/fd/%d", pid, fd)
	}
	target, err := os.Readlink(procPath)
	if err != nil {
		return "", fmt.Errorf("fdtable: resolve fd %d: %w", fd, err)
	}
	return target, nil
}

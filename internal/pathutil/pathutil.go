// Package pathutil implements the tracer's path normalizer (spec
// component C3): it canonicalizes a (dirfd, path) pair observed in a
// traced process into an absolute path, honoring symlink-follow flags
// and the traced pid's own working directory. It also carries the
// small set of existence/string helpers the access engine needs to
// classify an open() call and to sanitize strings read out of a
// tracee's address space.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AtFDCWD mirrors the libc AT_FDCWD sentinel: "resolve relative to the
// calling thread's current working directory" rather than to a
// directory descriptor.
const AtFDCWD = -100

// DirResolver returns the cached (or freshly read) path for a directory
// file descriptor, used when a relative path must be resolved against
// something other than AT_FDCWD.
type DirResolver func(dirfd, pid int) (string, error)

// ReadlinkFunc resolves the final component of path via the real
// (non-hooked) readlink, used to honor symlink-follow semantics without
// ever routing through an intercepted entry point.
type ReadlinkFunc func(path string) (string, error)

// NormalizeAt canonicalizes path relative to dirfd as observed in the
// process identified by pid (0 means the tracer's own process). noFollow
// mirrors the caller's AT_SYMLINK_NOFOLLOW hint.
//
// Resolution never allocates through a path that can re-enter the
// tracer: dirResolve and readlink are expected to be backed by real
// syscalls or a pre-populated fd cache, never by a hooked wrapper.
// Resolution fails soft — on any lookup error it falls back to the
// best partial result rather than aborting the syscall wrapper.
func NormalizeAt(dirfd int, path string, noFollow bool, pid int, dirResolve DirResolver, readlink ReadlinkFunc) string {
	if path == "" {
		return ""
	}

	base := path
	if !filepath.IsAbs(path) {
		var prefix string
		var err error
		if dirfd == AtFDCWD {
			prefix, err = tracedCwd(pid)
		} else if dirResolve != nil {
			prefix, err = dirResolve(dirfd, pid)
		}
		if err != nil || prefix == "" {
			prefix = "."
		}
		base = filepath.Join(prefix, path)
	}

	base = lexicalClean(base)

	if readlink != nil {
		base = resolveComponents(base, noFollow, readlink)
	}

	return base
}

// maxSymlinkDepth bounds how many times resolveComponent chases a
// single component's link chain, mirroring the kernel's own
// SYMLOOP_MAX: a cycle fails soft to its last-resolved value instead of
// looping forever.
const maxSymlinkDepth = 40

// resolveComponents real-stat-resolves path one component at a time
// from the root, so an intermediate directory that is itself a symlink
// is followed before the next component is joined onto it (spec.md
// §4.3 step 4). The final component is resolved too unless noFollow is
// set, matching the caller's AT_SYMLINK_NOFOLLOW hint.
func resolveComponents(path string, noFollow bool, readlink ReadlinkFunc) string {
	comps := strings.Split(strings.TrimPrefix(path, "/"), "/")
	resolved := "/"
	for i, c := range comps {
		if c == "" {
			continue
		}
		candidate := lexicalClean(filepath.Join(resolved, c))
		if i == len(comps)-1 && noFollow {
			resolved = candidate
			continue
		}
		resolved = resolveComponent(candidate, readlink)
	}
	return resolved
}

// resolveComponent chases path's own link chain (it may itself resolve
// to another symlink) via readlink, returning path unchanged once
// readlink reports it is not a symlink.
func resolveComponent(path string, readlink ReadlinkFunc) string {
	for i := 0; i < maxSymlinkDepth; i++ {
		target, err := readlink(path)
		if err != nil {
			return path
		}
		if filepath.IsAbs(target) {
			path = lexicalClean(target)
		} else {
			path = lexicalClean(filepath.Join(filepath.Dir(path), target))
		}
	}
	return path
}

// Normalize is NormalizeAt with dirfd fixed to AT_FDCWD, the common case
// for plain (non-*at) syscalls.
func Normalize(path string, noFollow bool, pid int, readlink ReadlinkFunc) string {
	return NormalizeAt(AtFDCWD, path, noFollow, pid, nil, readlink)
}

// tracedCwd returns /proc/<pid>/cwd for a foreign pid, or the tracer's
// own working directory when pid == 0.
func tracedCwd(pid int) (string, error) {
	if pid == 0 {
		return os.Getwd()
	}
	target, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
	if err != nil {
		return "", fmt.Errorf("pathutil: resolve traced cwd: %w", err)
	}
	return target, nil
}

// lexicalClean resolves "." and ".." segments purely lexically (no
// filesystem access, no intermediate symlink resolution) the way
// filepath.Clean does, then guarantees the result stays absolute.
func lexicalClean(p string) string {
	cleaned := filepath.Clean(p)
	if !filepath.IsAbs(cleaned) {
		cleaned = "/" + cleaned
	}
	return cleaned
}

// IsIdempotent reports whether p is already in normal form, i.e.
// normalizing it again would reproduce the same string. Every
// non-empty NormalizeAt result satisfies this by construction; the
// empty result for an empty path does not.
func IsIdempotent(p string) bool {
	return p == lexicalClean(p) && strings.HasPrefix(p, "/")
}

// Exists reports whether path names an existing filesystem entry,
// following symlinks. Used by the open-kind classifier (spec §4.7):
// CREATE vs. WRITE vs. OPEN depends on pre-call existence.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FindFirstNonExistent returns the first ancestor component of path
// (walking from the root down) that does not exist, or "" if the whole
// path exists.
func FindFirstNonExistent(path string) string {
	cleaned := filepath.Clean(path)

	var chain []string
	cur := cleaned
	for {
		chain = append(chain, cur)
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	for i := len(chain) - 1; i >= 0; i-- {
		if _, err := os.Stat(chain[i]); err != nil {
			return chain[i]
		}
	}
	return ""
}

// RealReadlink resolves the final component of path via the real,
// non-hooked os.Readlink. When path does not name a symlink it returns
// path unchanged together with os.Readlink's error — the error is how
// NormalizeAt's component walk recognizes the common, non-symlink case.
func RealReadlink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return path, err
	}
	return target, nil
}

// ContainsNullByte reports whether s contains a NUL byte. A path read
// out of a tracee's address space is bounded by a NUL terminator found
// during the PEEKDATA loop, but defense in depth costs nothing here.
func ContainsNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00')
}

// StripNullBytes removes embedded NUL bytes, used when sanitizing a
// string assembled from raw ptrace PEEKDATA words before it is ever
// compared, cached, or written to the reporting channel.
func StripNullBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

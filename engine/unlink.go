package engine

import (
	"syscall"

	"github.com/kalbhor/sandtrace/internal/pathutil"
	"github.com/kalbhor/sandtrace/ioevent"
)

// Unlink runs the unlink/unlinkat wrapper. An empty path under
// AT_FDCWD is forwarded without building an event at all — not even a
// denied one — per spec §8's boundary behavior and the original
// detours.cpp bodies this is lifted from (SPEC_FULL.md §12).
func (e *Engine) Unlink(dirfd int, path string, pid int, fail bool, dirResolve pathutil.DirResolver, readlink pathutil.ReadlinkFunc, progName string, call RealCall) (int64, syscall.Errno) {
	if path == "" && dirfd == pathutil.AtFDCWD {
		return call()
	}
	normalized := pathutil.NormalizeAt(dirfd, path, true, pid, dirResolve, readlink)
	evt := ioevent.Event{Kind: ioevent.KindUnlink, SourcePID: pid, Path: normalized, ProgName: progName}
	return e.TemplateA(evt, fail, true, call)
}

// Rmdir runs the rmdir/unlinkat(AT_REMOVEDIR) wrapper. It takes a dirfd
// like Unlink (unlinkat's AT_REMOVEDIR case needs dirfd resolution; a
// plain rmdir(2) call passes dirfd=pathutil.AtFDCWD). rmdir never
// consults the dedup cache (dedupCheck=false): SPEC_FULL.md §12 carries
// this forward from the original's checkCache=false so repeated rmdir
// attempts against the same path stay individually visible.
func (e *Engine) Rmdir(dirfd int, path string, pid int, fail bool, dirResolve pathutil.DirResolver, readlink pathutil.ReadlinkFunc, progName string, call RealCall) (int64, syscall.Errno) {
	normalized := pathutil.NormalizeAt(dirfd, path, true, pid, dirResolve, readlink)
	evt := ioevent.Event{Kind: ioevent.KindUnlink, SourcePID: pid, Path: normalized, IsDir: true, ProgName: progName}
	return e.TemplateA(evt, fail, false, call)
}

package engine

import (
	"syscall"

	"github.com/kalbhor/sandtrace/internal/pathutil"
	"github.com/kalbhor/sandtrace/ioevent"
	"github.com/kalbhor/sandtrace/report"
)

// errnoResolverMiss is the errno (ENOSYS) for a real-call handle that
// could not be resolved in interposing mode. The core itself always
// uses the ptrace mechanism (SPEC_FULL.md §0), so no code path in this
// package returns it.
const errnoResolverMiss = syscall.ENOSYS

// TemplateA runs the path-based read/write template (spec §4.7
// Template A): normalize already done by the caller via evt.Path,
// consult policy, forward-or-deny, attach errno, emit the report.
//
// dedupCheck lets call sites opt a specific syscall out of
// deduplication — the original BuildXL detours never dedups rmdir, and
// SPEC_FULL.md §12 carries that exception forward.
func (e *Engine) TemplateA(evt ioevent.Event, fail bool, dedupCheck bool, call RealCall) (ret int64, errno syscall.Errno) {
	d := e.decide(evt, dedupCheck)
	group := &report.Group{}

	if d.check.ShouldDenyAccess && fail {
		if r, ok := buildReport(evt, d.check, fail, d.suppressed); ok {
			group.Add(r)
		}
		group.SetErrno(int(syscall.EPERM))
		e.Channel.Send(group)
		return -1, syscall.EPERM
	}

	ret, errno = call()
	if errno != 0 {
		group.SetErrno(int(errno))
	}
	if r, ok := buildReport(evt, d.check, fail, d.suppressed); ok {
		if errno != 0 {
			r.Errno = int(errno)
		}
		group.Add(r)
	}
	e.Channel.Send(group)
	return ret, errno
}

// TemplateB runs the descriptor-based template (spec §4.7 Template B):
// identical to Template A once the caller has already resolved the
// descriptor to evt.Path via the fd cache and the normalizer.
func (e *Engine) TemplateB(evt ioevent.Event, fail bool, call RealCall) (ret int64, errno syscall.Errno) {
	return e.TemplateA(evt, fail, true, call)
}

// TwoPathResult is the pre-built pair of events for a rename/link/
// symlink style operation: the source-unlink half and the destination-
// create half.
type TwoPathResult struct {
	SourceEvent ioevent.Event
	DestEvent   ioevent.Event
}

// TemplateC runs the two-path template (spec §4.7 Template C) for a
// single-entry rename/link/symlink: it produces two reports, joining
// their policy checks with Combine before deciding whether to forward.
func (e *Engine) TemplateC(pair TwoPathResult, fail bool, call RealCall) (ret int64, errno syscall.Errno) {
	srcCheck := e.Policy.Check(pair.SourceEvent)
	dstCheck := e.Policy.Check(pair.DestEvent)
	combined := ioevent.Combine(srcCheck, dstCheck)

	group := &report.Group{}
	srcSuppressed := e.Dedup != nil && e.Dedup.IsHit(pair.SourceEvent.Kind, pair.SourceEvent.Path, pair.SourceEvent.SecondPath)
	dstSuppressed := e.Dedup != nil && e.Dedup.IsHit(pair.DestEvent.Kind, pair.DestEvent.Path, pair.DestEvent.SecondPath)

	if combined.ShouldDenyAccess && fail {
		if r, ok := buildReport(pair.SourceEvent, combined, fail, srcSuppressed); ok {
			group.Add(r)
		}
		if r, ok := buildReport(pair.DestEvent, combined, fail, dstSuppressed); ok {
			group.Add(r)
		}
		group.SetErrno(int(syscall.EPERM))
		e.Channel.Send(group)
		return -1, syscall.EPERM
	}

	ret, errno = call()
	if r, ok := buildReport(pair.SourceEvent, combined, fail, srcSuppressed); ok {
		group.Add(r)
	}
	if r, ok := buildReport(pair.DestEvent, combined, fail, dstSuppressed); ok {
		group.Add(r)
	}
	group.SetErrno(int(errno))
	e.Channel.Send(group)
	return ret, errno
}

// OpenKind computes the event kind for open/openat/creat/
// name_to_handle_at per spec §4.7's special open policy:
//   - CREATE if the path does not exist and O_CREAT or O_TRUNC is set;
//   - WRITE if the path exists and O_CREAT or O_TRUNC is set with a
//     write-access mode;
//   - OPEN otherwise.
//
// The existence check races the real call by construction (SPEC_FULL.md
// §12, carried from the original's own comment on this exact race); the
// core preserves that race rather than "fixing" it.
func OpenKind(path string, flags int) ioevent.Kind {
	exists := pathutil.Exists(path)
	hasCreat := flags&syscall.O_CREAT != 0
	hasTrunc := flags&syscall.O_TRUNC != 0
	writeMode := flags&syscall.O_WRONLY != 0 || flags&syscall.O_RDWR != 0

	if !exists && (hasCreat || hasTrunc) {
		return ioevent.KindCreate
	}
	if exists && (hasCreat || hasTrunc) && writeMode {
		return ioevent.KindWrite
	}
	return ioevent.KindOpen
}

// FirstAllowWriteCheck emits the additional synthetic report spec §4.7
// requires when the "override allowed writes by file existence" policy
// flag is set and a write is about to be allowed: a distinct report
// ahead of the main one, whose own decision never gates the real call.
func (e *Engine) FirstAllowWriteCheck(evt ioevent.Event) {
	synthetic := evt
	synthetic.Kind = ioevent.KindWrite
	check := e.Policy.Check(synthetic)
	group := &report.Group{}
	group.Add(report.Report{
		PID:             synthetic.SourcePID,
		RequestedAccess: accessFromEvent(synthetic),
		Status:          report.StatusAllowed,
		Explicit:        true,
		Kind:            synthetic.Kind,
		Path:            synthetic.Path,
		IsDir:           synthetic.IsDir,
		Prog:            synthetic.ProgName,
	})
	_ = check // decision intentionally unused: report-only probe.
	e.Channel.Send(group)
}

// NotifyFork emits the FORK report for evt, a Kind == KindFork event
// whose ChildPID identifies the newly created process. It is attributed
// to the child pid, not the parent, so that the child's first outbound
// record is always its own creation: callers must send this before the
// child can produce any other report. evt.ProgName is the child's own
// inherited program name, not the parent's.
func (e *Engine) NotifyFork(evt ioevent.Event) {
	group := &report.Group{}
	group.Add(report.Report{
		PID:    evt.ChildPID,
		Status: report.StatusAllowed,
		Kind:   ioevent.KindFork,
		Prog:   evt.ProgName,
	})
	e.Channel.Send(group)
}

// Package engine implements the access engine (spec component C7): for
// each intercepted syscall it normalizes paths, consults the dedup
// cache, asks the policy client for a decision, forwards or denies the
// real call, and emits the resulting AccessReport(s).
package engine

import (
	"syscall"

	"github.com/kalbhor/sandtrace/internal/dedup"
	"github.com/kalbhor/sandtrace/internal/pathutil"
	"github.com/kalbhor/sandtrace/ioevent"
	"github.com/kalbhor/sandtrace/policy"
	"github.com/kalbhor/sandtrace/report"
)

// RealCall is the unhooked, kernel-facing implementation of an
// intercepted syscall (spec component C1, folded here per SPEC_FULL.md
// §0 into "whatever PTRACE_CONT resumes"). Forward returns the syscall's
// return value and the errno it set; a negative return value paired
// with a nonzero errno is a failure by libc convention.
type RealCall func() (ret int64, errno syscall.Errno)

// Engine ties the policy client, dedup cache, and reporting channel
// together for one traced process. It holds no per-syscall state; every
// exported method takes what it needs and returns a fresh report.Group.
type Engine struct {
	Policy  policy.Client
	Dedup   *dedup.Cache
	Channel *report.Channel
}

// New constructs an Engine over the given collaborators.
func New(p policy.Client, d *dedup.Cache, ch *report.Channel) *Engine {
	return &Engine{Policy: p, Dedup: d, Channel: ch}
}

// decision is the outcome of consulting the dedup cache and the policy
// client for one event, before the real call runs.
type decision struct {
	check      ioevent.CheckResult
	suppressed bool
}

func (e *Engine) decide(evt ioevent.Event, dedupCheck bool) decision {
	check := e.Policy.Check(evt)
	suppressed := false
	if dedupCheck && e.Dedup != nil {
		suppressed = e.Dedup.IsHit(evt.Kind, evt.Path, evt.SecondPath)
	}
	return decision{check: check, suppressed: suppressed}
}

func accessFromEvent(evt ioevent.Event) uint32 {
	switch evt.Kind {
	case ioevent.KindWrite, ioevent.KindCreate, ioevent.KindUnlink, ioevent.KindRename,
		ioevent.KindLink, ioevent.KindSetMode, ioevent.KindSetOwner, ioevent.KindSetTime:
		return 1
	default:
		return 0
	}
}

func statusFor(check ioevent.CheckResult, fail bool) report.Status {
	switch {
	case check.ShouldDenyAccess && fail:
		return report.StatusDenied
	case !check.Allowed:
		return report.StatusReportedOnly
	default:
		return report.StatusAllowed
	}
}

// buildReport constructs the (not-yet-errno'd) report for evt given the
// policy's decision, honoring the engine's dedup suppression.
func buildReport(evt ioevent.Event, check ioevent.CheckResult, fail, suppressed bool) (report.Report, bool) {
	if suppressed && !check.ShouldDenyAccess {
		return report.Report{}, false
	}
	return report.Report{
		PID:             evt.SourcePID,
		RequestedAccess: accessFromEvent(evt),
		Status:          statusFor(check, fail),
		Explicit:        check.ShouldReport,
		Kind:            evt.Kind,
		Path:            evt.Path,
		SecondPath:      evt.SecondPath,
		IsDir:           evt.IsDir,
		Prog:            evt.ProgName,
	}, true
}

// NormalizePath is a thin seam over pathutil.NormalizeAt so call sites
// in this package (and its tests) don't need to import pathutil
// directly for the common case.
func NormalizePath(dirfd int, path string, noFollow bool, pid int, dirResolve pathutil.DirResolver, readlink pathutil.ReadlinkFunc) string {
	return pathutil.NormalizeAt(dirfd, path, noFollow, pid, dirResolve, readlink)
}

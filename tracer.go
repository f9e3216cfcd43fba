package sandtrace

import (
	"context"
	"fmt"
	"os/exec"
	"path"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kalbhor/sandtrace/engine"
	"github.com/kalbhor/sandtrace/internal/dedup"
	"github.com/kalbhor/sandtrace/internal/fdtable"
	"github.com/kalbhor/sandtrace/internal/pathutil"
	"github.com/kalbhor/sandtrace/ioevent"
	"github.com/kalbhor/sandtrace/platform/linux"
	"github.com/kalbhor/sandtrace/policy"
	"github.com/kalbhor/sandtrace/report"
)

// Tracer is the top-level sandbox handle: one Tracer owns one policy
// manifest and one reporting channel, and can drive any number of
// sequential Trace calls over that shared state (spec.md's single
// per-build-step process model; SPEC_FULL.md §0 folds the original's
// interposition mechanism into the ptrace loop in platform/linux).
type Tracer struct {
	cfg     *Config
	manifest *policy.ManifestClient
	channel *report.Channel
	engine  *engine.Engine
	dedup   *dedup.Cache

	mu     sync.Mutex
	closed bool
}

// New constructs a Tracer from cfg: it validates the configuration,
// maps the policy manifest, and opens the reporting channel. Callers
// must Close the returned Tracer once done.
func New(cfg *Config) (*Tracer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sandtrace: %w", ErrNilCommand)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	manifest, err := policy.OpenManifest(cfg.ManifestPath, ioevent.PolicyFlags{
		UnconditionalPtrace: cfg.UnconditionalPtrace,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestUnreadable, err)
	}

	// "sandtrace" here is only Channel's fallback for a report built
	// with no per-pid name on hand; every report built from a traced
	// syscall carries the actually-traced process's own basename
	// (ptraceAdapter.progBasename) instead.
	channel, err := report.NewChannel(cfg.ReportsPath, "sandtrace", cfg.logger())
	if err != nil {
		manifest.Close()
		return nil, fmt.Errorf("%w: %v", ErrChannelUnopenable, err)
	}

	dc := dedup.New()
	return &Tracer{
		cfg:      cfg,
		manifest: manifest,
		channel:  channel,
		engine:   engine.New(manifest, dc, channel),
		dedup:    dc,
	}, nil
}

// Close releases the manifest mapping and the reporting channel. It is
// safe to call more than once.
func (t *Tracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	err1 := t.channel.Close()
	err2 := t.manifest.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Trace launches cmd under the ptrace loop, streams every intercepted
// filesystem access through the policy and reporting pipeline, and
// blocks until cmd exits or ctx is cancelled. The returned Result
// carries captured output and the denials observed along the way;
// annotateStderrWithDenials is applied to Result.Stderr before return
// so a denial is visible next to the build tool's own failure message.
func (t *Tracer) Trace(ctx context.Context, cmd *exec.Cmd) (*Result, error) {
	if cmd == nil {
		return nil, ErrNilCommand
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTracerClosed
	}
	t.mu.Unlock()

	setupProcessGroup(cmd)
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Ptrace = true

	cap, err := newCapture(t.cfg.MaxOutputBytes)
	if err != nil {
		return nil, err
	}
	cmd.Stdout = cap.stdoutW
	cmd.Stderr = cap.stderrW

	adapter := newPtraceAdapter(t.engine, t.dedup)

	// ptrace requires every request for a tracee to come from the same
	// OS thread that attached to it — here, the thread that forked and
	// exec'd the child via cmd.Start(). Go's scheduler is otherwise
	// free to move a goroutine between OS threads, so the whole
	// start-and-trace sequence runs on one goroutine locked to its
	// thread for the traced process's entire lifetime, the same
	// discipline platform/linux's re-exec stub uses for its own
	// per-thread syscalls.
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := cmd.Start(); err != nil {
			done <- fmt.Errorf("sandtrace: start traced command: %w", err)
			return
		}
		cap.closeWriters()

		// The child stops at its own execve with SIGTRAP because
		// SysProcAttr.Ptrace implies PTRACE_TRACEME before exec; reap
		// that first stop before handing the PID to the syscall loop.
		var ws unix.WaitStatus
		if _, err := unix.Wait4(cmd.Process.Pid, &ws, 0, nil); err != nil {
			done <- fmt.Errorf("sandtrace: initial wait4: %w", err)
			return
		}

		tr := linux.NewTracer(adapter)
		done <- tr.Run(cmd.Process.Pid)
	}()

	// Signals are thread-agnostic, so cancellation can run on any
	// goroutine: it never needs to share a thread with the tracer.
	cancelled := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if cmd.Cancel != nil {
				_ = cmd.Cancel()
			}
		case <-cancelled:
		}
	}()

	runErr := <-done
	close(cancelled)
	if runErr != nil {
		cap.wait()
		return nil, fmt.Errorf("sandtrace: ptrace loop: %w", runErr)
	}
	cap.wait()

	exitCode := adapter.exitCode()
	duration := time.Since(start)

	denials := adapter.denials()
	result := &Result{
		ExitCode:  exitCode,
		Stdout:    cap.stdoutString(),
		Stderr:    annotateStderrWithDenials(cap.stderrString(), denials),
		Duration:  duration,
		Truncated: cap.truncated(),
		Denials:   denials,
	}
	return result, nil
}

// ptraceAdapter implements linux.Handler by decoding each traced
// syscall into an ioevent.Event and routing it through the access
// engine's templates, using fdtable per traced PID (spec component C2)
// to resolve dirfd arguments and descriptor-based operations.
type ptraceAdapter struct {
	eng   *engine.Engine
	dedup *dedup.Cache

	mu        sync.Mutex
	fdtables  map[int]*fdtable.Table
	procNames map[int]string
	denied    []Denial
	lastExit  int
}

func newPtraceAdapter(eng *engine.Engine, dc *dedup.Cache) *ptraceAdapter {
	return &ptraceAdapter{
		eng:       eng,
		dedup:     dc,
		fdtables:  make(map[int]*fdtable.Table),
		procNames: make(map[int]string),
	}
}

func (a *ptraceAdapter) fdtableFor(pid int) *fdtable.Table {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.fdtables[pid]
	if !ok {
		t = fdtable.New()
		a.fdtables[pid] = t
	}
	return t
}

func (a *ptraceAdapter) procName(pid int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.procNames[pid]; ok {
		return n
	}
	return "?"
}

func (a *ptraceAdapter) setProcName(pid int, name string) {
	a.mu.Lock()
	a.procNames[pid] = name
	a.mu.Unlock()
}

// progBasename is the <program_basename> wire field (spec.md §6/§8,
// mirroring __progname in the original's bxl_observer) for the given
// traced pid: the basename of its last-known exec'd (or inherited)
// path, never the tracer's own binary name.
func (a *ptraceAdapter) progBasename(pid int) string {
	return path.Base(a.procName(pid))
}

func (a *ptraceAdapter) recordDenial(d Denial) {
	a.mu.Lock()
	a.denied = append(a.denied, d)
	a.mu.Unlock()
}

func (a *ptraceAdapter) denials() []Denial {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Denial(nil), a.denied...)
}

func (a *ptraceAdapter) exitCode() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastExit
}

func (a *ptraceAdapter) HandleExit(pid int, ws unix.WaitStatus) {
	errno := 0
	a.mu.Lock()
	if ws.Exited() {
		a.lastExit = ws.ExitStatus()
	} else if ws.Signaled() {
		a.lastExit = 128 + int(ws.Signal())
		errno = int(syscall.EINTR)
	}
	a.mu.Unlock()
	a.eng.Channel.SendExitReport(pid, errno, a.progBasename(pid))
	a.mu.Lock()
	delete(a.fdtables, pid)
	delete(a.procNames, pid)
	a.mu.Unlock()
}

// HandleNewChild runs synchronously in the tracer loop before the
// parent's PTRACE_EVENT_FORK/VFORK/CLONE stop is resumed and before the
// new child can execute any syscall of its own, so sending the FORK
// report here guarantees it precedes every other report from childPID
// (spec's "a child's first report is its FORK record" ordering
// invariant).
func (a *ptraceAdapter) HandleNewChild(parentPID, childPID int) {
	a.setProcName(childPID, a.procName(parentPID))
	evt := ioevent.Event{Kind: ioevent.KindFork, Action: ioevent.ActionNotify, SourcePID: parentPID, ChildPID: childPID, ProgName: a.progBasename(childPID)}
	a.eng.NotifyFork(evt)
}

// dirResolverFor adapts a pid's fdtable into a pathutil.DirResolver.
func (a *ptraceAdapter) dirResolverFor() pathutil.DirResolver {
	return func(dirfd, pid int) (string, error) {
		return a.fdtableFor(pid).Get(dirfd, pid)
	}
}

func realReadlink(path string) (string, error) {
	return pathutil.RealReadlink(path)
}

// HandleSyscall decodes one traced syscall into an ioevent.Event and
// runs it through the matching Engine template. TemplateA/B/C never
// invoke RealCall on their deny path, so wrap's `called` flag lets
// enforceDeny physically deny the syscall against the tracee after the
// fact — the same substitute-and-rewrite mechanism step itself uses
// for a call the template does forward.
func (a *ptraceAdapter) HandleSyscall(evt linux.SyscallEvent, peek linux.PeekStringFunc, step linux.StepFunc) {
	pid := evt.PID
	prog := a.progBasename(pid)
	// failOnDeny gates every enforceable (ActionAuth) template call: the
	// manifest's fail-unexpected-accesses flag toggles between hard-deny
	// and report-but-forward for a should-deny access (spec.md §4.7 step
	// 5 / §7's warn-only mode). Notify-only operations (readlink, stat,
	// access, fstat, exec) never enforce regardless of this flag — their
	// own TemplateA/B calls pass fail=false unconditionally.
	failOnDeny := a.eng.Policy.Flags().FailUnexpectedAccesses
	dirResolve := a.dirResolverFor()
	readPath := func(dirfd int, addr uint64, noFollow bool) string {
		raw, err := peek(pid, addr)
		if err != nil || raw == "" {
			return ""
		}
		raw = pathutil.StripNullBytes(raw)
		return pathutil.NormalizeAt(dirfd, raw, noFollow, pid, dirResolve, realReadlink)
	}
	// rawPath returns the unnormalized argument, for call sites (Unlink's
	// empty-path/AT_FDCWD boundary check) that must see it before any
	// normalization happens.
	rawPath := func(addr uint64) string {
		raw, err := peek(pid, addr)
		if err != nil {
			return ""
		}
		return pathutil.StripNullBytes(raw)
	}

	var called bool
	wrap := func() (int64, syscall.Errno) {
		called = true
		return step(false, 0)
	}
	enforceDeny := func() {
		if !called {
			step(true, unix.EPERM)
		}
	}

	switch evt.Nr {
	case linux.SysOpen, linux.SysCreat, linux.SysOpenat:
		dirfd := pathutil.AtFDCWD
		addr := evt.Arg0
		flags := int(evt.Arg1)
		if evt.Nr == linux.SysOpenat {
			dirfd = int(int32(evt.Arg0))
			addr = evt.Arg1
			flags = int(evt.Arg2)
		} else if evt.Nr == linux.SysCreat {
			flags = syscall.O_CREAT | syscall.O_WRONLY | syscall.O_TRUNC
		}
		path := readPath(dirfd, addr, flags&syscall.O_NOFOLLOW != 0)
		kind := engine.OpenKind(path, flags)
		evtIO := ioevent.Event{Kind: kind, Action: ioevent.ActionAuth, SourcePID: pid, Path: path, ProgName: prog}
		if kind == ioevent.KindWrite && a.eng.Policy.Flags().OverrideAllowedWritesByExistence {
			a.eng.FirstAllowWriteCheck(evtIO)
		}
		ret, errno := a.eng.TemplateA(evtIO, failOnDeny, true, wrap)
		enforceDeny()
		if errno == 0 && ret >= 0 {
			a.fdtableFor(pid).Put(int(ret), path)
		}
		a.recordIfDenied(pid, evtIO, errno)

	case linux.SysUnlink, linux.SysUnlinkat, linux.SysRmdir:
		dirfd := pathutil.AtFDCWD
		addr := evt.Arg0
		isDirFlag := evt.Nr == linux.SysRmdir
		if evt.Nr == linux.SysUnlinkat {
			dirfd = int(int32(evt.Arg0))
			addr = evt.Arg1
			isDirFlag = int(evt.Arg2)&unix.AT_REMOVEDIR != 0
		}
		// rawPath, not readPath: Engine.Unlink's own empty-path/AT_FDCWD
		// boundary check (spec §8) needs the unnormalized argument, and
		// does its own normalization once past that check.
		raw := rawPath(addr)
		var errno syscall.Errno
		if isDirFlag {
			// rmdir is never deduplicated (SPEC_FULL.md §12, carried
			// from the original's own never-dedup-rmdir behavior).
			_, errno = a.eng.Rmdir(dirfd, raw, pid, failOnDeny, dirResolve, realReadlink, prog, wrap)
		} else {
			_, errno = a.eng.Unlink(dirfd, raw, pid, failOnDeny, dirResolve, realReadlink, prog, wrap)
		}
		enforceDeny()
		a.fdtableFor(pid).ClearAll()
		normalized := pathutil.NormalizeAt(dirfd, raw, true, pid, dirResolve, realReadlink)
		a.recordIfDenied(pid, ioevent.Event{Kind: ioevent.KindUnlink, Path: normalized, IsDir: isDirFlag}, errno)

	case linux.SysRename, linux.SysRenameat, linux.SysRenameat2:
		srcDirfd, dstDirfd := pathutil.AtFDCWD, pathutil.AtFDCWD
		srcAddr, dstAddr := evt.Arg0, evt.Arg1
		if evt.Nr != linux.SysRename {
			srcDirfd = int(int32(evt.Arg0))
			srcAddr = evt.Arg1
			dstDirfd = int(int32(evt.Arg2))
			dstAddr = evt.Arg3
		}
		src := readPath(srcDirfd, srcAddr, true)
		dst := readPath(dstDirfd, dstAddr, true)
		pair := engine.TwoPathResult{
			SourceEvent: ioevent.Event{Kind: ioevent.KindUnlink, Action: ioevent.ActionAuth, SourcePID: pid, Path: src, SecondPath: dst, ProgName: prog},
			DestEvent:   ioevent.Event{Kind: ioevent.KindRename, Action: ioevent.ActionAuth, SourcePID: pid, Path: dst, SecondPath: src, ProgName: prog},
		}
		_, errno := a.eng.TemplateC(pair, failOnDeny, wrap)
		enforceDeny()
		a.fdtableFor(pid).ClearAll()
		a.recordIfDeniedTwoPath(pid, ioevent.KindRename, src, dst, errno)

	case linux.SysLink, linux.SysLinkat, linux.SysSymlink, linux.SysSymlinkat:
		var srcAddr, dstAddr uint64
		srcDirfd, dstDirfd := pathutil.AtFDCWD, pathutil.AtFDCWD
		switch evt.Nr {
		case linux.SysLink:
			srcAddr, dstAddr = evt.Arg0, evt.Arg1
		case linux.SysLinkat:
			srcDirfd, srcAddr = int(int32(evt.Arg0)), evt.Arg1
			dstDirfd, dstAddr = int(int32(evt.Arg2)), evt.Arg3
		case linux.SysSymlink:
			srcAddr, dstAddr = evt.Arg0, evt.Arg1
		case linux.SysSymlinkat:
			srcAddr = evt.Arg0
			dstDirfd, dstAddr = int(int32(evt.Arg1)), evt.Arg2
		}
		src := readPath(srcDirfd, srcAddr, true)
		dst := readPath(dstDirfd, dstAddr, true)
		pair := engine.TwoPathResult{
			SourceEvent: ioevent.Event{Kind: ioevent.KindLink, Action: ioevent.ActionAuth, SourcePID: pid, Path: src, SecondPath: dst, ProgName: prog},
			DestEvent:   ioevent.Event{Kind: ioevent.KindCreate, Action: ioevent.ActionAuth, SourcePID: pid, Path: dst, SecondPath: src, ProgName: prog},
		}
		_, errno := a.eng.TemplateC(pair, failOnDeny, wrap)
		enforceDeny()
		a.recordIfDeniedTwoPath(pid, ioevent.KindLink, src, dst, errno)

	case linux.SysReadlink, linux.SysReadlinkat:
		dirfd := pathutil.AtFDCWD
		addr := evt.Arg0
		if evt.Nr == linux.SysReadlinkat {
			dirfd = int(int32(evt.Arg0))
			addr = evt.Arg1
		}
		path := readPath(dirfd, addr, true)
		evtIO := ioevent.Event{Kind: ioevent.KindReadlink, Action: ioevent.ActionNotify, SourcePID: pid, Path: path, ProgName: prog}
		_, errno := a.eng.TemplateA(evtIO, false, true, wrap)
		enforceDeny()
		a.recordIfDenied(pid, evtIO, errno)

	case linux.SysMkdir, linux.SysMkdirat:
		dirfd := pathutil.AtFDCWD
		addr := evt.Arg0
		if evt.Nr == linux.SysMkdirat {
			dirfd = int(int32(evt.Arg0))
			addr = evt.Arg1
		}
		path := readPath(dirfd, addr, true)
		evtIO := ioevent.Event{Kind: ioevent.KindCreate, Action: ioevent.ActionAuth, SourcePID: pid, Path: path, IsDir: true, ProgName: prog}
		_, errno := a.eng.TemplateA(evtIO, failOnDeny, true, wrap)
		enforceDeny()
		a.recordIfDenied(pid, evtIO, errno)

	case linux.SysStat, linux.SysLstat, linux.SysAccess, linux.SysFaccessat, linux.SysFaccessat2:
		dirfd := pathutil.AtFDCWD
		addr := evt.Arg0
		if evt.Nr == linux.SysFaccessat || evt.Nr == linux.SysFaccessat2 {
			dirfd = int(int32(evt.Arg0))
			addr = evt.Arg1
		}
		path := readPath(dirfd, addr, evt.Nr == linux.SysLstat)
		kind := ioevent.KindStat
		if evt.Nr == linux.SysAccess || evt.Nr == linux.SysFaccessat || evt.Nr == linux.SysFaccessat2 {
			kind = ioevent.KindAccess
		}
		evtIO := ioevent.Event{Kind: kind, Action: ioevent.ActionNotify, SourcePID: pid, Path: path, ProgName: prog}
		_, errno := a.eng.TemplateA(evtIO, false, true, wrap)
		enforceDeny()
		a.recordIfDenied(pid, evtIO, errno)

	case linux.SysFstat:
		path, _ := a.fdtableFor(pid).Get(int(evt.Arg0), pid)
		evtIO := ioevent.Event{Kind: ioevent.KindStat, Action: ioevent.ActionNotify, SourcePID: pid, Path: path, ProgName: prog}
		_, errno := a.eng.TemplateB(evtIO, false, wrap)
		enforceDeny()
		a.recordIfDenied(pid, evtIO, errno)

	case linux.SysChmod, linux.SysFchmod, linux.SysFchmodat:
		dirfd := pathutil.AtFDCWD
		addr := evt.Arg0
		mode := uint32(evt.Arg1)
		if evt.Nr == linux.SysFchmod {
			path, _ := a.fdtableFor(pid).Get(int(evt.Arg0), pid)
			evtIO := ioevent.Event{Kind: ioevent.KindSetMode, Action: ioevent.ActionAuth, SourcePID: pid, Path: path, Mode: mode, ProgName: prog}
			_, errno := a.eng.TemplateB(evtIO, failOnDeny, wrap)
			enforceDeny()
			a.recordIfDenied(pid, evtIO, errno)
			break
		}
		if evt.Nr == linux.SysFchmodat {
			dirfd = int(int32(evt.Arg0))
			addr = evt.Arg1
			mode = uint32(evt.Arg2)
		}
		path := readPath(dirfd, addr, true)
		evtIO := ioevent.Event{Kind: ioevent.KindSetMode, Action: ioevent.ActionAuth, SourcePID: pid, Path: path, Mode: mode, ProgName: prog}
		_, errno := a.eng.TemplateA(evtIO, failOnDeny, true, wrap)
		enforceDeny()
		a.recordIfDenied(pid, evtIO, errno)

	case linux.SysChown, linux.SysLchown, linux.SysFchown, linux.SysFchownat:
		dirfd := pathutil.AtFDCWD
		addr := evt.Arg0
		noFollow := evt.Nr == linux.SysLchown
		if evt.Nr == linux.SysFchown {
			path, _ := a.fdtableFor(pid).Get(int(evt.Arg0), pid)
			evtIO := ioevent.Event{Kind: ioevent.KindSetOwner, Action: ioevent.ActionAuth, SourcePID: pid, Path: path, ProgName: prog}
			_, errno := a.eng.TemplateB(evtIO, failOnDeny, wrap)
			enforceDeny()
			a.recordIfDenied(pid, evtIO, errno)
			break
		}
		if evt.Nr == linux.SysFchownat {
			dirfd = int(int32(evt.Arg0))
			addr = evt.Arg1
			noFollow = int(evt.Arg4)&unix.AT_SYMLINK_NOFOLLOW != 0
		}
		path := readPath(dirfd, addr, noFollow)
		evtIO := ioevent.Event{Kind: ioevent.KindSetOwner, Action: ioevent.ActionAuth, SourcePID: pid, Path: path, NoFollow: noFollow, ProgName: prog}
		_, errno := a.eng.TemplateA(evtIO, failOnDeny, true, wrap)
		enforceDeny()
		a.recordIfDenied(pid, evtIO, errno)

	case linux.SysUtime, linux.SysUtimensat:
		dirfd := pathutil.AtFDCWD
		addr := evt.Arg0
		if evt.Nr == linux.SysUtimensat {
			dirfd = int(int32(evt.Arg0))
			addr = evt.Arg1
		}
		path := readPath(dirfd, addr, true)
		evtIO := ioevent.Event{Kind: ioevent.KindSetTime, Action: ioevent.ActionAuth, SourcePID: pid, Path: path, ProgName: prog}
		_, errno := a.eng.TemplateA(evtIO, failOnDeny, true, wrap)
		enforceDeny()
		a.recordIfDenied(pid, evtIO, errno)

	case linux.SysExecve, linux.SysExecveat:
		dirfd := pathutil.AtFDCWD
		addr := evt.Arg0
		if evt.Nr == linux.SysExecveat {
			dirfd = int(int32(evt.Arg0))
			addr = evt.Arg1
		}
		path := readPath(dirfd, addr, false)
		a.setProcName(pid, path)
		evtIO := ioevent.Event{Kind: ioevent.KindExec, Action: ioevent.ActionNotify, SourcePID: pid, Path: path, ExecPath: path, ProgName: a.progBasename(pid)}
		_, errno := a.eng.TemplateA(evtIO, false, false, wrap)
		enforceDeny()
		a.fdtableFor(pid).ClearAll()
		a.recordIfDenied(pid, evtIO, errno)

	case linux.SysFork, linux.SysVfork, linux.SysClone:
		// The real fork/clone happens via step; HandleNewChild (driven
		// by the loop's own PTRACE_EVENT_FORK/VFORK/CLONE stop) emits
		// the FORK report once the child's PID is known, so here we
		// only need to let the call proceed.
		_, _ = wrap()

	case linux.SysClose:
		fd := int(evt.Arg0)
		ret, errno := wrap()
		if errno == 0 && ret == 0 {
			a.fdtableFor(pid).Clear(fd)
		}

	case linux.SysDup:
		oldfd := int(evt.Arg0)
		ret, errno := wrap()
		if errno == 0 && ret >= 0 {
			t := a.fdtableFor(pid)
			if p, err := t.Get(oldfd, pid); err == nil {
				t.Put(int(ret), p)
			}
		}

	case linux.SysDup2, linux.SysDup3:
		oldfd := int(evt.Arg0)
		newfd := int(evt.Arg1)
		ret, errno := wrap()
		if errno == 0 && ret >= 0 {
			t := a.fdtableFor(pid)
			if p, err := t.Get(oldfd, pid); err == nil {
				t.Put(newfd, p)
			} else {
				t.Clear(newfd)
			}
		}

	case linux.SysExitSyscall, linux.SysExitGroup:
		_, _ = wrap()

	default:
		_, _ = wrap()
	}
}

func (a *ptraceAdapter) recordIfDenied(pid int, evt ioevent.Event, errno syscall.Errno) {
	if errno != syscall.EPERM {
		return
	}
	a.recordDenial(Denial{
		Kind:    evt.Kind,
		Path:    evt.Path,
		Process: a.procName(pid),
		PID:     pid,
	})
}

func (a *ptraceAdapter) recordIfDeniedTwoPath(pid int, kind ioevent.Kind, src, dst string, errno syscall.Errno) {
	if errno != syscall.EPERM {
		return
	}
	a.recordDenial(Denial{
		Kind:       kind,
		Path:       src,
		SecondPath: dst,
		Process:    a.procName(pid),
		PID:        pid,
	})
}

//go:build linux

// Package linux's tracer.go implements the amd64 PTRACE_SYSCALL loop
// that is this core's single interception mechanism (SPEC_FULL.md §0,
// folding the original spec's C1 real-call resolver and C9 static-
// binary fallback into one path: every traced binary, static or
// dynamic, goes through PTRACE_SYSCALL rather than an LD_PRELOAD
// shim). This file only decodes registers and steps syscalls; it knows
// nothing about policy, paths, or reports — that lives in the engine
// package and in the root Tracer that wires the two together.
package linux

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Syscall numbers this loop inspects, amd64. Everything else is let
// through untouched: PTRACE_SYSCALL stops on every syscall boundary,
// but only this subset touches the filesystem or the process tree.
const (
	SysOpen         = 2
	SysClose        = 3
	SysStat         = 4
	SysFstat        = 5
	SysLstat        = 6
	SysAccess       = 21
	SysDup          = 32
	SysDup2         = 33
	SysFork         = 57
	SysVfork        = 58
	SysExecve       = 59
	SysExitSyscall  = 60
	SysRename       = 82
	SysMkdir        = 83
	SysRmdir        = 84
	SysCreat        = 85
	SysLink         = 86
	SysUnlink       = 87
	SysSymlink      = 88
	SysReadlink     = 89
	SysChmod        = 90
	SysFchmod       = 91
	SysChown        = 92
	SysFchown       = 93
	SysLchown       = 94
	SysClone        = 56
	SysUtime        = 132
	SysOpenat       = 257
	SysMkdirat      = 258
	SysFchownat     = 260
	SysUnlinkat     = 263
	SysRenameat     = 264
	SysLinkat       = 265
	SysSymlinkat    = 266
	SysReadlinkat   = 267
	SysFchmodat     = 268
	SysFaccessat    = 269
	SysUtimensat    = 280
	SysRenameat2    = 316
	SysExecveat     = 322
	SysExitGroup    = 231
	SysFaccessat2   = 439
	SysDup3         = 292
)

// tracedSyscalls lists every syscall number the loop hands to Handler
// rather than letting it run straight through.
var tracedSyscalls = map[uint64]bool{
	SysOpen: true, SysCreat: true, SysOpenat: true,
	SysUnlink: true, SysUnlinkat: true, SysRmdir: true,
	SysRename: true, SysRenameat: true, SysRenameat2: true,
	SysLink: true, SysLinkat: true, SysSymlink: true, SysSymlinkat: true,
	SysReadlink: true, SysReadlinkat: true,
	SysMkdir: true, SysMkdirat: true,
	SysStat: true, SysLstat: true, SysFstat: true, SysAccess: true,
	SysFaccessat: true, SysFaccessat2: true,
	SysChmod: true, SysFchmod: true, SysFchmodat: true,
	SysChown: true, SysFchown: true, SysLchown: true, SysFchownat: true,
	SysUtime: true, SysUtimensat: true,
	SysExecve: true, SysExecveat: true,
	SysFork: true, SysVfork: true, SysClone: true,
	SysExitSyscall: true, SysExitGroup: true,
	SysClose: true, SysDup: true, SysDup2: true, SysDup3: true,
}

// SyscallEvent is everything Handler needs to classify one traced
// syscall-entry stop. A string argument is not pre-read — most of the
// traced syscalls have at most two path arguments, so PeekString is
// handed to the callback instead of eagerly decoding every register.
type SyscallEvent struct {
	PID                            int
	Nr                             uint64
	Arg0, Arg1, Arg2, Arg3, Arg4   uint64
}

// PeekStringFunc reads a NUL-terminated string out of the tracee's
// address space starting at addr.
type PeekStringFunc func(pid int, addr uint64) (string, error)

// StepFunc resumes the tracee through the real kernel execution of the
// syscall it is currently stopped at entry for, blocks until the
// matching syscall-exit stop, and returns the observed return value
// and errno — exactly engine.RealCall's contract. When deny is true the
// real syscall never runs: the loop substitutes getpid() at entry and
// rewrites the return register to -denyErrno at exit, so the tracee
// observes a denial without the kernel doing any real work.
type StepFunc func(deny bool, denyErrno unix.Errno) (ret int64, errno syscall.Errno)

// Handler is the seam between this package's register-level mechanics
// and the access-engine's policy-driven semantics.
type Handler interface {
	// HandleSyscall is called once per syscall-entry stop for every
	// syscall number in tracedSyscalls. The implementation normally
	// decodes evt's path argument(s) via peek, consults the policy,
	// and invokes step exactly once to forward-or-deny the call.
	HandleSyscall(evt SyscallEvent, peek PeekStringFunc, step StepFunc)
	// HandleExit is called once per traced PID's exit, after reaping.
	HandleExit(pid int, ws unix.WaitStatus)
	// HandleNewChild is called when the loop observes a
	// PTRACE_EVENT_(FORK|VFORK|CLONE) stop, before the child is
	// resumed; childPID is already attached (the kernel auto-attaches
	// a PTRACE_O_TRACECLONE child to the same tracer).
	HandleNewChild(parentPID, childPID int)
}

// maxPeekString bounds a single PeekString read so a corrupt or
// adversarial pointer cannot turn into an unbounded PEEKDATA loop.
const maxPeekString = 4096

// peekString reads addr's NUL-terminated string via PTRACE_PEEKDATA, a
// word at a time. x/sys/unix carries no process_vm_readv wrapper that
// every targeted kernel is guaranteed to have, so PEEKDATA — slower but
// universal — is the classic-strace fallback used here too.
func peekString(pid int, addr uint64) (string, error) {
	if addr == 0 {
		return "", nil
	}
	var out []byte
	word := make([]byte, 8)
	for len(out) < maxPeekString {
		n, err := unix.PtracePeekData(pid, uintptr(addr)+uintptr(len(out)), word)
		if err != nil {
			return "", fmt.Errorf("linux: ptrace peekdata pid %d addr %#x: %w", pid, addr, err)
		}
		if n == 0 {
			break
		}
		for i := 0; i < n; i++ {
			if word[i] == 0 {
				return string(out), nil
			}
			out = append(out, word[i])
		}
	}
	return string(out), nil
}

// ptraceSetOptions is applied to every tracee this loop attaches to:
// auto-trace clones/forks/vforks so descendants are caught without a
// race, and kill the tracee if the tracer dies so nothing ever runs
// unsupervised outside the sandbox.
const ptraceSetOptions = unix.PTRACE_O_TRACESYSGOOD |
	unix.PTRACE_O_TRACECLONE |
	unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACEEXEC |
	unix.PTRACE_O_EXITKILL

// Tracer drives the PTRACE_SYSCALL loop for one root tracee and every
// descendant the kernel hands it. It holds no policy state; every
// decision is delegated to a Handler.
type Tracer struct {
	handler Handler
	// awaitingExit marks a PID whose current stop is the matching
	// exit-stop of a syscall the loop chose not to hand to Handler.
	// Handled syscalls never set this: Step consumes their exit-stop
	// itself via a pid-targeted Wait4 before this loop's next turn.
	awaitingExit map[int]bool
	// reaped marks a PID that step() already reaped via its own
	// pid-targeted Wait4 (the tracee ran to exit_group, or died mid
	// syscall) before Run's own Wait4(-1, ...) could observe it.
	// handleSyscallStop drains this so Run can retire the PID from
	// live without waiting for an exit event that already happened.
	reaped map[int]bool
}

// NewTracer returns a Tracer that dispatches to handler.
func NewTracer(handler Handler) *Tracer {
	return &Tracer{
		handler:      handler,
		awaitingExit: make(map[int]bool),
		reaped:       make(map[int]bool),
	}
}

// Run blocks until rootPID and every descendant it spawns have exited.
// rootPID must already be stopped at its own execve — the state a
// process started with SysProcAttr.Ptrace = true is in once Wait4'd
// once by the caller.
func (t *Tracer) Run(rootPID int) error {
	if err := unix.PtraceSetOptions(rootPID, ptraceSetOptions); err != nil {
		return fmt.Errorf("linux: ptrace setoptions pid %d: %w", rootPID, err)
	}
	if err := unix.PtraceSyscall(rootPID, 0); err != nil {
		return fmt.Errorf("linux: ptrace syscall pid %d: %w", rootPID, err)
	}

	live := map[int]bool{rootPID: true}
	for len(live) > 0 {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, 0, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("linux: wait4: %w", err)
		}

		if ws.Exited() || ws.Signaled() {
			t.handler.HandleExit(pid, ws)
			delete(live, pid)
			delete(t.awaitingExit, pid)
			continue
		}
		if !ws.Stopped() {
			continue
		}

		sig := ws.StopSignal()
		switch {
		case sig == unix.SIGTRAP|0x80:
			t.handleSyscallStop(pid)
			if t.reaped[pid] {
				delete(t.reaped, pid)
				delete(live, pid)
			}
		case ws.TrapCause() == unix.PTRACE_EVENT_CLONE,
			ws.TrapCause() == unix.PTRACE_EVENT_FORK,
			ws.TrapCause() == unix.PTRACE_EVENT_VFORK:
			if childPID, err := unix.PtraceGetEventMsg(pid); err == nil {
				live[int(childPID)] = true
				t.handler.HandleNewChild(pid, int(childPID))
			}
			_ = unix.PtraceSyscall(pid, 0)
		default:
			// Any other stop (PTRACE_EVENT_EXEC, or a genuine signal)
			// is forwarded unchanged rather than swallowed.
			forward := 0
			if ws.TrapCause() == 0 && sig != unix.SIGTRAP {
				forward = int(sig)
			}
			_ = unix.PtraceSyscall(pid, forward)
		}
	}
	return nil
}

func (t *Tracer) handleSyscallStop(pid int) {
	if t.awaitingExit[pid] {
		// Matching exit-stop of a syscall we declined to handle.
		t.awaitingExit[pid] = false
		_ = unix.PtraceSyscall(pid, 0)
		return
	}

	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		_ = unix.PtraceSyscall(pid, 0)
		return
	}

	nr := regs.Orig_rax
	if !tracedSyscalls[nr] {
		t.awaitingExit[pid] = true
		_ = unix.PtraceSyscall(pid, 0)
		return
	}

	evt := SyscallEvent{
		PID: pid, Nr: nr,
		Arg0: regs.Rdi, Arg1: regs.Rsi, Arg2: regs.Rdx, Arg3: regs.R10, Arg4: regs.R8,
	}
	step := func(deny bool, denyErrno unix.Errno) (int64, syscall.Errno) {
		return t.step(pid, deny, denyErrno)
	}
	t.handler.HandleSyscall(evt, peekString, step)

	if t.reaped[pid] {
		// pid ran to exit (or died) inside step's own Wait4; there is
		// no process left to resume.
		return
	}

	// Step already walked pid through its own syscall-exit; one more
	// resume moves it to its next entry-stop, which this loop will see
	// as a fresh, untoggled call to handleSyscallStop.
	_ = unix.PtraceSyscall(pid, 0)
}

// step implements StepFunc for one already-entered syscall on pid. It
// must be called at most once per entry-stop.
func (t *Tracer) step(pid int, deny bool, denyErrno unix.Errno) (int64, syscall.Errno) {
	if deny {
		var regs unix.PtraceRegs
		if err := unix.PtraceGetRegs(pid, &regs); err == nil {
			regs.Orig_rax = unix.SYS_GETPID
			_ = unix.PtraceSetRegs(pid, &regs)
		}
	}

	if err := unix.PtraceSyscall(pid, 0); err != nil {
		return -1, syscall.ESRCH
	}

	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return -1, syscall.ESRCH
	}
	if ws.Exited() || ws.Signaled() {
		// The tracee ran to exit_group/exit or died mid-syscall (e.g.
		// killed by a signal). The outer Run loop will not see this
		// PID's exit event again via its own Wait4(-1, ...) — report
		// it to the handler directly so bookkeeping still happens,
		// mark it reaped so handleSyscallStop/Run retire it from
		// live, then surface a synthetic failure to the caller.
		t.handler.HandleExit(pid, ws)
		delete(t.awaitingExit, pid)
		t.reaped[pid] = true
		return -1, syscall.ESRCH
	}

	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return -1, syscall.ESRCH
	}

	if deny {
		errno := denyErrno
		if errno == 0 {
			errno = unix.EPERM
		}
		regs.Rax = uint64(-int64(errno))
		_ = unix.PtraceSetRegs(pid, &regs)
		return -1, syscall.Errno(errno)
	}

	ret := int64(regs.Rax)
	var errno syscall.Errno
	if ret < 0 {
		errno = syscall.Errno(-ret)
	}
	return ret, errno
}

//go:build linux

package linux

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"syscall"
)

// traceeInitEnvKey is the environment variable that signals the current
// process is the re-exec defense-in-depth stub rather than the real
// target. Its value is the file descriptor number of the pipe carrying
// the serialized DefenseConfig. The tracer sets cmd.SysProcAttr.Ptrace,
// so PTRACE_TRACEME already happened by the time this code runs — this
// stub only layers Landlock/seccomp/rlimits on top before handing off
// to the real target via exec.
const traceeInitEnvKey = "_SANDTRACE_TRACEE_INIT"

// Function variables for dependency injection in tests.
var (
	hardenProcessFn    = hardenProcess
	applyLandlockFn    = applyLandlock
	applyResourceLimFn = applyResourceLimits
	applySeccompFn     = ApplySeccomp
	syscallExecFn      = syscall.Exec
	osExitFn           = os.Exit
)

// traceeInitConfig is the configuration passed to the re-exec tracee-init
// stub via a pipe.
type traceeInitConfig struct {
	WritableRoots  []string        `json:"writable_roots,omitempty"`
	DenyWrite      []string        `json:"deny_write,omitempty"`
	DenyRead       []string        `json:"deny_read,omitempty"`
	ResourceLimits *ResourceLimits `json:"resource_limits,omitempty"`
}

// MaybeTraceeInit checks if the current process was launched in re-exec
// tracee-init mode. If so, it applies the defense-in-depth configuration
// and execs the real target — it never returns in that case. If not in
// re-exec mode, it returns false and the caller continues normally.
func MaybeTraceeInit() bool {
	fdStr := os.Getenv(traceeInitEnvKey)
	if fdStr == "" {
		return false
	}

	code := traceeInit(fdStr)
	osExitFn(code)
	return true // unreachable, but satisfies the compiler
}

// traceeInit is the entry point for the re-exec tracee-init helper. It
// reads the configuration from the given file descriptor, applies the
// best-effort defense-in-depth layer, and then execs the real command.
func traceeInit(fdStr string) int {
	// Lock the OS thread because seccomp, landlock_restrict_self, and
	// prctl are per-thread operations. This is the re-exec child, so we
	// lock and never unlock — the process will exec or exit.
	runtime.LockOSThread()

	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandtrace: invalid tracee-init fd %q: %v\n", fdStr, err)
		return 1
	}

	configFile := os.NewFile(uintptr(fd), "tracee-init-config")
	if configFile == nil {
		fmt.Fprintf(os.Stderr, "sandtrace: cannot open tracee-init fd %d\n", fd)
		return 1
	}
	defer func() { _ = configFile.Close() }()

	var cfg traceeInitConfig
	if err := json.NewDecoder(configFile).Decode(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "sandtrace: decode tracee-init config: %v\n", err)
		return 1
	}

	if err := hardenProcessFn(); err != nil {
		fmt.Fprintf(os.Stderr, "sandtrace: harden: %v\n", err)
		return 1
	}

	defenseCfg := &DefenseConfig{
		WritableRoots: cfg.WritableRoots,
		DenyWrite:     cfg.DenyWrite,
		DenyRead:      cfg.DenyRead,
	}
	// Landlock failure here is not fatal: it is a second enforcement
	// layer on top of the ptrace engine, which remains authoritative.
	// A kernel without Landlock support must not block the build.
	if err := applyLandlockFn(defenseCfg); err != nil {
		fmt.Fprintf(os.Stderr, "sandtrace: landlock (best-effort, continuing): %v\n", err)
	}

	if cfg.ResourceLimits != nil {
		if err := applyResourceLimFn(cfg.ResourceLimits); err != nil {
			fmt.Fprintf(os.Stderr, "sandtrace: resource limits: %v\n", err)
			return 1
		}
	}

	if err := applySeccompFn(); err != nil {
		fmt.Fprintf(os.Stderr, "sandtrace: seccomp: %v\n", err)
		return 1
	}

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "sandtrace: no command to exec\n")
		return 1
	}

	_ = os.Unsetenv(traceeInitEnvKey)

	if err := syscallExecFn(args[0], args, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "sandtrace: exec %s: %v\n", args[0], err)
		return 1
	}

	return 0 // unreachable
}

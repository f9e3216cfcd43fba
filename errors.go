package sandtrace

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the sandtrace package.
var (
	// ErrUnsupportedPlatform indicates the current OS/architecture has
	// no tracer implementation.
	ErrUnsupportedPlatform = errors.New("sandtrace: unsupported platform")

	// ErrMissingEnv indicates a required environment variable was
	// unset at init — a fatal init error per spec §7.
	ErrMissingEnv = errors.New("sandtrace: required environment variable missing")

	// ErrManifestUnreadable indicates the policy manifest could not be
	// opened or mapped.
	ErrManifestUnreadable = errors.New("sandtrace: policy manifest unreadable")

	// ErrChannelUnopenable indicates the reporting channel could not be
	// opened.
	ErrChannelUnopenable = errors.New("sandtrace: reporting channel unopenable")

	// ErrTracerClosed indicates the tracer has already been closed.
	ErrTracerClosed = errors.New("sandtrace: tracer already closed")

	// ErrConfigInvalid indicates the assembled configuration failed
	// validation.
	ErrConfigInvalid = errors.New("sandtrace: invalid configuration")

	// ErrNilCommand indicates a nil *exec.Cmd was passed to Trace. New
	// also returns it, wrapped, when given a nil *Config.
	ErrNilCommand = errors.New("sandtrace: cmd must not be nil")

	// ErrArityExceeded indicates a variadic execl* argument list
	// exceeded the bounded arity cap (spec §9). Declared for interface
	// parity with that requirement; no call site in this core can ever
	// return it, because the ptrace mechanism never sees a libc execl*
	// call at all — by the time ptrace observes anything, glibc's own
	// execl() has already materialized its variadic arguments into a
	// single argv array and issued the real execve(2) syscall (the
	// tracer's SysExecve/SysExecveat case). Materializing and bounding
	// the variadic list was always libc's job, not an interposing
	// shim's; see DESIGN.md's Open Question decisions for the full
	// reasoning (same architectural fold as C1/C9).
	ErrArityExceeded = errors.New("sandtrace: execl* argument list exceeds arity cap")
)

// FatalInitError wraps ErrMissingEnv (or another fatal-init cause) with
// the diagnostic spec §6 requires: a full environment dump, since the
// process is about to abort with status 1.
type FatalInitError struct {
	Var string
	Env []string
}

func (e *FatalInitError) Error() string {
	return fmt.Sprintf("%s: %s (environment: %v)", ErrMissingEnv.Error(), e.Var, e.Env)
}

func (e *FatalInitError) Unwrap() error {
	return ErrMissingEnv
}

// ConfigError wraps ErrConfigInvalid with a specific field and reason.
// Config.Validate does not return it; Validate wraps ErrConfigInvalid
// directly with every rejected field joined into one message.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfigInvalid.Error(), e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfigInvalid
}

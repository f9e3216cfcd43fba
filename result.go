package sandtrace

import (
	"time"

	"github.com/kalbhor/sandtrace/ioevent"
)

// Result holds the outcome of a traced command execution.
type Result struct {
	// ExitCode is the process exit code. 0 typically indicates success.
	ExitCode int

	// Stdout contains the captured standard output of the process.
	Stdout string

	// Stderr contains the captured standard error of the process.
	Stderr string

	// Duration is the wall-clock time the process took to execute.
	Duration time.Duration

	// Truncated indicates whether the captured output was truncated due
	// to size limits.
	Truncated bool

	// Denials lists every access the policy denied during the run, in
	// the order the tracer observed them.
	Denials []Denial
}

// Denial is a single denied access surfaced to the caller of Trace, a
// convenience projection of the report.Report records the tracer sent
// down the reporting channel.
type Denial struct {
	// Kind is the filesystem operation that was denied.
	Kind ioevent.Kind

	// Path is the normalized path the denied operation targeted.
	Path string

	// SecondPath is the destination path for two-path operations
	// (rename, link), empty otherwise.
	SecondPath string

	// Process is the basename of the traced program that attempted the
	// access.
	Process string

	// PID is the process ID that attempted the access.
	PID int

	// Raw is the wire-format report line this denial was derived from.
	Raw string
}

// Package ioevent defines the neutral, pre-policy description of a
// filesystem access observed by the tracer, and the policy's decision
// type for that access.
package ioevent

// Kind identifies the category of filesystem event being reported.
type Kind int

const (
	KindOpen Kind = iota
	KindWrite
	KindCreate
	KindUnlink
	KindRename
	KindLink
	KindReadlink
	KindReaddir
	KindStat
	KindSetMode
	KindSetOwner
	KindSetTime
	KindAccess
	KindExec
	KindFork
	KindExit
)

// String returns the wire-stable name for the kind, used only for
// debug logging; the wire format itself carries the integer value.
func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "OPEN"
	case KindWrite:
		return "WRITE"
	case KindCreate:
		return "CREATE"
	case KindUnlink:
		return "UNLINK"
	case KindRename:
		return "RENAME"
	case KindLink:
		return "LINK"
	case KindReadlink:
		return "READLINK"
	case KindReaddir:
		return "READDIR"
	case KindStat:
		return "STAT"
	case KindSetMode:
		return "SETMODE"
	case KindSetOwner:
		return "SETOWNER"
	case KindSetTime:
		return "SETTIME"
	case KindAccess:
		return "ACCESS"
	case KindExec:
		return "EXEC"
	case KindFork:
		return "FORK"
	case KindExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// Action distinguishes an event that merely informs the policy
// (Notify) from one the policy must authorize before the real call
// proceeds (Auth).
type Action int

const (
	ActionNotify Action = iota
	ActionAuth
)

// Event is the neutral description of one filesystem or process-lineage
// access, built by the engine before the policy is consulted.
type Event struct {
	Kind Kind
	Action Action

	SourcePID int
	ChildPID  int // only meaningful for Kind == KindFork

	// ProgName is the traced process's own basename (its __progname
	// equivalent), attached by the caller that knows the pid→name
	// mapping so it can ride along into the resulting report without
	// the reporting layer needing to track per-pid state itself.
	ProgName string

	Path       string
	ExecPath   string // argv[0]-resolved executable path, exec events only
	SecondPath string // destination path for rename/link/symlink

	Mode uint32

	// NoFollow mirrors the caller's AT_SYMLINK_NOFOLLOW hint; it governs
	// whether the path normalizer resolves the final path component.
	NoFollow bool

	IsDir bool
}

// ReportLevel indicates how strongly the policy wants an access surfaced,
// independent of whether it is allowed.
type ReportLevel int

const (
	ReportNone ReportLevel = iota
	ReportInfo
	ReportWarning
)

// CheckResult is the policy's decision for one Event.
type CheckResult struct {
	Allowed         bool
	ShouldDenyAccess bool
	ShouldReport    bool
	ReportLevel     ReportLevel
}

// Combine joins two decisions pertaining to the same intercepted syscall
// (e.g. the unlink-half and create-half of a rename). The combined
// result takes the stronger denial and the louder report level; it is
// associative and commutative, so callers may fold any number of
// results in any order.
func Combine(a, b CheckResult) CheckResult {
	out := CheckResult{
		Allowed:          a.Allowed && b.Allowed && !a.ShouldDenyAccess && !b.ShouldDenyAccess,
		ShouldDenyAccess: a.ShouldDenyAccess || b.ShouldDenyAccess,
		ShouldReport:     a.ShouldReport || b.ShouldReport,
		ReportLevel:      a.ReportLevel,
	}
	if b.ReportLevel > out.ReportLevel {
		out.ReportLevel = b.ReportLevel
	}
	return out
}

// PolicyFlags are process-wide behavior switches carried by the manifest,
// read once at policy-client construction.
type PolicyFlags struct {
	MonitorChildProcesses        bool
	FailUnexpectedAccesses       bool
	EnablePtrace                 bool
	UnconditionalPtrace          bool
	AllowChildrenToBreakAway     bool
	OverrideAllowedWritesByExistence bool
}

// Package report defines the AccessReport wire type, the per-syscall
// AccessReportGroup builder, and the Channel that ships reports to the
// controlling build engine.
package report

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/kalbhor/sandtrace/ioevent"
)

// Status is the outcome recorded for an observed access.
type Status int

const (
	StatusAllowed Status = iota
	StatusDenied
	StatusReportedOnly
)

// Report is an immutable record of one observed access once a decision
// has been made. Its field order matches the wire format in
// Channel.Send.
type Report struct {
	PID             int
	RequestedAccess uint32
	Status          Status
	Explicit        bool
	Errno           int
	Kind            ioevent.Kind
	Path            string
	SecondPath      string
	IsDir           bool
	// Prog is the traced process's basename for this specific report.
	// Empty falls back to the Channel's construction-time progName
	// (spec.md §6/§8's <program_basename> wire field must name the
	// process that was actually traced, not a fixed binary name).
	Prog string
}

// Group is the mutable, per-syscall collection of one or two Reports
// plus the final errno returned to the guest. It is created fresh for
// every intercepted syscall and discarded once handed to a Channel.
type Group struct {
	Reports []Report
	Errno   int
}

// Add appends a report to the group.
func (g *Group) Add(r Report) {
	g.Reports = append(g.Reports, r)
}

// SetErrno sets the group's final errno and overwrites the Errno of
// every report in the group with it. Call after the real syscall (or
// the synthesized denial) has run.
func (g *Group) SetErrno(errno int) {
	g.Errno = errno
	for i := range g.Reports {
		g.Reports[i].Errno = errno
	}
}

// Channel frames Reports as newline-delimited '|'-joined records and
// writes them to a single named pipe or file opened once at tracer
// init. Writes rely on the kernel's PIPE_BUF atomicity guarantee; the
// channel adds no locking of its own beyond serializing writes to the
// underlying writer against concurrent Send calls from different
// goroutines.
type Channel struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	// progName is the fallback basename used only for a Report that
	// arrives with Prog unset (the rare caller with no per-pid name on
	// hand); every report built from a traced syscall carries its own.
	progName string
	logger   *slog.Logger
}

// NewChannel opens path for writing (create if absent, append-equivalent
// semantics) and returns a Channel bound to the given program basename,
// used as the first wire field of any record whose Report.Prog is empty.
func NewChannel(path, progName string, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("report: open channel %q: %w", path, err)
	}
	return &Channel{w: f, closer: f, progName: progName, logger: logger}, nil
}

// NewChannelWriter wraps an already-open writer (used by tests and by
// the in-process stub that doesn't want a real file on disk).
func NewChannelWriter(w io.Writer, progName string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{w: w, progName: progName, logger: logger}
	if cl, ok := w.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

// Send writes every report in the group as one line each. A short or
// failed write is a transport failure: logged at debug level and never
// propagated to the guest process per the error taxonomy.
func (c *Channel) Send(g *Group) {
	for i := range g.Reports {
		c.sendOne(&g.Reports[i])
	}
}

// SendExitReport emits a single synthetic EXIT report using only
// immutable fields of the caller; it must not acquire any lock shared
// with fdtable/dedup teardown and must not allocate beyond the fixed
// line it formats. prog is the exiting process's own basename, known
// only to the caller (it must read it before tearing down its own
// pid→name state).
func (c *Channel) SendExitReport(pid int, errno int, prog string) {
	c.sendOne(&Report{
		PID:    pid,
		Status: StatusAllowed,
		Errno:  errno,
		Kind:   ioevent.KindExit,
		Prog:   prog,
	})
}

func (c *Channel) sendOne(r *Report) {
	prog := r.Prog
	if prog == "" {
		prog = c.progName
	}
	line := formatLine(prog, r)
	c.mu.Lock()
	_, err := io.WriteString(c.w, line)
	c.mu.Unlock()
	if err != nil {
		c.logger.Debug("report: transport write failed", "error", err)
	}
}

// Close releases the underlying file descriptor, if the channel owns
// one.
func (c *Channel) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func formatLine(prog string, r *Report) string {
	var explicit int
	if r.Explicit {
		explicit = 1
	}
	var isDir int
	if r.IsDir {
		isDir = 1
	}
	var b strings.Builder
	b.Grow(64 + len(r.Path) + len(r.SecondPath))
	b.WriteString(prog)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(r.PID))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(uint64(r.RequestedAccess), 10))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(r.Status)))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(explicit))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(r.Errno))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(r.Kind)))
	b.WriteByte('|')
	b.WriteString(r.Path)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(isDir))
	b.WriteByte('\n')
	return b.String()
}

// ParseLine decodes one wire record, primarily for tests and for the
// smoke-test stub. It is not used on the production write path.
func ParseLine(line string) (prog string, r Report, err error) {
	fields := strings.SplitN(strings.TrimSuffix(line, "\n"), "|", 9)
	if len(fields) != 9 {
		return "", Report{}, fmt.Errorf("report: malformed line: %q", line)
	}
	prog = fields[0]
	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", Report{}, fmt.Errorf("report: bad pid: %w", err)
	}
	access, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return "", Report{}, fmt.Errorf("report: bad access: %w", err)
	}
	status, err := strconv.Atoi(fields[3])
	if err != nil {
		return "", Report{}, fmt.Errorf("report: bad status: %w", err)
	}
	explicit, err := strconv.Atoi(fields[4])
	if err != nil {
		return "", Report{}, fmt.Errorf("report: bad explicit flag: %w", err)
	}
	errno, err := strconv.Atoi(fields[5])
	if err != nil {
		return "", Report{}, fmt.Errorf("report: bad errno: %w", err)
	}
	kind, err := strconv.Atoi(fields[6])
	if err != nil {
		return "", Report{}, fmt.Errorf("report: bad kind: %w", err)
	}
	isDir, err := strconv.Atoi(fields[8])
	if err != nil {
		return "", Report{}, fmt.Errorf("report: bad is-dir flag: %w", err)
	}
	r = Report{
		PID:             pid,
		RequestedAccess: uint32(access),
		Status:          Status(status),
		Explicit:        explicit != 0,
		Errno:           errno,
		Kind:            ioevent.Kind(kind),
		Path:            fields[7],
		IsDir:           isDir != 0,
	}
	return prog, r, nil
}

// NewLineScanner returns a bufio.Scanner pre-sized for the reporting
// channel's line format, used by tests that read a recorded fixture
// back.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	return s
}

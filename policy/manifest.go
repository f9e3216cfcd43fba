package policy

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kalbhor/sandtrace/ioevent"
)

// Rule is one path-prefix rule parsed out of the serialized manifest.
// The real boundary contract's manifest format is external to this
// core (spec.md §1); ManifestClient implements a minimal, line-
// oriented encoding of it sufficient for the core's own tests and for
// a standalone smoke test: one rule per line,
// "<verb> <report-level> <path-prefix>" where verb is one of allow,
// deny, report.
type Rule struct {
	Verb       string
	ReportOnly bool
	Prefix     string
}

// ManifestClient is the default Client: it memory-maps the manifest
// file read-only once at construction and evaluates every Check
// against the in-memory rule list parsed from that mapping. The
// mapping is never written to and is never re-read.
type ManifestClient struct {
	mu    sync.RWMutex
	data  []byte
	rules []Rule
	flags ioevent.PolicyFlags
}

// OpenManifest mmaps path PROT_READ/MAP_PRIVATE and parses its rules.
// The mapping is held for the lifetime of the returned client; callers
// should Close it once, typically from the tracer's exit hook.
func OpenManifest(path string, flags ioevent.PolicyFlags) (*ManifestClient, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("policy: open manifest %q: %w", path, err)
	}
	defer unix.Close(fd)

	st, err := unixFstat(fd)
	if err != nil {
		return nil, fmt.Errorf("policy: stat manifest %q: %w", path, err)
	}
	if st.Size == 0 {
		return &ManifestClient{flags: flags}, nil
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("policy: mmap manifest %q: %w", path, err)
	}

	return &ManifestClient{
		data:  data,
		rules: parseRules(data),
		flags: flags,
	}, nil
}

func unixFstat(fd int) (unix.Stat_t, error) {
	var st unix.Stat_t
	err := unix.Fstat(fd, &st)
	return st, err
}

// Close unmaps the manifest. Safe to call on a manifest opened from an
// empty file, where it is a no-op.
func (m *ManifestClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// Flags returns the manifest's process-level policy flags.
func (m *ManifestClient) Flags() ioevent.PolicyFlags {
	return m.flags
}

// Check evaluates evt against the parsed rule list. The longest
// matching prefix wins; absent any match the access is allowed.
func (m *ManifestClient) Check(evt ioevent.Event) ioevent.CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Rule
	for i := range m.rules {
		r := &m.rules[i]
		if !strings.HasPrefix(evt.Path, r.Prefix) {
			continue
		}
		if best == nil || len(r.Prefix) > len(best.Prefix) {
			best = r
		}
	}
	if best == nil {
		return ioevent.CheckResult{Allowed: true}
	}

	switch best.Verb {
	case "deny":
		return ioevent.CheckResult{ShouldDenyAccess: true, ShouldReport: true, ReportLevel: ioevent.ReportWarning}
	case "report":
		return ioevent.CheckResult{Allowed: true, ShouldReport: true, ReportLevel: ioevent.ReportInfo}
	default: // "allow"
		return ioevent.CheckResult{Allowed: true, ShouldReport: best.ReportOnly, ReportLevel: ioevent.ReportInfo}
	}
}

func parseRules(data []byte) []Rule {
	var rules []Rule
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		verb := fields[0]
		prefix := fields[len(fields)-1]
		rules = append(rules, Rule{
			Verb:       verb,
			ReportOnly: verb == "report",
			Prefix:     filepath.Clean(prefix),
		})
	}
	return rules
}

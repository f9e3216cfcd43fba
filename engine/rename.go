package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/fxamacker/cbor/v2"

	"github.com/kalbhor/sandtrace/ioevent"
	"github.com/kalbhor/sandtrace/report"
)

// spillThreshold is the entry count above which a directory-rename
// enumeration is persisted to a scratch file instead of held entirely
// in memory, so a rename of a very large tree doesn't balloon the
// tracer's resident set while it is mid-syscall.
const spillThreshold = 4096

// renameEntry is one (source, destination) pair discovered while
// recursively enumerating a directory being renamed.
type renameEntry struct {
	Source string `cbor:"1,keyasint"`
	Dest   string `cbor:"2,keyasint"`
	IsDir  bool   `cbor:"3,keyasint"`
}

// enumerateRename walks src recursively, pairing every entry with its
// corresponding path under dst. It is best-effort: a walk error aborts
// enumeration and the caller falls back to a single top-level rename
// event (spec §4.7 Template C).
func enumerateRename(src, dst string) ([]renameEntry, error) {
	var entries []renameEntry
	walkErr := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		entries = append(entries, renameEntry{
			Source: path,
			Dest:   filepath.Join(dst, rel),
			IsDir:  info.IsDir(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("engine: enumerate rename tree %q: %w", src, walkErr)
	}
	return entries, nil
}

// spillEntries persists entries beyond spillThreshold as CBOR-encoded
// records in a scratch file, returning its path. The caller streams
// them back with readSpilledEntries instead of holding the full slice
// resident for the remainder of the syscall.
func spillEntries(entries []renameEntry) (string, error) {
	f, err := os.CreateTemp("", "sandtrace-rename-*.cbor")
	if err != nil {
		return "", fmt.Errorf("engine: create rename spill file: %w", err)
	}
	defer f.Close()

	enc := cbor.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("engine: encode rename spill entry: %w", err)
		}
	}
	return f.Name(), nil
}

// readSpilledEntries decodes a spill file written by spillEntries and
// removes it once fully consumed.
func readSpilledEntries(path string) ([]renameEntry, error) {
	defer os.Remove(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("engine: open rename spill file: %w", err)
	}
	defer f.Close()

	dec := cbor.NewDecoder(f)
	var entries []renameEntry
	for {
		var e renameEntry
		if err := dec.Decode(&e); err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// TemplateCDirRename implements spec §4.7's directory-rename case: for
// rename of a directory, enumerate it recursively before the call, emit
// a (source, destination) pair per entry, and if any entry's check
// denies, short-circuit the real call and emit exactly one report (the
// last one, as the denial witness); otherwise forward once and emit all
// buffered reports with the real errno. Enumeration failure falls back
// to a single top-level rename event.
func (e *Engine) TemplateCDirRename(srcPID int, src, dst string, fail bool, call RealCall) (ret int64, errno syscall.Errno) {
	entries, err := enumerateRename(src, dst)
	if err != nil {
		return e.TemplateA(ioevent.Event{Kind: ioevent.KindRename, SourcePID: srcPID, Path: src, SecondPath: dst, IsDir: true}, fail, true, call)
	}

	var spillPath string
	if len(entries) > spillThreshold {
		spillPath, err = spillEntries(entries)
		if err == nil {
			entries = nil
		}
	}
	iterate := func(fn func(renameEntry) bool) {
		if spillPath != "" {
			spilled, rerr := readSpilledEntries(spillPath)
			if rerr != nil {
				return
			}
			for _, entry := range spilled {
				if !fn(entry) {
					return
				}
			}
			return
		}
		for _, entry := range entries {
			if !fn(entry) {
				return
			}
		}
	}

	var combined ioevent.CheckResult
	combined.Allowed = true
	var lastDenied *renameEntry
	var buffered []report.Report

	iterate(func(entry renameEntry) bool {
		unlinkEvt := ioevent.Event{Kind: ioevent.KindUnlink, SourcePID: srcPID, Path: entry.Source, SecondPath: entry.Dest, IsDir: entry.IsDir}
		createEvt := ioevent.Event{Kind: ioevent.KindCreate, SourcePID: srcPID, Path: entry.Dest, SecondPath: entry.Source, IsDir: entry.IsDir}
		check := ioevent.Combine(e.Policy.Check(unlinkEvt), e.Policy.Check(createEvt))
		combined = ioevent.Combine(combined, check)

		if check.ShouldDenyAccess && fail {
			entryCopy := entry
			lastDenied = &entryCopy
			return false
		}
		if r, ok := buildReport(unlinkEvt, check, fail, false); ok {
			buffered = append(buffered, r)
		}
		if r, ok := buildReport(createEvt, check, fail, false); ok {
			buffered = append(buffered, r)
		}
		return true
	})

	group := &report.Group{}
	if lastDenied != nil {
		group.Add(report.Report{
			PID:        srcPID,
			Status:     report.StatusDenied,
			Kind:       ioevent.KindRename,
			Path:       lastDenied.Source,
			SecondPath: lastDenied.Dest,
			IsDir:      lastDenied.IsDir,
		})
		group.SetErrno(int(syscall.EPERM))
		e.Channel.Send(group)
		return -1, syscall.EPERM
	}

	ret, errno = call()
	group.Reports = buffered
	group.SetErrno(int(errno))
	e.Channel.Send(group)
	return ret, errno
}

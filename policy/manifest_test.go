package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kalbhor/sandtrace/ioevent"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return path
}

func TestOpenManifestEmptyFileAllowsEverything(t *testing.T) {
	path := writeManifest(t, "")
	m, err := OpenManifest(path, ioevent.PolicyFlags{})
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	defer m.Close()

	got := m.Check(ioevent.Event{Path: "/anything"})
	if !got.Allowed {
		t.Error("expected an empty manifest to allow everything")
	}
}

func TestOpenManifestMissingFile(t *testing.T) {
	if _, err := OpenManifest("/nonexistent/manifest", ioevent.PolicyFlags{}); err == nil {
		t.Fatal("expected an error for a missing manifest file")
	}
}

func TestCheckDenyDominatesAllowAtShorterPrefix(t *testing.T) {
	path := writeManifest(t, "allow info /\ndeny warning /etc/shadow\n")
	m, err := OpenManifest(path, ioevent.PolicyFlags{})
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	defer m.Close()

	denied := m.Check(ioevent.Event{Path: "/etc/shadow"})
	if denied.Allowed || !denied.ShouldDenyAccess {
		t.Errorf("got %+v, want denied", denied)
	}

	allowed := m.Check(ioevent.Event{Path: "/etc/hostname"})
	if !allowed.Allowed {
		t.Errorf("got %+v, want allowed", allowed)
	}
}

func TestCheckReportVerbAllowsAndFlagsReport(t *testing.T) {
	path := writeManifest(t, "report info /var/log\n")
	m, err := OpenManifest(path, ioevent.PolicyFlags{})
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	defer m.Close()

	got := m.Check(ioevent.Event{Path: "/var/log/build.log"})
	if !got.Allowed || !got.ShouldReport {
		t.Errorf("got %+v, want allowed and reported", got)
	}
}

func TestCheckNoMatchAllowsByDefault(t *testing.T) {
	path := writeManifest(t, "deny warning /etc/shadow\n")
	m, err := OpenManifest(path, ioevent.PolicyFlags{})
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	defer m.Close()

	got := m.Check(ioevent.Event{Path: "/home/user/file.txt"})
	if !got.Allowed {
		t.Errorf("got %+v, want allowed (no matching rule)", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := writeManifest(t, "allow info /\n")
	m, err := OpenManifest(path, ioevent.PolicyFlags{})
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got: %v", err)
	}
}

func TestFlagsReturnsConfiguredFlags(t *testing.T) {
	path := writeManifest(t, "")
	flags := ioevent.PolicyFlags{UnconditionalPtrace: true}
	m, err := OpenManifest(path, flags)
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	defer m.Close()

	if got := m.Flags(); !got.UnconditionalPtrace {
		t.Errorf("got %+v, want UnconditionalPtrace=true", got)
	}
}

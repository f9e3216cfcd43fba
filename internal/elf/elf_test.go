package elf

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsStaticallyLinkedRejectsNonELFFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-an-elf")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := IsStaticallyLinked(path); err == nil {
		t.Fatal("expected an error for a non-ELF file")
	}
}

func TestIsStaticallyLinkedRejectsMissingFile(t *testing.T) {
	if _, err := IsStaticallyLinked("/nonexistent/path/to/nothing"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestIsStaticallyLinkedOnARealBinaryDoesNotError(t *testing.T) {
	for _, candidate := range []string{"/bin/true", "/usr/bin/true"} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if _, err := IsStaticallyLinked(candidate); err != nil {
			t.Errorf("IsStaticallyLinked(%q): %v", candidate, err)
		}
		return
	}
	t.Skip("no usable binary found to inspect")
}

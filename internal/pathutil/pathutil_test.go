package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeAtAbsolutePath(t *testing.T) {
	got := NormalizeAt(AtFDCWD, "/a/b/../c", false, 0, nil, nil)
	if got != "/a/c" {
		t.Fatalf("got %q, want /a/c", got)
	}
}

func TestNormalizeAtEmptyPath(t *testing.T) {
	if got := NormalizeAt(AtFDCWD, "", false, 0, nil, nil); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestNormalizeAtRelativeUsesDirResolver(t *testing.T) {
	resolver := func(dirfd, pid int) (string, error) {
		if dirfd != 7 {
			t.Fatalf("unexpected dirfd %d", dirfd)
		}
		return "/work/dir", nil
	}
	got := NormalizeAt(7, "sub/file.txt", true, 0, resolver, nil)
	if got != "/work/dir/sub/file.txt" {
		t.Fatalf("got %q, want /work/dir/sub/file.txt", got)
	}
}

func TestNormalizeAtRelativeFallsBackOnResolverError(t *testing.T) {
	resolver := func(dirfd, pid int) (string, error) {
		return "", errors.New("no such fd")
	}
	got := NormalizeAt(7, "file.txt", true, 0, resolver, nil)
	if !filepath.IsAbs(got) {
		t.Fatalf("expected an absolute fallback path, got %q", got)
	}
}

func TestNormalizeAtFollowsSymlink(t *testing.T) {
	readlink := func(path string) (string, error) {
		if path == "/a/link" {
			return "/a/real", nil
		}
		return "", os.ErrNotExist
	}
	got := NormalizeAt(AtFDCWD, "/a/link", false, 0, nil, readlink)
	if got != "/a/real" {
		t.Fatalf("got %q, want /a/real", got)
	}
}

func TestNormalizeAtNoFollowSkipsOnlyFinalComponent(t *testing.T) {
	readlink := func(path string) (string, error) {
		if path == "/symdir" {
			return "/real", nil
		}
		return "", os.ErrNotExist
	}
	// noFollow mirrors AT_SYMLINK_NOFOLLOW: the final component ("link")
	// is left unresolved, but an intermediate directory component
	// ("symdir") is still real-stat-resolved on the way there.
	got := NormalizeAt(AtFDCWD, "/symdir/link", true, 0, nil, readlink)
	if got != "/real/link" {
		t.Fatalf("got %q, want /real/link", got)
	}
}

func TestNormalizeAtResolvesIntermediateSymlinkComponent(t *testing.T) {
	readlink := func(path string) (string, error) {
		if path == "/a/symlinked-dir" {
			return "/real-dir", nil
		}
		return "", os.ErrNotExist
	}
	got := NormalizeAt(AtFDCWD, "/a/symlinked-dir/file.txt", false, 0, nil, readlink)
	if got != "/real-dir/file.txt" {
		t.Fatalf("got %q, want /real-dir/file.txt", got)
	}
}

func TestNormalizeAtResolvesChainedIntermediateSymlinks(t *testing.T) {
	readlink := func(path string) (string, error) {
		switch path {
		case "/a":
			return "/b", nil
		case "/b/mid":
			return "/c", nil
		}
		return "", os.ErrNotExist
	}
	got := NormalizeAt(AtFDCWD, "/a/mid/file.txt", false, 0, nil, readlink)
	if got != "/c/file.txt" {
		t.Fatalf("got %q, want /c/file.txt", got)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	readlink := func(path string) (string, error) { return "", os.ErrNotExist }
	first := Normalize("/a/./b/../c", false, 0, readlink)
	second := Normalize(first, false, 0, readlink)
	if first != second {
		t.Fatalf("normalize not idempotent: %q != %q", first, second)
	}
	if !IsIdempotent(first) {
		t.Fatalf("IsIdempotent(%q) = false", first)
	}
}

func TestFindFirstNonExistent(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "missing", "deeper")
	got := FindFirstNonExistent(nested)
	if got != filepath.Join(dir, "missing") {
		t.Fatalf("got %q, want %q", got, filepath.Join(dir, "missing"))
	}

	if got := FindFirstNonExistent(dir); got != "" {
		t.Fatalf("expected empty string for existing path, got %q", got)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	if !Exists(dir) {
		t.Fatalf("expected %q to exist", dir)
	}
	if Exists(filepath.Join(dir, "nope")) {
		t.Fatalf("expected missing path to not exist")
	}
}

func TestStripNullBytes(t *testing.T) {
	if got := StripNullBytes("foo\x00bar\x00"); got != "foobar" {
		t.Fatalf("got %q", got)
	}
	if !ContainsNullByte("foo\x00") {
		t.Fatalf("expected null byte detection")
	}
}

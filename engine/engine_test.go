package engine

import (
	"syscall"
	"testing"

	"github.com/kalbhor/sandtrace/internal/dedup"
	"github.com/kalbhor/sandtrace/ioevent"
	"github.com/kalbhor/sandtrace/policy"
	"github.com/kalbhor/sandtrace/report"
)

// fixedClient returns the same decision for every event, for tests
// that only care about the engine's own plumbing.
type fixedClient struct {
	result ioevent.CheckResult
	flags  ioevent.PolicyFlags
}

func (c fixedClient) Check(ioevent.Event) ioevent.CheckResult { return c.result }
func (c fixedClient) Flags() ioevent.PolicyFlags               { return c.flags }

func newTestEngine(p policy.Client) (*Engine, *testChannel) {
	tc := &testChannel{}
	ch := report.NewChannelWriter(tc, "test", nil)
	return New(p, dedup.New(), ch), tc
}

// testChannel is an io.Writer capturing every Write call's payload
// verbatim, so tests can assert on the exact report lines sent.
type testChannel struct {
	writes []string
}

func (w *testChannel) Write(p []byte) (int, error) {
	w.writes = append(w.writes, string(p))
	return len(p), nil
}

func TestTemplateAAllowsAndForwards(t *testing.T) {
	eng, ch := newTestEngine(policy.AllowAllClient{})

	called := false
	call := func() (int64, syscall.Errno) {
		called = true
		return 3, 0
	}

	evt := ioevent.Event{Kind: ioevent.KindOpen, Path: "/a"}
	ret, errno := eng.TemplateA(evt, true, true, call)

	if !called {
		t.Fatal("expected call() to run on an allowed access")
	}
	if ret != 3 || errno != 0 {
		t.Errorf("got ret=%d errno=%v, want ret=3 errno=0", ret, errno)
	}
	if len(ch.writes) != 1 {
		t.Fatalf("got %d report lines, want 1", len(ch.writes))
	}
}

func TestTemplateADeniesWithoutCallingCall(t *testing.T) {
	deny := fixedClient{result: ioevent.CheckResult{Allowed: false, ShouldDenyAccess: true}}
	eng, ch := newTestEngine(deny)

	called := false
	call := func() (int64, syscall.Errno) {
		called = true
		return 0, 0
	}

	evt := ioevent.Event{Kind: ioevent.KindWrite, Path: "/denied"}
	ret, errno := eng.TemplateA(evt, true, true, call)

	if called {
		t.Fatal("call() must not run on the deny path")
	}
	if ret != -1 || errno != syscall.EPERM {
		t.Errorf("got ret=%d errno=%v, want ret=-1 errno=EPERM", ret, errno)
	}
	if len(ch.writes) != 1 {
		t.Fatalf("got %d report lines, want 1", len(ch.writes))
	}
}

func TestTemplateAFailFalseNeverDenies(t *testing.T) {
	deny := fixedClient{result: ioevent.CheckResult{Allowed: false, ShouldDenyAccess: true}}
	eng, _ := newTestEngine(deny)

	called := false
	call := func() (int64, syscall.Errno) {
		called = true
		return 0, 0
	}

	evt := ioevent.Event{Kind: ioevent.KindStat, Path: "/a"}
	_, _ = eng.TemplateA(evt, false, true, call)
	if !called {
		t.Fatal("fail=false (notify-only) must still call() even when policy would deny")
	}
}

func TestTemplateADedupSuppressesSecondIdenticalReport(t *testing.T) {
	eng, ch := newTestEngine(policy.AllowAllClient{})
	call := func() (int64, syscall.Errno) { return 0, 0 }

	evt := ioevent.Event{Kind: ioevent.KindStat, Path: "/a"}
	eng.TemplateA(evt, false, true, call)
	eng.TemplateA(evt, false, true, call)

	if len(ch.writes) != 1 {
		t.Fatalf("got %d report lines, want 1 (the second identical STAT is suppressed by dedup)", len(ch.writes))
	}
}

func TestTemplateCCombinesBothHalves(t *testing.T) {
	deny := fixedClient{result: ioevent.CheckResult{Allowed: false, ShouldDenyAccess: true}}
	eng, _ := newTestEngine(deny)

	called := false
	call := func() (int64, syscall.Errno) {
		called = true
		return 0, 0
	}

	pair := TwoPathResult{
		SourceEvent: ioevent.Event{Kind: ioevent.KindUnlink, Path: "/src"},
		DestEvent:   ioevent.Event{Kind: ioevent.KindRename, Path: "/dst"},
	}
	ret, errno := eng.TemplateC(pair, true, call)

	if called {
		t.Fatal("call() must not run when either half denies")
	}
	if ret != -1 || errno != syscall.EPERM {
		t.Errorf("got ret=%d errno=%v, want ret=-1 errno=EPERM", ret, errno)
	}
}

func TestOpenKindClassification(t *testing.T) {
	dir := t.TempDir()
	missing := dir + "/missing.txt"

	if got := OpenKind(missing, syscall.O_CREAT|syscall.O_WRONLY); got != ioevent.KindCreate {
		t.Errorf("missing+O_CREAT: got %v, want KindCreate", got)
	}
	if got := OpenKind(dir, 0); got != ioevent.KindOpen {
		t.Errorf("existing dir, no flags: got %v, want KindOpen", got)
	}
}

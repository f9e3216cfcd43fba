package sandtrace

import (
	"testing"
	"time"

	"github.com/kalbhor/sandtrace/ioevent"
)

func TestResultZeroValue(t *testing.T) {
	var r Result
	if r.ExitCode != 0 {
		t.Errorf("ExitCode zero value: got %d, want 0", r.ExitCode)
	}
	if r.Stdout != "" {
		t.Errorf("Stdout zero value: got %q, want empty", r.Stdout)
	}
	if r.Stderr != "" {
		t.Errorf("Stderr zero value: got %q, want empty", r.Stderr)
	}
	if r.Duration != 0 {
		t.Errorf("Duration zero value: got %v, want 0", r.Duration)
	}
	if r.Truncated {
		t.Error("Truncated zero value: got true, want false")
	}
	if r.Denials != nil {
		t.Errorf("Denials zero value: got %v, want nil", r.Denials)
	}
}

func TestResultPopulated(t *testing.T) {
	r := Result{
		ExitCode:  1,
		Stdout:    "hello",
		Stderr:    "error",
		Duration:  5 * time.Second,
		Truncated: true,
		Denials: []Denial{
			{Kind: ioevent.KindWrite, Path: "/etc/passwd", Process: "bash", PID: 42, Raw: "bash|42|2|1|1|1|1|/etc/passwd|0"},
		},
	}

	if r.ExitCode != 1 {
		t.Errorf("ExitCode: got %d, want 1", r.ExitCode)
	}
	if r.Stdout != "hello" {
		t.Errorf("Stdout: got %q, want %q", r.Stdout, "hello")
	}
	if r.Stderr != "error" {
		t.Errorf("Stderr: got %q, want %q", r.Stderr, "error")
	}
	if r.Duration != 5*time.Second {
		t.Errorf("Duration: got %v, want %v", r.Duration, 5*time.Second)
	}
	if !r.Truncated {
		t.Error("Truncated: got false, want true")
	}
	if len(r.Denials) != 1 {
		t.Fatalf("Denials: got %d, want 1", len(r.Denials))
	}
	d := r.Denials[0]
	if d.Kind != ioevent.KindWrite {
		t.Errorf("Denial.Kind: got %v, want %v", d.Kind, ioevent.KindWrite)
	}
	if d.Path != "/etc/passwd" {
		t.Errorf("Denial.Path: got %q, want %q", d.Path, "/etc/passwd")
	}
	if d.Process != "bash" {
		t.Errorf("Denial.Process: got %q, want %q", d.Process, "bash")
	}
	if d.PID != 42 {
		t.Errorf("Denial.PID: got %d, want 42", d.PID)
	}
}

func TestDenialZeroValue(t *testing.T) {
	var d Denial
	if d.Path != "" {
		t.Errorf("Path zero value: got %q, want empty", d.Path)
	}
	if d.SecondPath != "" {
		t.Errorf("SecondPath zero value: got %q, want empty", d.SecondPath)
	}
	if d.Process != "" {
		t.Errorf("Process zero value: got %q, want empty", d.Process)
	}
	if d.Raw != "" {
		t.Errorf("Raw zero value: got %q, want empty", d.Raw)
	}
}

package sandtrace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigFromEnvMissingRequiredVar(t *testing.T) {
	os.Unsetenv(EnvManifestPath)
	t.Setenv(EnvReportsPath, "/tmp/reports")

	_, err := ConfigFromEnv()
	if err == nil {
		t.Fatal("expected an error when a required env var is unset")
	}
	fatal, ok := err.(*FatalInitError)
	if !ok {
		t.Fatalf("got %T, want *FatalInitError", err)
	}
	if fatal.Var != EnvManifestPath {
		t.Errorf("got Var=%q, want %q", fatal.Var, EnvManifestPath)
	}
}

func TestConfigFromEnvSucceeds(t *testing.T) {
	t.Setenv(EnvManifestPath, "/tmp/manifest")
	t.Setenv(EnvReportsPath, "/tmp/reports")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.ManifestPath != "/tmp/manifest" || cfg.ReportsPath != "/tmp/reports" {
		t.Errorf("got %+v", cfg)
	}
}

func TestConfigValidateAggregatesErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation to fail on an empty config")
	}
}

func TestConfigValidateAcceptsMinimalConfig(t *testing.T) {
	cfg := &Config{ManifestPath: "/tmp/manifest", ReportsPath: "/tmp/reports"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestApplyDebugOverrideMissingFileIsNotAnError(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ApplyDebugOverride("/nonexistent/debug.yaml"); err != nil {
		t.Fatalf("expected a missing override file to be a no-op, got %v", err)
	}
}

func TestApplyDebugOverrideMergesForcedPtraceList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "debug.yaml")
	yaml := "forced_ptrace:\n  - gcc\n  - clang\nunconditional_ptrace: true\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cfg := &Config{ForcedPtraceList: "ld"}
	if err := cfg.ApplyDebugOverride(path); err != nil {
		t.Fatalf("ApplyDebugOverride: %v", err)
	}
	if cfg.ForcedPtraceList != "ld:gcc:clang" {
		t.Errorf("got ForcedPtraceList=%q, want ld:gcc:clang", cfg.ForcedPtraceList)
	}
	if !cfg.UnconditionalPtrace {
		t.Error("expected UnconditionalPtrace to be merged in as true")
	}
}

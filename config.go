package sandtrace

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kalbhor/sandtrace/internal/pathutil"
)

// Config holds everything the tracer needs to initialize: the §6
// environment contract plus an optional on-disk debug override.
type Config struct {
	// ManifestPath is the absolute path to the serialized policy
	// manifest, read from __MANIFEST_PATH__.
	ManifestPath string

	// ReportsPath is the absolute path to the reporting pipe or file,
	// read from __REPORTS_PATH__.
	ReportsPath string

	// LibraryPath is the absolute path of the sandbox's own binary or
	// shim, so children can re-preload/re-trace it. Derived from
	// /proc/self/exe when not set explicitly.
	LibraryPath string

	// PtraceMQ is the optional POSIX message-queue name used to hand
	// off to an external ptrace driver, from __PTRACE_MQ__.
	PtraceMQ string

	// ForcedPtraceList is the colon-separated basename list from
	// __FORCED_PTRACE_LIST__.
	ForcedPtraceList string

	// UnconditionalPtrace forces every exec through the tracer
	// regardless of linkage, overridable by the debug override file.
	UnconditionalPtrace bool

	// Logger is the structured logger for init diagnostics and
	// transport-failure debug lines. Defaults to slog.Default().
	Logger *slog.Logger

	// MaxOutputBytes bounds captured stdout/stderr per Trace call; 0
	// means unlimited. A runaway build target's output must not grow
	// the Result beyond what a caller is willing to hold in memory.
	MaxOutputBytes int
}

// requiredEnvVars lists the environment variables whose absence is a
// fatal init error (spec §6/§7): the tracer dumps the full environment
// to stderr and exits with status 1.
var requiredEnvVars = []string{EnvManifestPath, EnvReportsPath}

// ConfigFromEnv assembles a Config from the §6 environment contract. A
// missing required variable is reported as a *FatalInitError; callers
// that want spec §6's exact behavior (diagnostic to stderr, exit 1)
// print it and its Env and exit themselves, as cmd/sandtrace-stub does.
func ConfigFromEnv() (*Config, error) {
	env := os.Environ()
	for _, name := range requiredEnvVars {
		if _, ok := os.LookupEnv(name); !ok {
			return nil, &FatalInitError{Var: name, Env: env}
		}
	}

	libPath, err := os.Readlink("/proc/self/exe")
	if err != nil {
		libPath = ""
	}

	cfg := &Config{
		ManifestPath:     os.Getenv(EnvManifestPath),
		ReportsPath:      os.Getenv(EnvReportsPath),
		LibraryPath:      libPath,
		PtraceMQ:         os.Getenv(EnvPtraceMQ),
		ForcedPtraceList: os.Getenv(EnvForcedPtraceList),
	}
	return cfg, nil
}

// debugOverride is the shape of the optional YAML file that lets a
// developer tweak the forced-ptrace list and the unconditional-ptrace
// flag locally without re-exporting environment variables.
type debugOverride struct {
	ForcedPtrace        []string `yaml:"forced_ptrace"`
	UnconditionalPtrace bool     `yaml:"unconditional_ptrace"`
}

// ApplyDebugOverride reads a YAML file at path and merges its fields
// into c. A missing file is not an error — the override is optional.
func (c *Config) ApplyDebugOverride(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("sandtrace: read debug override %q: %w", path, err)
	}

	var override debugOverride
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("sandtrace: parse debug override %q: %w", path, err)
	}

	if len(override.ForcedPtrace) > 0 {
		merged := c.ForcedPtraceList
		if merged != "" {
			merged += ":"
		}
		merged += strings.Join(override.ForcedPtrace, ":")
		c.ForcedPtraceList = merged
	}
	c.UnconditionalPtrace = c.UnconditionalPtrace || override.UnconditionalPtrace
	return nil
}

// Validate aggregates every configuration problem into a single error
// wrapping ErrConfigInvalid rather than failing on the first one, the
// way the teacher's own Config.Validate does.
func (c *Config) Validate() error {
	var errs []string

	if c.ManifestPath == "" {
		errs = append(errs, "ManifestPath: must not be empty")
	} else if pathutil.ContainsNullByte(c.ManifestPath) {
		errs = append(errs, "ManifestPath: must not contain null bytes")
	}

	if c.ReportsPath == "" {
		errs = append(errs, "ReportsPath: must not be empty")
	} else if pathutil.ContainsNullByte(c.ReportsPath) {
		errs = append(errs, "ReportsPath: must not contain null bytes")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// logger returns c.Logger, or slog.Default() when unset.
func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

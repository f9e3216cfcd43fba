package sandtrace

import "github.com/kalbhor/sandtrace/internal/envutil"

// EnvManifestPath, EnvReportsPath, EnvLDPreload, EnvPtraceMQ, and
// EnvForcedPtraceList are the §6 environment contract variable names.
const (
	EnvManifestPath     = "__MANIFEST_PATH__"
	EnvReportsPath      = "__REPORTS_PATH__"
	EnvLDPreload        = "LD_PRELOAD"
	EnvPtraceMQ         = "__PTRACE_MQ__"
	EnvForcedPtraceList = "__FORCED_PTRACE_LIST__"
)

// EnsureEnvs guarantees that env carries LD_PRELOAD with libPath
// present (prepended if absent, so a cooperating native interposition
// shim coexists with whatever the guest already preloads) and that the
// manifest-path variable is set to the tracer's own value, as are the
// ptrace-queue and forced-ptrace variables when their values are
// non-empty (an empty value leaves env's entry as it was). It returns a
// new slice; env is not mutated in place.
func EnsureEnvs(env []string, libPath, manifestPath, ptraceMQ, forcedList string) []string {
	out := append([]string(nil), env...)

	if preload, ok := envutil.GetEnv(out, EnvLDPreload); ok {
		if !containsPath(preload, libPath) {
			out = envutil.SetEnv(out, EnvLDPreload, libPath+":"+preload)
		}
	} else {
		out = envutil.SetEnv(out, EnvLDPreload, libPath)
	}

	out = envutil.SetEnv(out, EnvManifestPath, manifestPath)
	if ptraceMQ != "" {
		out = envutil.SetEnv(out, EnvPtraceMQ, ptraceMQ)
	}
	if forcedList != "" {
		out = envutil.SetEnv(out, EnvForcedPtraceList, forcedList)
	}
	return out
}

// RemoveLDPreloadFromEnv removes only libPath from LD_PRELOAD, leaving
// any other preloaded libraries intact. Used when handing a target over
// to the ptrace driver so it is not doubly traced by a cooperating
// native shim that also lives in LD_PRELOAD.
func RemoveLDPreloadFromEnv(env []string, libPath string) []string {
	preload, ok := envutil.GetEnv(env, EnvLDPreload)
	if !ok {
		return append([]string(nil), env...)
	}
	remaining := removeEntry(preload, libPath)
	out := append([]string(nil), env...)
	if remaining == "" {
		return envutil.RemoveEnv(out, EnvLDPreload)
	}
	return envutil.SetEnv(out, EnvLDPreload, remaining)
}

func containsPath(preload, libPath string) bool {
	for _, p := range splitColon(preload) {
		if p == libPath {
			return true
		}
	}
	return false
}

func removeEntry(preload, libPath string) string {
	parts := splitColon(preload)
	kept := parts[:0]
	for _, p := range parts {
		if p != libPath {
			kept = append(kept, p)
		}
	}
	out := ""
	for i, p := range kept {
		if i > 0 {
			out += ":"
		}
		out += p
	}
	return out
}

func splitColon(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ':' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

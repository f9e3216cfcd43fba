// Package sandtrace implements the interposition and reporting engine
// at the core of a build-tool filesystem-access sandbox: it launches or
// attaches to a traced child, observes every file-touching syscall that
// child (and its descendants) makes, consults a build-supplied policy
// for each one, performs or denies the underlying operation, and
// streams a structured AccessReport back over a reporting channel.
//
// On Linux the mechanism is a ptrace tracer (see platform/linux)
// stepping the tracee syscall-by-syscall, rather than an LD_PRELOAD
// shared object interposing libc — Go cannot safely share an arbitrary
// host process's address space the way a cgo .so can. Every traced
// binary, statically or dynamically linked, goes through the same
// tracer loop; see DESIGN.md for the full accounting of that decision.
//
// Basic usage:
//
//	cfg, err := sandtrace.ConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tr, err := sandtrace.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tr.Close()
//
//	result, err := tr.Trace(ctx, exec.Command("make", "all"))
package sandtrace

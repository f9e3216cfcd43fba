// sandtrace-stub is a smoke-test harness for the tracer: it assembles a
// Config from the environment contract, traces one command, and prints
// the result as a report summary. Useful for exercising a manifest and
// reports path by hand without wiring a full build tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/pflag"

	sandtrace "github.com/kalbhor/sandtrace"
)

func main() {
	os.Exit(run())
}

func run() int {
	var maxOutput int
	var debugOverride string
	var verbose bool

	flagSet := pflag.NewFlagSet("sandtrace-stub", pflag.ContinueOnError)
	flagSet.IntVar(&maxOutput, "max-output", 1<<20, "bytes of stdout/stderr to capture before truncating")
	flagSet.StringVar(&debugOverride, "debug-config", "", "path to an optional YAML debug-override file")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printUsage(flagSet)
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	if help, _ := flagSet.GetBool("help"); help {
		printUsage(flagSet)
		return 0
	}

	args := flagSet.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "error: no command given")
		printUsage(flagSet)
		return 2
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := sandtrace.ConfigFromEnv()
	if err != nil {
		fatal, ok := err.(*sandtrace.FatalInitError)
		if ok {
			fmt.Fprintln(os.Stderr, fatal.Error())
			for _, line := range fatal.Env {
				fmt.Fprintln(os.Stderr, line)
			}
			return 1
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	cfg.Logger = logger
	cfg.MaxOutputBytes = maxOutput

	if debugOverride != "" {
		if err := cfg.ApplyDebugOverride(debugOverride); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}

	fmt.Fprintf(os.Stderr, "sandtrace-stub: reports path %s\n", cfg.ReportsPath)

	tr, err := sandtrace.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := tr.Trace(ctx, exec.Command(args[0], args[1:]...))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	os.Stdout.WriteString(result.Stdout)
	os.Stderr.WriteString(result.Stderr)
	if result.Truncated {
		fmt.Fprintln(os.Stderr, "sandtrace-stub: output truncated")
	}
	for _, d := range result.Denials {
		fmt.Fprintf(os.Stderr, "sandtrace-stub: denied %s %s (pid %d)\n", d.Kind, d.Path, d.PID)
	}

	return result.ExitCode
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "usage: sandtrace-stub [flags] -- command [args...]\n\nflags:\n")
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

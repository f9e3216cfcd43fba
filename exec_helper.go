package sandtrace

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// limitedWriter wraps a bytes.Buffer and stops writing after limit bytes.
type limitedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil // discard but report success
	}
	if len(p) <= remaining {
		return w.buf.Write(p)
	}
	// Write only what fits, but report full length to avoid io.ErrShortWrite.
	_, err := w.buf.Write(p[:remaining])
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// capture owns a pair of raw os.Pipe()s assigned directly to
// cmd.Stdout/cmd.Stderr (rather than an io.Writer, which exec.Cmd would
// otherwise wrap in its own copy-goroutine synchronized only by
// cmd.Wait()). Tracer.Trace reaps the traced process through its own
// wait4 loop instead of cmd.Wait(), so it owns this synchronization
// itself: Close the write ends once the child has exec'd, then Wait
// for the copy goroutines before reading the buffers.
type capture struct {
	stdout, stderr         bytes.Buffer
	stdoutW, stderrW       *os.File
	maxOutput              int
	wg                     sync.WaitGroup
}

// newCapture creates the pipe pair and starts the copy goroutines.
// maxOutput of 0 means unlimited.
func newCapture(maxOutput int) (*capture, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("sandtrace: stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("sandtrace: stderr pipe: %w", err)
	}

	c := &capture{stdoutW: outW, stderrW: errW, maxOutput: maxOutput}
	c.wg.Add(2)
	go c.copyFrom(outR, &c.stdout)
	go c.copyFrom(errR, &c.stderr)
	return c, nil
}

func (c *capture) copyFrom(r *os.File, buf *bytes.Buffer) {
	defer c.wg.Done()
	defer r.Close()
	var dst io.Writer = buf
	if c.maxOutput > 0 {
		dst = &limitedWriter{buf: buf, limit: c.maxOutput}
	}
	_, _ = io.Copy(dst, r)
}

// closeWriters closes the pipes' write ends, held open by the traced
// process; call once after cmd.Start() returns so the copy goroutines
// see EOF when (and only when) every process holding a write end,
// including forked descendants, has exited.
func (c *capture) closeWriters() {
	_ = c.stdoutW.Close()
	_ = c.stderrW.Close()
}

// wait blocks until both copy goroutines have drained their pipe.
func (c *capture) wait() { c.wg.Wait() }

func (c *capture) stdoutString() string { return c.stdout.String() }
func (c *capture) stderrString() string { return c.stderr.String() }

func (c *capture) truncated() bool {
	if c.maxOutput <= 0 {
		return false
	}
	return c.stdout.Len() >= c.maxOutput || c.stderr.Len() >= c.maxOutput
}

// execHelper runs cmd to completion, capturing output with an optional
// size limit, and returns a *Result. It runs cmd untraced and waits
// with cmd.Wait; Tracer.Trace does not call it and uses its own
// capture and wait4 loop instead.
//
// maxOutput limits captured stdout/stderr; 0 means no limit.
func execHelper(cmd *exec.Cmd, maxOutput int) (*Result, error) {
	var stdout, stderr bytes.Buffer
	var stdoutWriter, stderrWriter io.Writer
	stdoutWriter = &stdout
	stderrWriter = &stderr
	if maxOutput > 0 {
		stdoutWriter = &limitedWriter{buf: &stdout, limit: maxOutput}
		stderrWriter = &limitedWriter{buf: &stderr, limit: maxOutput}
	}
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	setupProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			err = nil // non-zero exit is not a Go error
		} else {
			return nil, err
		}
	}

	truncated := false
	if maxOutput > 0 {
		if stdout.Len() >= maxOutput || stderr.Len() >= maxOutput {
			truncated = true
		}
	}

	return &Result{
		ExitCode:  exitCode,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  duration,
		Truncated: truncated,
	}, err
}

package jobq

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/UniQw/jobq/internal/hctx"
)

const (
	// outputTail bounds how much stderr or stdout is kept as a failure reason.
	outputTail = 512
	// maxOutput bounds the captured stdout of a run and the stored Output.
	maxOutput = 64 << 10
	// maxReason bounds a stored LastError.
	maxReason = 4 << 10
)

// Executor runs a command line and returns its captured output.
// A failed or timed out run is reported as an *ExecutionError.
type Executor interface {
	Run(ctx context.Context, command string) (string, error)
}

// ExecFunc adapts a plain function to Executor.
type ExecFunc func(ctx context.Context, command string) (string, error)

// Run calls f.
func (f ExecFunc) Run(ctx context.Context, command string) (string, error) { return f(ctx, command) }

// JobFromContext reports the job a command is being run for. The dispatcher
// attaches it to the context passed to the executor and middlewares.
func JobFromContext(ctx context.Context) (id string, attempt int, ok bool) {
	j, ok := hctx.From(ctx)
	return j.ID, j.Attempt, ok
}

// ShellExecutor runs commands through a POSIX shell.
type ShellExecutor struct {
	// Shell defaults to "sh".
	Shell string
	// Timeout bounds a single run. Zero means no timeout.
	Timeout time.Duration
}

// NewShellExecutor creates a ShellExecutor using sh with the given timeout.
func NewShellExecutor(timeout time.Duration) *ShellExecutor {
	return &ShellExecutor{Shell: "sh", Timeout: timeout}
}

// Run executes `<shell> -c command`. The process is killed when the timeout
// elapses or ctx is cancelled. When ctx carries a job (see JobFromContext),
// JOBQ_JOB_ID and JOBQ_ATTEMPT are set in the command's environment.
func (e *ShellExecutor) Run(ctx context.Context, command string) (string, error) {
	shell := e.Shell
	if shell == "" {
		shell = "sh"
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	stdout := &tailBuffer{limit: maxOutput}
	stderr := &tailBuffer{limit: maxOutput}
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if j, ok := hctx.From(ctx); ok {
		cmd.Env = append(os.Environ(), "JOBQ_JOB_ID="+j.ID, "JOBQ_ATTEMPT="+strconv.Itoa(j.Attempt))
	}
	// children of the shell may keep the pipes open after the kill
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && e.Timeout > 0:
		return stdout.String(), &ExecutionError{Reason: fmt.Sprintf("timed out after %s", e.Timeout), Err: ctx.Err()}
	case ctx.Err() != nil:
		return stdout.String(), &ExecutionError{Reason: "cancelled: " + ctx.Err().Error(), Err: ctx.Err()}
	}
	return stdout.String(), &ExecutionError{Reason: failureReason(err, stdout.String(), stderr.String()), Err: err}
}

func failureReason(err error, stdout, stderr string) string {
	if s := strings.TrimSpace(stderr); s != "" {
		return tail(s, outputTail)
	}
	if s := strings.TrimSpace(stdout); s != "" {
		return tail(s, outputTail)
	}
	return err.Error()
}

// tail returns at most the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	for len(s) > 0 && !utf8.RuneStart(s[0]) {
		s = s[1:]
	}
	return s
}

// tailBuffer is an io.Writer keeping only the last limit bytes written.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= b.limit {
		b.buf = append(b.buf[:0], p[n-b.limit:]...)
		return n, nil
	}
	b.buf = append(b.buf, p...)
	// compact once twice the limit is buffered
	if len(b.buf) > 2*b.limit {
		b.buf = append(b.buf[:0], b.buf[len(b.buf)-b.limit:]...)
	}
	return n, nil
}

func (b *tailBuffer) String() string { return tail(string(b.buf), b.limit) }

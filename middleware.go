package jobq

import (
	"context"
	"time"
)

// Middleware wraps an ExecFunc to provide cross-cutting concerns around command runs.
type Middleware func(ExecFunc) ExecFunc

// chain applies middlewares in registration order: the first one is the outermost.
func chain(exec Executor, mws []Middleware) ExecFunc {
	h := ExecFunc(exec.Run)
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// LoggingMiddleware logs duration and result of each command run.
func LoggingMiddleware(l Logger) Middleware {
	return func(next ExecFunc) ExecFunc {
		return func(ctx context.Context, command string) (string, error) {
			start := time.Now()
			out, err := next(ctx, command)
			if err != nil {
				l.Debugf("command failed: dur=%s command=%q err=%v", time.Since(start), command, err)
			} else {
				l.Debugf("command ok: dur=%s command=%q", time.Since(start), command)
			}
			return out, err
		}
	}
}

package runtime

import (
	"context"
	"sync"
	"time"
)

// Logger is a minimal logging interface used internally by the runtime.
// It mirrors the public logger in the root package to avoid an import cycle.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// DefaultPollInterval is used when Config.PollInterval is not positive.
const DefaultPollInterval = time.Second

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	// ReclaimInterval is how often Reclaim runs. Zero disables the reclaimer.
	ReclaimInterval time.Duration
	Logger          Logger
}

// TickFunc processes at most one unit of work. It reports whether work was
// done, in which case the worker polls again without sleeping.
type TickFunc func(ctx context.Context) bool

// ReclaimFunc recovers work abandoned by crashed workers.
type ReclaimFunc func(ctx context.Context)

type Runtime struct {
	cfg     Config
	tick    TickFunc
	reclaim ReclaimFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	log     Logger
}

// New creates a runtime that runs tick on Concurrency workers and reclaim on
// its own ticker. reclaim may be nil.
func New(cfg Config, tick TickFunc, reclaim ReclaimFunc) *Runtime {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}
	lg := cfg.Logger
	if lg == nil {
		lg = noopLogger{}
	}
	return &Runtime{cfg: cfg, tick: tick, reclaim: reclaim, log: lg}
}

// Start launches workers and the reclaimer. It returns immediately.
func (rt *Runtime) Start() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.started {
		rt.log.Warnf("runtime already started; ignoring Start()")
		return
	}
	rt.started = true
	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	rt.log.Infof("runtime starting: concurrency=%d poll=%s", rt.cfg.Concurrency, rt.cfg.PollInterval)

	for i := 0; i < rt.cfg.Concurrency; i++ {
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			rt.workerLoop(ctx)
		}()
	}

	if rt.reclaim != nil && rt.cfg.ReclaimInterval > 0 {
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			ticker := time.NewTicker(rt.cfg.ReclaimInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					rt.reclaim(ctx)
				}
			}
		}()
	}
}

// Stop cancels the workers and waits for in-flight ticks to return.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	if !rt.started {
		rt.log.Warnf("runtime not started; ignoring Stop()")
		rt.mu.Unlock()
		return
	}
	rt.started = false
	cancel := rt.cancel
	rt.mu.Unlock()
	rt.log.Infof("runtime stopping")

	cancel()
	rt.wg.Wait()
}

// Running reports whether Start has been called without a matching Stop.
func (rt *Runtime) Running() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.started
}

// CfgConcurrency exposes configured worker concurrency.
func (rt *Runtime) CfgConcurrency() int { return rt.cfg.Concurrency }

func (rt *Runtime) workerLoop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if rt.tick(ctx) {
			timer.Reset(0)
			continue
		}
		timer.Reset(rt.cfg.PollInterval)
	}
}

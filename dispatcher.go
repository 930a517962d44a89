package jobq

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/UniQw/jobq/internal/hctx"
	rtm "github.com/UniQw/jobq/internal/runtime"
)

// recordAttempts bounds how often an outcome write is tried while the store
// is unavailable. Delays double from recordDelay between tries.
const (
	recordAttempts = 5
	recordDelay    = 200 * time.Millisecond
)

// DefaultPollInterval is how long an idle worker waits before claiming again.
const DefaultPollInterval = time.Second

// DispatcherConfig defines the configuration for a Dispatcher.
type DispatcherConfig struct {
	// PollInterval is the wait between claims when no job is eligible.
	PollInterval time.Duration
	// Concurrency is the number of worker goroutines. Defaults to 1.
	Concurrency int
	// Backoff computes the retry delay. Zero value uses DefaultBackoffBase, uncapped.
	Backoff Backoff
	// VisibilityTimeout returns processing jobs untouched for this long to
	// pending. Zero disables reclaiming.
	VisibilityTimeout time.Duration
	// Logger is the logger used for dispatcher events.
	Logger Logger
	// OnEvent, if set, is called after every recorded transition.
	OnEvent func(Event)
}

// Event describes one transition made by the dispatcher.
type Event struct {
	JobID     string
	From      State
	To        State
	Attempts  int
	Reason    string
	NextRunAt time.Time
}

// Dispatcher claims eligible jobs, runs them and records the outcome.
type Dispatcher struct {
	store   Store
	exec    Executor
	cfg     DispatcherConfig
	log     Logger
	rt      *rtm.Runtime
	mu      sync.Mutex
	mws     []Middleware
	handler ExecFunc
	now     func() time.Time
	// recordDelay is the first pause between outcome write tries.
	recordDelay time.Duration
}

// NewDispatcher creates a dispatcher running jobs from store with exec.
func NewDispatcher(store Store, exec Executor, cfg DispatcherConfig) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff.Base = DefaultBackoffBase
	}
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	d := &Dispatcher{store: store, exec: exec, cfg: cfg, log: l, now: time.Now, recordDelay: recordDelay}

	var reclaim rtm.ReclaimFunc
	if cfg.VisibilityTimeout > 0 {
		reclaim = d.reclaim
	}
	rtc := rtm.Config{
		Concurrency:     cfg.Concurrency,
		PollInterval:    cfg.PollInterval,
		ReclaimInterval: reclaimInterval(cfg.VisibilityTimeout),
		Logger:          rtLogger{Logger: l},
	}
	d.rt = rtm.New(rtc, d.loopTick, reclaim)
	return d
}

// Use appends middlewares around the executor. Call before Start.
func (d *Dispatcher) Use(mws ...Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mws = append(d.mws, mws...)
	d.handler = nil
}

// Start launches the workers. It is idempotent and non-blocking.
func (d *Dispatcher) Start() {
	if d.rt.Running() {
		d.log.Warnf("dispatcher already started; ignoring Start()")
		return
	}
	d.log.Infof("starting dispatcher: concurrency=%d poll=%s", d.cfg.Concurrency, d.cfg.PollInterval)
	d.rt.Start()
}

// Stop stops claiming new jobs and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	if !d.rt.Running() {
		d.log.Warnf("dispatcher not started; ignoring Stop()")
		return
	}
	d.log.Infof("stopping dispatcher")
	d.rt.Stop()
}

// Tick claims and processes at most one eligible job. It reports whether a
// job was processed. A claimed job is always run to completion and recorded
// even if ctx is cancelled meanwhile.
func (d *Dispatcher) Tick(ctx context.Context) (bool, error) {
	job, err := d.store.ClaimNext(ctx, d.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	d.emit(Event{JobID: job.ID, From: StatePending, To: StateProcessing, Attempts: job.Attempts})

	runCtx := hctx.WithJob(context.WithoutCancel(ctx), hctx.Job{ID: job.ID, Attempt: job.Attempts + 1})
	out, runErr := d.run(runCtx, job)

	attempts := job.Attempts + 1
	now := d.now()
	o := Outcome{Attempts: attempts, At: now}
	ev := Event{JobID: job.ID, From: StateProcessing, Attempts: attempts}
	switch {
	case runErr == nil:
		o.Kind = OutcomeCompleted
		o.Output = tail(out, maxOutput)
		ev.To = StateCompleted
	case attempts > job.MaxRetries:
		o.Kind = OutcomeDead
		o.LastError = tail(outcomeReason(runErr), maxReason)
		ev.To = StateDead
		ev.Reason = o.LastError
	default:
		o.Kind = OutcomeRetry
		o.LastError = tail(outcomeReason(runErr), maxReason)
		o.NextRunAt = now.Add(d.cfg.Backoff.Delay(attempts))
		ev.To = StateFailed
		ev.Reason = o.LastError
		ev.NextRunAt = o.NextRunAt
	}

	if err := d.record(runCtx, job.ID, o); err != nil {
		return true, err
	}
	d.emit(ev)
	return true, nil
}

// run calls the executor chain. A panic in the executor or a middleware is
// reported as an *ExecutionError so the job still takes a retry or dead transition.
func (d *Dispatcher) run(ctx context.Context, job *Job) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("command panicked: id=%s panic=%v stack=%s", job.ID, r, debug.Stack())
			out, err = "", &ExecutionError{Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return d.executor()(ctx, job.Command)
}

// record writes an outcome, retrying with a doubling delay while the store is
// unavailable. Any other error is returned at once.
func (d *Dispatcher) record(ctx context.Context, id string, o Outcome) error {
	delay := d.recordDelay
	var err error
	for i := 0; i < recordAttempts; i++ {
		if err = d.store.RecordOutcome(ctx, id, o); err == nil || !errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		if i == recordAttempts-1 {
			break
		}
		d.log.Warnf("outcome write failed, retrying: id=%s try=%d err=%v", id, i+1, err)
		time.Sleep(delay)
		delay *= 2
	}
	d.log.Errorf("outcome lost, job stays processing until reclaimed: id=%s err=%v", id, err)
	return err
}

func (d *Dispatcher) loopTick(ctx context.Context) bool {
	processed, err := d.Tick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrStoreUnavailable):
		d.log.Warnf("store unavailable, skipping tick: err=%v", err)
	case errors.Is(err, ErrNotClaimed):
		d.log.Warnf("outcome dropped, job reclaimed meanwhile: err=%v", err)
	default:
		d.log.Errorf("tick failed: err=%v", err)
	}
	return processed
}

func (d *Dispatcher) reclaim(ctx context.Context) {
	now := d.now()
	n, err := d.store.ReclaimStale(ctx, now.Add(-d.cfg.VisibilityTimeout), now)
	if err != nil {
		d.log.Warnf("reclaimer: failed err=%v", err)
		return
	}
	if n > 0 {
		d.log.Warnf("reclaimer: returned %d stale jobs to pending", n)
	}
}

func (d *Dispatcher) executor() ExecFunc {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handler == nil {
		d.handler = chain(d.exec, d.mws)
	}
	return d.handler
}

func (d *Dispatcher) emit(ev Event) {
	switch ev.To {
	case StateProcessing:
		d.log.Debugf("claimed: id=%s attempts=%d", ev.JobID, ev.Attempts)
	case StateCompleted:
		d.log.Infof("completed: id=%s attempts=%d", ev.JobID, ev.Attempts)
	case StateFailed:
		d.log.Warnf("failed, retrying: id=%s attempts=%d next_run_at=%s err=%s", ev.JobID, ev.Attempts, ev.NextRunAt.Format(time.RFC3339), ev.Reason)
	case StateDead:
		d.log.Errorf("dead: id=%s attempts=%d err=%s", ev.JobID, ev.Attempts, ev.Reason)
	}
	if d.cfg.OnEvent != nil {
		d.cfg.OnEvent(ev)
	}
}

func outcomeReason(err error) string {
	var ee *ExecutionError
	if errors.As(err, &ee) && ee.Reason != "" {
		return ee.Reason
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error"
}

// reclaimInterval runs the reclaimer a few times per visibility window.
func reclaimInterval(vt time.Duration) time.Duration {
	if vt <= 0 {
		return 0
	}
	iv := vt / 4
	if iv < 100*time.Millisecond {
		iv = 100 * time.Millisecond
	}
	return iv
}

// rtLogger adapts the public Logger to the internal runtime logger interface.
type rtLogger struct{ Logger }

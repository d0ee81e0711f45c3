package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "drafter/pkg/logx"
)

// Job is a maintenance task. The context is cancelled when the runner stops
// or the job exceeds its timeout.
type Job func(ctx context.Context) error

// Runner triggers named jobs on their schedules.
//
// Overlapping runs of the same job are skipped and panics are recovered, both
// via cron job wrappers.
type Runner struct {
	log     logx.Logger
	parser  cron.Parser
	c       *cron.Cron
	timeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// NewRunner creates a stopped runner. A nil loc means time.Local.
func NewRunner(loc *time.Location, timeout time.Duration, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		log:     log,
		parser:  parser,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		entries: map[string]cron.EntryID{},
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Add registers (or replaces) the job called name.
func (r *Runner) Add(name, raw string, job Job) error {
	spec, err := Parse(raw)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	sched, err := r.parser.Parse(spec.Expr())
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.entries[name]; ok {
		r.c.Remove(id)
	}
	r.entries[name] = r.c.Schedule(sched, cron.FuncJob(func() { r.run(name, job) }))
	r.log.Debug("job scheduled", logx.String("job", name), logx.String("schedule", spec.Expr()))
	return nil
}

// Remove unregisters name. Unknown names are ignored.
func (r *Runner) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.entries[name]; ok {
		r.c.Remove(id)
		delete(r.entries, name)
	}
}

// Next reports the next activation of name.
func (r *Runner) Next(name string) (time.Time, bool) {
	r.mu.Lock()
	id, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	e := r.c.Entry(id)
	if !e.Valid() {
		return time.Time{}, false
	}
	return e.Next, true
}

func (r *Runner) Start() { r.c.Start() }

// Stop prevents new runs, cancels running jobs and waits for them until ctx ends.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.c.Stop()
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes name synchronously, outside its schedule.
func (r *Runner) RunNow(name string, job Job) {
	r.run(name, job)
}

func (r *Runner) run(name string, job Job) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := job(ctx)
	took := time.Since(start)
	if err != nil {
		r.log.Warn("job failed", logx.String("job", name), logx.Duration("took", took), logx.Err(err))
		return
	}
	r.log.Debug("job done", logx.String("job", name), logx.Duration("took", took))
}

// cronLogger adapts logx to cron.Logger for the Recover/SkipIfStillRunning wrappers.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}

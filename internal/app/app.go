package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"drafter/internal/config"
	"drafter/internal/eventbus"
	"drafter/internal/observability/debugsrv"
	"drafter/internal/perspective"
	"drafter/internal/schedule"
	"drafter/internal/storage"
	"drafter/internal/supervisor"
	"drafter/pkg/eventbuffer"
	logx "drafter/pkg/logx"
)

const (
	storeTimeout = 5 * time.Second
	pruneJob     = "history.prune"
)

// Options tune New. The zero value runs the TUI with the system clock.
type Options struct {
	// Headless allows console logging and notifies systemd on start/stop.
	Headless bool
	// Clock drives the coalescing buffers. nil means the system clock.
	Clock eventbuffer.Clock
}

type App struct {
	opts  Options
	clock eventbuffer.Clock

	cfgm *config.Manager
	sup  *supervisor.Supervisor
	jobs *schedule.Runner

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	calc  *perspective.Calculator
	debug *debugsrv.Service

	mu      sync.RWMutex
	session Session
	last    Result
	savedAt time.Time

	bufMu   sync.RWMutex
	bufs    *buffers
	retired BufferStats

	seq        atomic.Uint64
	saves      atomic.Uint64
	saveErrors atomic.Uint64
	stopped    atomic.Bool
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.NewService(mapLogConfig(cfg, opts.Headless))
	log = log.With(logx.Component("app"))

	clock := opts.Clock
	if clock == nil {
		clock = eventbuffer.SystemClock()
	}

	sess, err := sessionFromConfig(cfg.Drafting)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	calc, err := perspective.NewCalculator(128)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		opts:    opts,
		clock:   clock,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		calc:    calc,
		session: sess,
	}
	a.debug = debugsrv.New(log.With(logx.Component("debug")), func() any { return a.Stats() })

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.Component("storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		a.store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
		a.restoreSession()
	}

	bs, err := resolveBuffers(cfg)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	if a.bufs, err = a.newBuffers(bs); err != nil {
		a.closeResources()
		return nil, err
	}

	loc, err := historyLocation(cfg.History)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.jobs = schedule.NewRunner(loc, time.Minute, log.With(logx.Component("schedule")))
	return a, nil
}

func (a *App) restoreSession() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	st, ok, err := a.store.LoadSession(ctx)
	if err != nil {
		a.log.Warn("session restore failed; using config defaults", logx.Err(err))
		return
	}
	if !ok {
		return
	}
	a.session = a.session.restore(st)
	a.savedAt = st.UpdatedAt
	a.log.Info("session restored", logx.Time("saved_at", st.UpdatedAt))
}

func historyLocation(h config.HistoryConfig) (*time.Location, error) {
	tz := strings.TrimSpace(h.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("history.timezone: %w", err)
	}
	return loc, nil
}

func (a *App) Bus() eventbus.Bus        { return a.bus }
func (a *App) Logs() *logx.Service      { return a.logs }
func (a *App) Logger() logx.Logger      { return a.log }
func (a *App) Config() *config.Config   { return a.cfgm.Get() }
func (a *App) Clock() eventbuffer.Clock { return a.clock }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Reject reloads whose buffers cannot be built before they are committed.
	a.cfgm.SetLogger(a.log.With(logx.Component("config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		bs, err := resolveBuffers(cfg)
		if err != nil {
			return err
		}
		if _, err := a.newBuffers(bs); err != nil {
			return err
		}
		_, _, err = mapStorageConfig(cfg)
		return err
	})

	a.jobs.Start()
	a.applyHistory(a.cfgm.Get())

	a.applyDebug(ctx, a.cfgm.Get().Debug)

	// First table without waiting for input.
	a.recompute()

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if a.opts.Headless {
		a.notify(sdReady)
	}
	a.log.Info("app started")
	return nil
}

// Set updates one session field and schedules a recompute and a save.
func (a *App) Set(field, raw string) error {
	if a.stopped.Load() {
		return ErrStopped
	}
	a.mu.Lock()
	next, err := a.session.apply(field, raw)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.session = next
	a.mu.Unlock()

	a.bus.Publish(eventbus.Event{
		Type: eventbus.InputChanged,
		Time: a.clock.Now(),
		Data: InputChange{Field: strings.ToLower(strings.TrimSpace(field)), Value: raw},
	})

	a.bufMu.RLock()
	b := a.bufs
	a.bufMu.RUnlock()
	b.requestRecompute()
	if a.store != nil {
		b.persist.Request()
	}
	return nil
}

// InputChange is the payload of eventbus.InputChanged.
type InputChange struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Session returns a copy of the current input.
func (a *App) Session() Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// LastResult returns the most recent recompute outcome.
func (a *App) LastResult() Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Pending reports whether a recompute is scheduled.
func (a *App) Pending() bool {
	a.bufMu.RLock()
	defer a.bufMu.RUnlock()
	return a.bufs.recompute.Pending()
}

// Flush runs any scheduled recompute and save immediately.
func (a *App) Flush() {
	a.bufMu.RLock()
	b := a.bufs
	a.bufMu.RUnlock()
	b.flush()
}

func (a *App) actionPanicked(p any) {
	a.bus.Publish(eventbus.Event{
		Type: eventbus.ResultReady,
		Time: a.clock.Now(),
		Data: Result{Seq: a.seq.Load(), At: a.clock.Now(), Session: a.Session(), Err: fmt.Errorf("internal error: %v", p)},
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if !a.stopped.CompareAndSwap(false, true) {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.opts.Headless {
		a.notify(sdStopping)
	}

	if a.sup != nil {
		a.sup.Cancel()
	}

	// Save edits still waiting in the persist buffer; drop pending redraws.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		a.stopStep(ctx, name, max, fn)
	}
	step("buffers", storeTimeout, func(context.Context) error {
		a.bufMu.RLock()
		b := a.bufs
		a.bufMu.RUnlock()
		if b.maxWait != nil {
			b.maxWait.Cancel()
		}
		b.recompute.Cancel()
		if b.persist.Flush() {
			a.log.Debug("pending save flushed on stop")
		}
		return nil
	})
	step("schedule", 2*time.Second, a.jobs.Stop)
	step("debug", 2*time.Second, a.debug.Stop)
	if a.sup != nil {
		step("supervisor", 2*time.Second, a.sup.Wait)
	}
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// stopStep runs one shutdown step bounded by max and the caller's deadline,
// so a stuck component cannot stall the whole stop.
func (a *App) stopStep(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name), logx.Err(stepCtx.Err()), logx.Duration("elapsed", time.Since(start)))
	}
}

func (a *App) closeResources() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

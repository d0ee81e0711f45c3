package eventbuffer

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	logx "drafter/pkg/logx"
)

var (
	ErrInvalidDelay = errors.New("eventbuffer: delay must be >= 0")
	ErrNilAction    = errors.New("eventbuffer: action is nil")
	ErrInvalidMode  = errors.New("eventbuffer: invalid mode")
)

// Buffer runs an action once per burst of Request calls.
//
// The zero value is not usable; use New.
type Buffer struct {
	delay   time.Duration
	mode    Mode
	action  func()
	name    string
	clock   Clock
	log     logx.Logger
	onPanic func(any)

	mu    sync.Mutex
	wait  *wait // nil while idle
	stats Stats

	// runMu serializes action invocations.
	runMu sync.Mutex
}

// wait is the state of a pending batch. A Buffer holds at most one.
type wait struct {
	timer    Timer
	requests uint64
	// extension is the time of the latest request that arrived while this wait
	// was pending (Extend mode only). nil means no extension is pending.
	extension *time.Time
}

// Stats are counters since construction.
type Stats struct {
	Requests   uint64 `json:"requests"`
	Coalesced  uint64 `json:"coalesced"`
	Extensions uint64 `json:"extensions"`
	Fires      uint64 `json:"fires"`
	Flushes    uint64 `json:"flushes"`
	Cancels    uint64 `json:"cancels"`
	Panics     uint64 `json:"panics"`
}

type Option func(*Buffer)

// WithClock replaces the system clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(b *Buffer) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithLogger replaces the default logger, which writes errors to stderr.
func WithLogger(log logx.Logger) Option {
	return func(b *Buffer) { b.log = log }
}

// WithName labels log lines emitted by the buffer.
func WithName(name string) Option {
	return func(b *Buffer) { b.name = name }
}

// WithPanicHandler receives the recovered value when the action panics.
// The handler runs after the panic has been logged.
//
// Without a handler, a panic during Flush is re-raised on the caller after the
// buffer is back to idle. A panic on the timer goroutine is logged only.
func WithPanicHandler(fn func(any)) Option {
	return func(b *Buffer) { b.onPanic = fn }
}

// New validates its configuration and returns an idle Buffer.
func New(delay time.Duration, mode Mode, action func(), opts ...Option) (*Buffer, error) {
	if delay < 0 {
		return nil, fmt.Errorf("%w (got %s)", ErrInvalidDelay, delay)
	}
	if action == nil {
		return nil, ErrNilAction
	}
	if !mode.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	b := &Buffer{
		delay:  delay,
		mode:   mode,
		action: action,
		clock:  SystemClock(),
	}
	for _, o := range opts {
		o(b)
	}
	if b.log.IsZero() {
		b.log = logx.NewConsole("error")
	}
	if b.name != "" {
		b.log = b.log.With(logx.String("buffer", b.name))
	}
	return b, nil
}

func (b *Buffer) Delay() time.Duration { return b.delay }
func (b *Buffer) Mode() Mode           { return b.mode }

// Pending reports whether a wait is outstanding.
func (b *Buffer) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wait != nil
}

func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Request asks for the action to run. It never blocks.
//
// A request that acquires the buffer before a firing wait has cleared its
// state belongs to that batch; a later one starts the next batch.
func (b *Buffer) Request() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Requests++
	if b.wait == nil {
		b.armLocked(&wait{requests: 1}, b.delay)
		return
	}

	w := b.wait
	w.requests++
	b.stats.Coalesced++
	if b.mode != Extend {
		return
	}
	now := b.clock.Now()
	if w.extension == nil || now.After(*w.extension) {
		w.extension = &now
	}
	b.stats.Extensions++
}

// Cancel voids the pending wait without running the action and reports
// whether one was pending. No firing happens for requests made before Cancel.
func (b *Buffer) Cancel() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.wait
	if w == nil {
		return false
	}
	// A callback that already started will see b.wait != w and bail out.
	w.timer.Stop()
	b.wait = nil
	b.stats.Cancels++
	b.log.Debug("wait cancelled", logx.Uint64("requests", w.requests))
	return true
}

// Flush runs the action immediately if a wait is pending and reports whether
// it did. The action must not call Flush on its own buffer.
func (b *Buffer) Flush() bool {
	b.mu.Lock()
	w := b.wait
	if w == nil {
		b.mu.Unlock()
		return false
	}
	w.timer.Stop()
	b.wait = nil
	b.stats.Fires++
	b.stats.Flushes++
	b.mu.Unlock()

	b.log.Debug("flushing", logx.Uint64("requests", w.requests))
	b.invoke(true)
	return true
}

func (b *Buffer) armLocked(w *wait, d time.Duration) {
	if d < 0 {
		d = 0
	}
	b.wait = w
	w.timer = b.clock.AfterFunc(d, func() { b.expire(w) })
}

// expire runs on the timer goroutine. Extensions re-arm a new timer for the
// remaining time instead of looping here, so stack depth stays constant.
func (b *Buffer) expire(w *wait) {
	b.mu.Lock()
	if b.wait != w {
		// cancelled or flushed meanwhile
		b.mu.Unlock()
		return
	}
	if w.extension != nil {
		remaining := b.delay - b.clock.Now().Sub(*w.extension)
		w.extension = nil
		b.armLocked(w, remaining)
		b.mu.Unlock()
		b.log.Trace("wait extended", logx.Duration("remaining", remaining))
		return
	}
	b.wait = nil
	b.stats.Fires++
	b.mu.Unlock()

	b.log.Debug("firing", logx.Uint64("requests", w.requests), logx.String("mode", b.mode.String()))
	b.invoke(false)
}

// invoke runs the action. reraise hands an unhandled panic back to the caller.
func (b *Buffer) invoke(reraise bool) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		b.mu.Lock()
		b.stats.Panics++
		b.mu.Unlock()
		b.log.Error("action panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		if b.onPanic != nil {
			b.onPanic(r)
			return
		}
		if reraise {
			panic(r)
		}
	}()
	b.action()
}

package app

import (
	"drafter/internal/config"
	"drafter/pkg/eventbuffer"
	logx "drafter/pkg/logx"
)

// bufferSettings is the resolved buffers section.
type bufferSettings struct {
	recompute config.BufferSettings
	persist   config.BufferSettings
}

func resolveBuffers(cfg *config.Config) (bufferSettings, error) {
	r, err := cfg.Buffers.Recompute.Resolve("buffers.recompute")
	if err != nil {
		return bufferSettings{}, err
	}
	p, err := cfg.Buffers.Persist.Resolve("buffers.persist")
	if err != nil {
		return bufferSettings{}, err
	}
	return bufferSettings{recompute: r, persist: p}, nil
}

// buffers is one generation of the app's coalescing buffers. A config reload
// replaces the whole set.
//
// recompute batches table refreshes. When max_wait is set, maxWait is a
// throttle buffer started by the same requests; its firing flushes recompute,
// so a steady stream of edits in extend mode still refreshes every max_wait.
type buffers struct {
	settings  bufferSettings
	recompute *eventbuffer.Buffer
	maxWait   *eventbuffer.Buffer
	persist   *eventbuffer.Buffer
}

func (a *App) newBuffers(bs bufferSettings) (*buffers, error) {
	b := &buffers{settings: bs}
	common := []eventbuffer.Option{
		eventbuffer.WithClock(a.clock),
		eventbuffer.WithLogger(a.log),
		eventbuffer.WithPanicHandler(a.actionPanicked),
	}
	opts := func(name string) []eventbuffer.Option {
		return append(append([]eventbuffer.Option(nil), common...), eventbuffer.WithName(name))
	}

	var err error
	b.recompute, err = eventbuffer.New(bs.recompute.Delay, bs.recompute.Mode, func() {
		if b.maxWait != nil {
			b.maxWait.Cancel()
		}
		a.recompute()
	}, opts("recompute")...)
	if err != nil {
		return nil, err
	}

	if mw := bs.recompute.MaxWait; mw > 0 {
		b.maxWait, err = eventbuffer.New(mw, eventbuffer.Throttle, func() {
			if b.recompute.Flush() {
				a.log.Debug("recompute forced by max_wait", logx.Duration("max_wait", mw))
			}
		}, opts("recompute.max_wait")...)
		if err != nil {
			return nil, err
		}
	}

	b.persist, err = eventbuffer.New(bs.persist.Delay, bs.persist.Mode, a.persist, opts("persist")...)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *buffers) requestRecompute() {
	b.recompute.Request()
	if b.maxWait != nil {
		b.maxWait.Request()
	}
}

// flush runs pending actions now. Persist goes last so it sees the latest result.
func (b *buffers) flush() {
	if b.maxWait != nil {
		b.maxWait.Cancel()
	}
	b.recompute.Flush()
	b.persist.Flush()
}

// retire cancels all waits and reports which actions were pending.
func (b *buffers) retire() (recompute, persist bool) {
	if b.maxWait != nil {
		b.maxWait.Cancel()
	}
	return b.recompute.Cancel(), b.persist.Cancel()
}

// BufferStats aggregates eventbuffer counters across buffer generations.
type BufferStats struct {
	Recompute eventbuffer.Stats `json:"recompute"`
	MaxWait   eventbuffer.Stats `json:"max_wait"`
	Persist   eventbuffer.Stats `json:"persist"`
}

func (b *buffers) stats() BufferStats {
	s := BufferStats{
		Recompute: b.recompute.Stats(),
		Persist:   b.persist.Stats(),
	}
	if b.maxWait != nil {
		s.MaxWait = b.maxWait.Stats()
	}
	return s
}

func (s BufferStats) add(o BufferStats) BufferStats {
	return BufferStats{
		Recompute: addStats(s.Recompute, o.Recompute),
		MaxWait:   addStats(s.MaxWait, o.MaxWait),
		Persist:   addStats(s.Persist, o.Persist),
	}
}

func addStats(a, b eventbuffer.Stats) eventbuffer.Stats {
	return eventbuffer.Stats{
		Requests:   a.Requests + b.Requests,
		Coalesced:  a.Coalesced + b.Coalesced,
		Extensions: a.Extensions + b.Extensions,
		Fires:      a.Fires + b.Fires,
		Flushes:    a.Flushes + b.Flushes,
		Cancels:    a.Cancels + b.Cancels,
		Panics:     a.Panics + b.Panics,
	}
}

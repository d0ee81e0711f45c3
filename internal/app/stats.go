package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"drafter/pkg/eventbuffer"
)

// Stats is a point-in-time view of the app counters.
type Stats struct {
	Buffers     BufferStats `json:"buffers"`
	Pending     bool        `json:"pending"`
	Results     uint64      `json:"results"`
	Saves       uint64      `json:"saves"`
	SaveErrors  uint64      `json:"save_errors"`
	CacheHits   uint64      `json:"cache_hits"`
	CacheMisses uint64      `json:"cache_misses"`
	BusDropped  uint64      `json:"bus_dropped"`
	SavedAt     time.Time   `json:"saved_at"`
	Storage     bool        `json:"storage"`
}

func (a *App) Stats() Stats {
	a.bufMu.RLock()
	bs := a.retired.add(a.bufs.stats())
	pending := a.bufs.recompute.Pending()
	a.bufMu.RUnlock()

	a.mu.RLock()
	savedAt := a.savedAt
	a.mu.RUnlock()

	return Stats{
		Buffers:     bs,
		Pending:     pending,
		Results:     a.seq.Load(),
		Saves:       a.saves.Load(),
		SaveErrors:  a.saveErrors.Load(),
		CacheHits:   a.calc.Hits(),
		CacheMisses: a.calc.Misses(),
		BusDropped:  a.bus.Dropped(),
		SavedAt:     savedAt,
		Storage:     a.store != nil,
	}
}

// Format renders the stats for humans. now anchors relative times.
func (s Stats) Format(now time.Time) string {
	var b strings.Builder
	line := func(name string, st eventbuffer.Stats) {
		fmt.Fprintf(&b, "%-10s requests %s, coalesced %s, fires %s (flushed %s), cancels %s, panics %s\n",
			name,
			humanize.Comma(int64(st.Requests)),
			humanize.Comma(int64(st.Coalesced)),
			humanize.Comma(int64(st.Fires)),
			humanize.Comma(int64(st.Flushes)),
			humanize.Comma(int64(st.Cancels)),
			humanize.Comma(int64(st.Panics)),
		)
	}
	line("recompute", s.Buffers.Recompute)
	if s.Buffers.MaxWait.Requests > 0 {
		line("max_wait", s.Buffers.MaxWait)
	}
	line("persist", s.Buffers.Persist)

	fmt.Fprintf(&b, "results    %s (cache %s hits / %s misses)\n",
		humanize.Comma(int64(s.Results)), humanize.Comma(int64(s.CacheHits)), humanize.Comma(int64(s.CacheMisses)))
	switch {
	case !s.Storage:
		b.WriteString("storage    disabled\n")
	case s.SavedAt.IsZero():
		fmt.Fprintf(&b, "storage    never saved (%s errors)\n", humanize.Comma(int64(s.SaveErrors)))
	default:
		fmt.Fprintf(&b, "storage    %s saves, last %s (%s errors)\n",
			humanize.Comma(int64(s.Saves)), humanize.RelTime(s.SavedAt, now, "ago", "from now"), humanize.Comma(int64(s.SaveErrors)))
	}
	if s.Pending {
		b.WriteString("recompute pending\n")
	}
	return b.String()
}

package app

import (
	"context"
	"strings"

	"drafter/internal/config"
	"drafter/internal/eventbus"
	"drafter/internal/storage"
	logx "drafter/pkg/logx"
)

// recompute is the action of the recompute buffer.
func (a *App) recompute() {
	sess := a.Session()
	res := Result{
		Seq:     a.seq.Add(1),
		At:      a.clock.Now(),
		Session: sess,
	}
	in, err := sess.Input()
	if err == nil {
		points, terr := a.calc.Table(in)
		if terr != nil {
			err = terr
		} else {
			res.Rows = formatRows(points, sess.Notation)
		}
	}
	res.Err = err

	a.mu.Lock()
	a.last = res
	a.mu.Unlock()

	if err != nil {
		a.log.Debug("recompute: invalid input", logx.Uint64("seq", res.Seq), logx.Err(err))
	} else {
		a.log.Debug("recompute done", logx.Uint64("seq", res.Seq), logx.Int("rows", len(res.Rows)))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ResultReady, Time: res.At, Data: res})
}

// persist is the action of the persist buffer.
func (a *App) persist() {
	if a.store == nil {
		return
	}
	sess := a.Session()
	now := a.clock.Now()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	stored := sess.stored()
	stored.UpdatedAt = now
	if err := a.store.SaveSession(ctx, stored); err != nil {
		a.saveErrors.Add(1)
		a.log.Warn("session save failed", logx.Err(err))
		return
	}
	a.saves.Add(1)
	a.mu.Lock()
	a.savedAt = now
	a.mu.Unlock()

	if cfg := a.cfgm.Get(); cfg != nil && cfg.History.Enabled {
		entry := storage.HistoryEntry{At: now, Session: stored}
		if in, err := sess.Input(); err == nil {
			if points, err := a.calc.Table(in); err == nil {
				for _, p := range points {
					if p.Requested {
						entry.Valid = true
						entry.Distance = p.Distance
						break
					}
				}
			}
		}
		if err := a.store.AppendHistory(ctx, entry); err != nil {
			a.saveErrors.Add(1)
			a.log.Warn("history append failed", logx.Err(err))
		}
	}

	a.log.Debug("session saved")
	a.bus.Publish(eventbus.Event{Type: eventbus.SessionSaved, Time: now, Data: stored})
}

// pruneHistory keeps the newest history.keep entries.
func (a *App) pruneHistory(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	keep := a.cfgm.Get().History.Keep
	removed, err := a.store.PruneHistory(ctx, keep)
	if err != nil {
		return err
	}
	if removed > 0 {
		a.log.Info("history pruned", logx.Int("removed", removed), logx.Int("keep", keep))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.HistoryPruned, Time: a.clock.Now(), Data: removed})
	return nil
}

// PruneNow runs the pruning job outside its schedule.
func (a *App) PruneNow() {
	a.jobs.RunNow(pruneJob, a.pruneHistory)
}

// History returns up to limit saved entries, newest first.
func (a *App) History(ctx context.Context, limit int) ([]storage.HistoryEntry, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.RecentHistory(ctx, limit)
}

// applyHistory (re)registers the pruning job.
func (a *App) applyHistory(cfg *config.Config) {
	a.jobs.Remove(pruneJob)
	h := cfg.History
	if a.store == nil || !h.Enabled || strings.TrimSpace(h.PruneSchedule) == "" {
		return
	}
	if err := a.jobs.Add(pruneJob, h.PruneSchedule, a.pruneHistory); err != nil {
		a.log.Warn("history pruning not scheduled", logx.Err(err))
		return
	}
	if next, ok := a.jobs.Next(pruneJob); ok {
		a.log.Debug("history pruning scheduled", logx.String("schedule", h.PruneSchedule), logx.Time("next", next))
	}
}

package app

import (
	"context"
	"strings"
	"time"

	"drafter/internal/config"
	"drafter/internal/eventbus"
	"drafter/internal/observability/debugsrv"
	logx "drafter/pkg/logx"
)

// reloadLoop applies configs published by the config watcher.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Keep only the latest config when several queued up.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			sections := a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
			a.bus.Publish(eventbus.Event{Type: eventbus.ConfigApplied, Time: a.clock.Now(), Data: sections})
		}
	}
}

// applyConfig moves the running app from oldCfg to newCfg and returns the
// changed sections.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) []string {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return nil
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if config.Changed(sections, "logging") {
		a.logs.Apply(mapLogConfig(newCfg, a.opts.Headless))
	}

	if config.Changed(sections, "buffers") {
		if err := a.rebuildBuffers(newCfg); err != nil {
			a.log.Warn("invalid buffers config; keeping previous", logx.Err(err))
		}
	}

	if config.Changed(sections, "drafting") {
		a.applyDrafting(oldCfg.Drafting, newCfg.Drafting)
	}

	if config.Changed(sections, "history") {
		if oldCfg.History.Timezone != newCfg.History.Timezone {
			a.log.Warn("history.timezone changed; restart required for changes to take effect")
		}
		a.applyHistory(newCfg)
	}

	if config.Changed(sections, "debug") {
		a.applyDebug(context.Background(), newCfg.Debug)
	}

	if config.Changed(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	a.log.Info("config reloaded", fields...)
	return sections
}

// rebuildBuffers swaps in buffers built from cfg. Work pending in the old
// generation is requested again on the new one, so no edit is lost.
func (a *App) rebuildBuffers(cfg *config.Config) error {
	bs, err := resolveBuffers(cfg)
	if err != nil {
		return err
	}
	a.bufMu.RLock()
	same := a.bufs.settings == bs
	a.bufMu.RUnlock()
	if same {
		return nil
	}
	next, err := a.newBuffers(bs)
	if err != nil {
		return err
	}

	a.bufMu.Lock()
	prev := a.bufs
	a.bufs = next
	a.bufMu.Unlock()

	recompute, persist := prev.retire()

	a.bufMu.Lock()
	a.retired = a.retired.add(prev.stats())
	a.bufMu.Unlock()

	if recompute {
		next.requestRecompute()
	}
	if persist {
		next.persist.Request()
	}
	a.log.Info("buffers rebuilt",
		logx.Duration("recompute.delay", bs.recompute.Delay),
		logx.String("recompute.mode", bs.recompute.Mode.String()),
		logx.Duration("recompute.max_wait", bs.recompute.MaxWait),
		logx.Duration("persist.delay", bs.persist.Delay),
		logx.String("persist.mode", bs.persist.Mode.String()),
	)
	return nil
}

// applyDrafting takes over notation and steps from a reloaded config. The
// typed distances belong to the user and are left alone.
func (a *App) applyDrafting(oldD, newD config.DraftingConfig) {
	n, err := newD.NotationOf()
	if err != nil {
		a.log.Warn("invalid drafting config; keeping previous", logx.Err(err))
		return
	}
	a.mu.Lock()
	if oldD.Notation != newD.Notation {
		a.session.Notation.Style = n.Style
	}
	a.session.Notation.Digits = n.Digits
	a.session.Notation.Denominator = n.Denominator
	if oldD.Steps != newD.Steps {
		a.session.Steps = newD.Steps
	}
	a.mu.Unlock()

	a.bufMu.RLock()
	b := a.bufs
	a.bufMu.RUnlock()
	b.requestRecompute()
}

// applyDebug starts, restarts or stops the debug endpoint. Failure to bind is
// not fatal.
func (a *App) applyDebug(ctx context.Context, d config.DebugConfig) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := a.debug.Reconfigure(ctx, debugsrv.Config{
		Enabled:       d.Enabled,
		Addr:          d.Addr,
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
	})
	if err != nil {
		a.log.Warn("debug server unavailable", logx.Err(err))
	}
}

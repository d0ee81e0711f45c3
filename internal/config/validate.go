package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"drafter/internal/fraction"
	"drafter/internal/observability/debugsrv"
	"drafter/internal/perspective"
	"drafter/internal/schedule"
	"drafter/pkg/eventbuffer"
)

// BufferSettings is a validated BufferConfig.
type BufferSettings struct {
	Delay   time.Duration
	Mode    eventbuffer.Mode
	MaxWait time.Duration
}

// Resolve parses the buffer config. path prefixes error messages.
func (b BufferConfig) Resolve(path string) (BufferSettings, error) {
	delay, err := ParseDurationField(path+".delay", b.Delay)
	if err != nil {
		return BufferSettings{}, err
	}
	mode, err := eventbuffer.ParseMode(b.Mode)
	if err != nil {
		return BufferSettings{}, fmt.Errorf("%s.mode: %w", path, err)
	}
	maxWait, err := ParseDurationField(path+".max_wait", b.MaxWait)
	if err != nil {
		return BufferSettings{}, err
	}
	if maxWait > 0 && maxWait < delay {
		return BufferSettings{}, fmt.Errorf("%s.max_wait: must be >= delay (%s < %s)", path, maxWait, delay)
	}
	return BufferSettings{Delay: delay, Mode: mode, MaxWait: maxWait}, nil
}

// NotationOf returns the fraction.Notation described by the drafting block.
func (d DraftingConfig) NotationOf() (fraction.Notation, error) {
	style, err := fraction.ParseStyle(d.Notation)
	if err != nil {
		return fraction.Notation{}, fmt.Errorf("drafting.notation: %w", err)
	}
	return fraction.Notation{Style: style, Digits: d.Digits, Denominator: d.Denominator}, nil
}

// Validate checks every field that is parsed later, so bad configs fail at
// load time instead of on first use.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, err := cfg.Buffers.Recompute.Resolve("buffers.recompute"); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Buffers.Persist.Resolve("buffers.persist"); err != nil {
		errs = append(errs, err)
	}

	d := cfg.Drafting
	for _, f := range []struct{ path, raw string }{
		{"drafting.far", d.Far},
		{"drafting.near", d.Near},
		{"drafting.progress", d.Progress},
	} {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		if _, err := fraction.Parse(f.raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.path, err))
		}
	}
	if d.Steps < 0 || d.Steps > perspective.MaxSteps {
		errs = append(errs, fmt.Errorf("drafting.steps: must be within [0, %d]", perspective.MaxSteps))
	}
	if d.Denominator < 0 || d.Digits < 0 {
		errs = append(errs, errors.New("drafting: digits and denominator must be >= 0"))
	}
	if _, err := d.NotationOf(); err != nil {
		errs = append(errs, err)
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", s.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	h := cfg.History
	if h.Keep < 0 {
		errs = append(errs, errors.New("history.keep: must be >= 0"))
	}
	if h.Enabled && strings.TrimSpace(h.PruneSchedule) != "" {
		if _, err := schedule.Parse(h.PruneSchedule); err != nil {
			errs = append(errs, fmt.Errorf("history.prune_schedule: %w", err))
		}
	}
	if tz := strings.TrimSpace(h.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("history.timezone: %w", err))
		}
	}

	if dbg := cfg.Debug; dbg.Enabled {
		err := debugsrv.CheckAddr(debugsrv.Config{Addr: dbg.Addr, Token: dbg.Token, AllowInsecure: dbg.AllowInsecure})
		if err != nil {
			errs = append(errs, fmt.Errorf("debug.addr: %w", err))
		}
	}

	return errors.Join(errs...)
}

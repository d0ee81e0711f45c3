package config

import (
	"reflect"
	"sort"
	"strings"

	logx "drafter/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and log fields
// describing their new values.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	fields := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}

	if oldCfg.Buffers != newCfg.Buffers {
		changed = append(changed, "buffers")
		for _, b := range []struct {
			name string
			cfg  BufferConfig
		}{
			{"recompute", newCfg.Buffers.Recompute},
			{"persist", newCfg.Buffers.Persist},
		} {
			fields = append(fields,
				logx.String("buffers."+b.name+".delay", strings.TrimSpace(b.cfg.Delay)),
				logx.String("buffers."+b.name+".mode", strings.TrimSpace(b.cfg.Mode)),
			)
			if mw := strings.TrimSpace(b.cfg.MaxWait); mw != "" {
				fields = append(fields, logx.String("buffers."+b.name+".max_wait", mw))
			}
		}
	}

	if oldCfg.Drafting != newCfg.Drafting {
		changed = append(changed, "drafting")
		fields = append(fields,
			logx.String("drafting.notation", newCfg.Drafting.Notation),
			logx.Int("drafting.steps", newCfg.Drafting.Steps),
		)
	}

	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		fields = append(fields,
			logx.Bool("history.enabled", newCfg.History.Enabled),
			logx.Int("history.keep", newCfg.History.Keep),
			logx.String("history.prune_schedule", strings.TrimSpace(newCfg.History.PruneSchedule)),
		)
	}

	// Nil means disabled.
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		var driver string
		var pathSet bool
		if s := newCfg.Storage; s != nil {
			driver = strings.TrimSpace(s.Driver)
			pathSet = strings.TrimSpace(s.Path) != ""
		}
		fields = append(fields,
			logx.String("storage.driver", driver),
			logx.Bool("storage.path_set", pathSet),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		fields = append(fields,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
		)
	}

	sort.Strings(changed)
	return changed, fields
}

// Changed reports whether section appears in a SummarizeChange result.
func Changed(sections []string, section string) bool {
	i := sort.SearchStrings(sections, section)
	return i < len(sections) && sections[i] == section
}

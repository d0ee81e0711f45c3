package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("150ms", "1s"). Omitted fields keep the
// values from Default().
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Buffers  BuffersConfig  `json:"buffers"`
	Drafting DraftingConfig `json:"drafting"`
	History  HistoryConfig  `json:"history"`
	Debug    DebugConfig    `json:"debug"`

	// Storage is optional; nil or driver "none" disables persistence.
	Storage *StorageConfig `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert feeds warnings into the TUI status line.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// BuffersConfig configures the two coalescing buffers of the app.
//
//   - recompute: redraw the table after input edits (default extend, 150ms)
//   - persist:   save the session to storage (default throttle, 1s)
type BuffersConfig struct {
	Recompute BufferConfig `json:"recompute"`
	Persist   BufferConfig `json:"persist"`
}

// BufferConfig configures one eventbuffer.Buffer.
//
// MaxWait bounds how long extend mode may postpone the action; empty or "0s"
// disables the bound.
type BufferConfig struct {
	Delay   string `json:"delay"`
	Mode    string `json:"mode"`
	MaxWait string `json:"max_wait,omitempty"`
}

// DraftingConfig holds the initial inputs and result notation.
type DraftingConfig struct {
	Far      string `json:"far"`
	Near     string `json:"near"`
	Progress string `json:"progress"`
	Steps    int    `json:"steps"`

	// Notation is "fixed" or "fraction".
	Notation    string `json:"notation"`
	Digits      int    `json:"digits,omitempty"`
	Denominator int    `json:"denominator,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./drafter.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// HistoryConfig controls the saved-session history and its pruning job.
type HistoryConfig struct {
	Enabled       bool   `json:"enabled"`
	Keep          int    `json:"keep"`
	PruneSchedule string `json:"prune_schedule,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

// DebugConfig controls the stats and pprof HTTP endpoint.
// A non-loopback Addr needs Token unless AllowInsecure is set.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Default returns the configuration used for omitted fields.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: false,
			File:    LoggingFile{Enabled: true, Path: "./drafter.log"},
			Alert:   LoggingAlert{Enabled: true, MinLevel: "warn", RatePerSec: 2},
		},
		Buffers: BuffersConfig{
			Recompute: BufferConfig{Delay: "150ms", Mode: "extend"},
			Persist:   BufferConfig{Delay: "1s", Mode: "throttle"},
		},
		Drafting: DraftingConfig{
			Far:         "4",
			Near:        "12",
			Progress:    "1/2",
			Steps:       8,
			Notation:    "fraction",
			Digits:      3,
			Denominator: 16,
		},
		History: HistoryConfig{
			Enabled:       true,
			Keep:          200,
			PruneSchedule: "@hourly",
		},
		Debug: DebugConfig{Addr: "127.0.0.1:6060"},
	}
}

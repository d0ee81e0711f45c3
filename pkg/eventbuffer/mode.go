package eventbuffer

import (
	"fmt"
	"strings"
)

// Mode selects how requests arriving during a pending wait are treated.
type Mode int

const (
	// Extend postpones the action until delay has passed since the last request.
	Extend Mode = iota
	// Throttle drops requests while a wait is pending.
	Throttle
)

func (m Mode) String() string {
	switch m {
	case Extend:
		return "extend"
	case Throttle:
		return "throttle"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) valid() bool { return m == Extend || m == Throttle }

// ParseMode accepts "extend" (aliases "debounce", "cumulative") and "throttle".
// An empty string selects Extend.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "extend", "debounce", "cumulative":
		return Extend, nil
	case "throttle":
		return Throttle, nil
	default:
		return 0, fmt.Errorf("%w: %q (use extend or throttle)", ErrInvalidMode, s)
	}
}

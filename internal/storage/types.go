package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Session is the user's current input, stored verbatim as typed.
type Session struct {
	Far       string    `json:"far"`
	Near      string    `json:"near"`
	Progress  string    `json:"progress"`
	Steps     int       `json:"steps"`
	Notation  string    `json:"notation"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry records one saved session and its headline result.
type HistoryEntry struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Session Session   `json:"session"`
	// Valid is false when the inputs did not parse; Distance is then 0.
	Valid    bool    `json:"valid"`
	Distance float64 `json:"distance"`
}

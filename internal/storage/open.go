package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	logx "drafter/pkg/logx"
)

// Store is the persistence API used by the app.
type Store interface {
	SaveSession(ctx context.Context, s Session) error
	// LoadSession returns ok=false when nothing was saved yet.
	LoadSession(ctx context.Context) (s Session, ok bool, err error)
	AppendHistory(ctx context.Context, e HistoryEntry) error
	// RecentHistory returns up to limit entries, newest first.
	RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
	// PruneHistory keeps the newest keep entries and reports how many were removed.
	PruneHistory(ctx context.Context, keep int) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Component("storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// fillEntry assigns an ID and timestamp when missing.
func fillEntry(e *HistoryEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = timeNow()
	}
}

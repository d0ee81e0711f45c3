package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "drafter/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveSession(ctx context.Context, sess Session) error {
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = timeNow()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session(id, far, near, progress, steps, notation, updated_at)
		 VALUES(1,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   far=excluded.far, near=excluded.near, progress=excluded.progress,
		   steps=excluded.steps, notation=excluded.notation, updated_at=excluded.updated_at`,
		sess.Far, sess.Near, sess.Progress, sess.Steps, sess.Notation, sess.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) LoadSession(ctx context.Context) (Session, bool, error) {
	var (
		sess Session
		ms   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT far, near, progress, steps, notation, updated_at FROM session WHERE id = 1`,
	).Scan(&sess.Far, &sess.Near, &sess.Progress, &sess.Steps, &sess.Notation, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	sess.UpdatedAt = time.UnixMilli(ms)
	return sess, true, nil
}

func (s *sqliteStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	fillEntry(&e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history(id, at, far, near, progress, steps, notation, valid, distance)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.ID, e.At.UnixMilli(), e.Session.Far, e.Session.Near, e.Session.Progress,
		e.Session.Steps, e.Session.Notation, boolInt(e.Valid), e.Distance,
	)
	return err
}

func (s *sqliteStore) RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, far, near, progress, steps, notation, valid, distance
		 FROM history ORDER BY at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e     HistoryEntry
			ms    int64
			valid int
		)
		if err := rows.Scan(&e.ID, &ms, &e.Session.Far, &e.Session.Near, &e.Session.Progress,
			&e.Session.Steps, &e.Session.Notation, &valid, &e.Distance); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(ms)
		e.Valid = valid != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneHistory(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM history WHERE seq NOT IN (
		   SELECT seq FROM history ORDER BY at DESC, seq DESC LIMIT ?
		 )`, keep)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug("history pruned", logx.Int64("removed", n), logx.Int("keep", keep))
	}
	return int(n), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

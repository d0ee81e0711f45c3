package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "drafter/pkg/logx"
)

var timeNow = time.Now

// fileStore keeps everything in plain files next to Config.Path.
//
// Files:
//   - <prefix>.session.json   (rewritten atomically via rename)
//   - <prefix>.history.jsonl  (append-only JSON Lines, compacted by PruneHistory)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	sessionPath string
	historyPath string
	historyFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:         log,
		sessionPath: prefix + ".session.json",
		historyPath: prefix + ".history.jsonl",
	}
	hf, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.historyFile = hf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return nil
	}
	err := s.historyFile.Close()
	s.historyFile = nil
	return err
}

func (s *fileStore) SaveSession(ctx context.Context, sess Session) error {
	_ = ctx
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = timeNow()
	}
	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return ErrClosed
	}
	return writeFileAtomic(s.sessionPath, b)
}

func (s *fileStore) LoadSession(ctx context.Context) (Session, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.sessionPath)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

func (s *fileStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	_ = ctx
	fillEntry(&e)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.historyFile).Encode(e)
}

func (s *fileStore) RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	_ = ctx
	s.mu.Lock()
	all, err := s.readHistoryLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]HistoryEntry, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *fileStore) PruneHistory(ctx context.Context, keep int) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return 0, ErrClosed
	}

	all, err := s.readHistoryLocked()
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(all) <= keep {
		return 0, nil
	}
	removed := len(all) - keep
	kept := all[removed:]

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	for _, e := range kept {
		if err := enc.Encode(e); err != nil {
			return 0, err
		}
	}

	// Swap the journal under the lock so appends never interleave with compaction.
	if err := s.historyFile.Close(); err != nil {
		s.log.Warn("history close before compaction failed", logx.Err(err))
	}
	s.historyFile = nil
	werr := writeFileAtomic(s.historyPath, []byte(buf.String()))
	hf, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	s.historyFile = hf
	if werr != nil {
		return 0, werr
	}
	return removed, nil
}

// readHistoryLocked returns entries oldest first, skipping corrupt lines.
func (s *fileStore) readHistoryLocked() ([]HistoryEntry, error) {
	f, err := os.Open(s.historyPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []HistoryEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e HistoryEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			s.log.Debug("skipping corrupt history line", logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

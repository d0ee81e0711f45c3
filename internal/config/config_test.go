package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drafter/pkg/eventbuffer"
)

func TestDecodeJSONKeepsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("drafter.json", []byte(`{"drafting":{"far":"3 1/2","steps":4}}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if cfg.Drafting.Far != "3 1/2" || cfg.Drafting.Steps != 4 {
		t.Fatalf("drafting not applied: %+v", cfg.Drafting)
	}
	if cfg.Drafting.Near != Default().Drafting.Near {
		t.Fatalf("omitted field lost its default: %q", cfg.Drafting.Near)
	}
	if cfg.Buffers.Recompute.Mode != "extend" {
		t.Fatalf("buffers default lost: %+v", cfg.Buffers)
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	src := `
buffers:
  recompute:
    delay: 80ms
    mode: extend
    max_wait: 1s
  persist:
    delay: 2s
    mode: throttle
storage:
  driver: sqlite
  path: ./drafter.db
history:
  enabled: true
  keep: 10
  prune_schedule: "*/30 * * * *"
`
	cfg, err := Decode("drafter.yaml", []byte(src))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	rs, err := cfg.Buffers.Recompute.Resolve("buffers.recompute")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if rs.Delay != 80*time.Millisecond || rs.Mode != eventbuffer.Extend || rs.MaxWait != time.Second {
		t.Fatalf("unexpected recompute settings %+v", rs)
	}
	ps, err := cfg.Buffers.Persist.Resolve("buffers.persist")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if ps.Mode != eventbuffer.Throttle || ps.Delay != 2*time.Second {
		t.Fatalf("unexpected persist settings %+v", ps)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage not decoded: %+v", cfg.Storage)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "unknown field", src: `{"bogus":1}`, want: "unknown field"},
		{name: "trailing data", src: `{} {}`, want: "trailing data"},
		{name: "negative delay", src: `{"buffers":{"recompute":{"delay":"-1s"}}}`, want: "buffers.recompute.delay"},
		{name: "bad mode", src: `{"buffers":{"persist":{"mode":"sometimes"}}}`, want: "buffers.persist.mode"},
		{name: "max wait below delay", src: `{"buffers":{"recompute":{"delay":"1s","max_wait":"10ms"}}}`, want: "max_wait"},
		{name: "bad far", src: `{"drafting":{"far":"1/0"}}`, want: "drafting.far"},
		{name: "bad notation", src: `{"drafting":{"notation":"roman"}}`, want: "drafting.notation"},
		{name: "storage path", src: `{"storage":{"driver":"file"}}`, want: "storage.path"},
		{name: "storage driver", src: `{"storage":{"driver":"redis","path":"x"}}`, want: "storage.driver"},
		{name: "prune schedule", src: `{"history":{"enabled":true,"prune_schedule":"whenever"}}`, want: "history.prune_schedule"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode("drafter.json", []byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestManagerLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "absent.json"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.Get() != cfg || cfg.Drafting.Steps != Default().Drafting.Steps {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Buffers.Persist.Delay = "5s"
	b.Storage = &StorageConfig{Driver: "file", Path: "./x"}

	changed, fields := SummarizeChange(&a, &b)
	if strings.Join(changed, ",") != "buffers,storage" {
		t.Fatalf("changed = %v", changed)
	}
	if len(fields) == 0 {
		t.Fatal("expected log fields")
	}
	if !Changed(changed, "storage") || Changed(changed, "logging") {
		t.Fatal("Changed mismatch")
	}
}

func TestWatchPublishesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drafter.json")
	if err := os.WriteFile(path, []byte(`{"drafting":{"steps":2}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	for i := 3; i <= 5; i++ {
		body := []byte(`{"drafting":{"steps":` + string(rune('0'+i)) + `}}`)
		if err := os.WriteFile(path, body, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	select {
	case cfg := <-sub:
		if cfg.Drafting.Steps != 5 {
			t.Fatalf("published steps = %d, want 5", cfg.Drafting.Steps)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
}

func TestValidateDebugExposure(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Debug = DebugConfig{Enabled: true, Addr: "0.0.0.0:6060"}
	if err := Validate(&cfg); err == nil || !strings.Contains(err.Error(), "debug.addr") {
		t.Fatalf("public debug bind without token: err = %v", err)
	}
	cfg.Debug.Token = "t"
	if err := Validate(&cfg); err != nil {
		t.Fatalf("debug with token: %v", err)
	}
}

func TestWatchKeepsConfigWhenFileRemoved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drafter.json")
	body := `{"buffers":{"recompute":{"delay":"40ms","mode":"throttle"}}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewManager(path)
	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	time.Sleep(100 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	select {
	case cfg := <-sub:
		t.Fatalf("published after remove: recompute = %+v", cfg.Buffers.Recompute)
	case <-time.After(3 * ReloadDelay):
	}
	if m.Get() != loaded {
		t.Fatal("committed config replaced after remove")
	}

	// The watcher survives and picks the file up again.
	if err := os.WriteFile(path, []byte(`{"drafting":{"steps":3}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-sub:
		if cfg.Drafting.Steps != 3 {
			t.Fatalf("published steps = %d, want 3", cfg.Drafting.Steps)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published after recreate")
	}
}

func TestParseMissingFileFails(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "absent.json"))
	if _, err := m.Parse(); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Parse error = %v, want not-exist", err)
	}
}

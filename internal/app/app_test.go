package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"drafter/internal/config"
	"drafter/internal/eventbus"
	"drafter/pkg/eventbuffer/fakeclock"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	app   *App
	clock *fakeclock.Clock
	dir   string
	cfg   string
}

// writeConfig writes a config with quiet logging and file storage in dir.
func writeConfig(t *testing.T, dir string, overrides map[string]any) string {
	t.Helper()
	cfg := map[string]any{
		"logging": map[string]any{
			"level": "error",
			"file":  map[string]any{"enabled": false},
			"alert": map[string]any{"enabled": false},
		},
		"buffers": map[string]any{
			"recompute": map[string]any{"delay": "100ms", "mode": "extend", "max_wait": "300ms"},
			"persist":   map[string]any{"delay": "1s", "mode": "throttle"},
		},
		"storage": map[string]any{"driver": "file", "path": filepath.Join(dir, "state.json")},
		"history": map[string]any{"enabled": true, "keep": 2, "prune_schedule": "@hourly"},
	}
	for k, v := range overrides {
		cfg[k] = v
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "drafter.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func startApp(t *testing.T, dir string, overrides map[string]any) *testEnv {
	t.Helper()
	path := writeConfig(t, dir, overrides)
	clock := fakeclock.New(epoch)
	a, err := New(path, Options{Clock: clock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, StopQuit)
		cancel()
	})
	return &testEnv{app: a, clock: clock, dir: dir, cfg: path}
}

func (e *testEnv) set(t *testing.T, field, raw string) {
	t.Helper()
	if err := e.app.Set(field, raw); err != nil {
		t.Fatalf("Set(%s, %q): %v", field, raw, err)
	}
}

func drainResults(ch <-chan eventbus.Event) []Result {
	var out []Result
	for {
		select {
		case e := <-ch:
			if r, ok := e.Data.(Result); ok {
				out = append(out, r)
			}
		default:
			return out
		}
	}
}

func TestStartComputesInitialTable(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)

	res := env.app.LastResult()
	if res.Seq != 1 || res.Err != nil {
		t.Fatalf("initial result = %+v", res)
	}
	row, ok := res.Requested()
	if !ok {
		t.Fatal("no requested row")
	}
	// far 4, near 12, halfway: harmonic mean 6.
	if row.Distance != "6" || row.Progress != "50%" {
		t.Fatalf("requested row = %+v", row)
	}
	if len(res.Rows) != 9 {
		t.Fatalf("rows = %d, want 9", len(res.Rows))
	}
}

func TestSetCoalescesRecompute(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)
	results, unsub := env.app.Bus().Subscribe(16, eventbus.ResultReady)
	defer unsub()

	env.set(t, FieldFar, "5")
	env.clock.Advance(50 * time.Millisecond)
	env.set(t, FieldFar, "6")
	env.clock.Advance(90 * time.Millisecond)
	if got := drainResults(results); len(got) != 0 {
		t.Fatalf("recompute ran early: %+v", got)
	}
	if !env.app.Pending() {
		t.Fatal("recompute should be pending")
	}

	env.clock.Advance(10 * time.Millisecond)
	got := drainResults(results)
	if len(got) != 1 {
		t.Fatalf("results = %d, want 1", len(got))
	}
	if got[0].Session.Far != "6" || got[0].Seq != 2 {
		t.Fatalf("result = %+v", got[0])
	}
}

func TestMaxWaitBoundsExtendLatency(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)
	results, unsub := env.app.Bus().Subscribe(16, eventbus.ResultReady)
	defer unsub()

	for _, far := range []string{"5", "6", "7", "8", "9"} {
		env.set(t, FieldFar, far)
		env.clock.Advance(80 * time.Millisecond)
	}

	got := drainResults(results)
	if len(got) != 1 {
		t.Fatalf("results = %d, want 1 (forced at 300ms)", len(got))
	}
	if got[0].Session.Far != "8" || !got[0].At.Equal(epoch.Add(300*time.Millisecond)) {
		t.Fatalf("forced result = far %s at %s", got[0].Session.Far, got[0].At.Sub(epoch))
	}
	if st := env.app.Stats(); st.Buffers.Recompute.Flushes != 1 || st.Buffers.MaxWait.Fires != 1 {
		t.Fatalf("stats = %+v", st.Buffers)
	}
}

func TestPersistThrottlesSaves(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)
	saved, unsub := env.app.Bus().Subscribe(4, eventbus.SessionSaved)
	defer unsub()

	env.set(t, FieldNear, "10")
	env.clock.Advance(200 * time.Millisecond)
	env.set(t, FieldProgress, "1/4")
	env.clock.Advance(400 * time.Millisecond)
	env.set(t, FieldFar, "3 1/2")
	env.clock.Advance(400 * time.Millisecond)

	if len(saved) != 1 {
		t.Fatalf("saves = %d, want 1", len(saved))
	}
	entries, err := env.app.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history = %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Session.Far != "3 1/2" || e.Session.Near != "10" || e.Session.Progress != "1/4" || !e.Valid {
		t.Fatalf("history entry = %+v", e)
	}
	if !e.At.Equal(epoch.Add(time.Second)) {
		t.Fatalf("saved at %s, want 1s", e.At.Sub(epoch))
	}
}

func TestInvalidInputJoinsErrors(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)

	env.set(t, FieldFar, "1/0")
	env.set(t, FieldNear, "abc")
	env.app.Flush()

	res := env.app.LastResult()
	if res.Err == nil {
		t.Fatal("expected error")
	}
	text := res.ErrText()
	if !strings.Contains(text, "far:") || !strings.Contains(text, "near:") || !strings.Contains(text, "; ") {
		t.Fatalf("ErrText = %q", text)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("rows on error: %d", len(res.Rows))
	}
}

func TestSetRejects(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)

	if err := env.app.Set("depth", "1"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("unknown field err = %v", err)
	}
	if err := env.app.Set(FieldSteps, "2.5"); err == nil {
		t.Fatal("fractional steps accepted")
	}
	if err := env.app.Set(FieldNotation, "roman"); err == nil {
		t.Fatal("bad notation accepted")
	}
	if env.app.Pending() {
		t.Fatal("rejected input scheduled a recompute")
	}
}

func TestStopFlushesPendingSave(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, dir, nil)
	clock := fakeclock.New(epoch)

	a, err := New(path, Options{Clock: clock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Set(FieldFar, "7"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopQuit); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := a.Set(FieldFar, "8"); !errors.Is(err, ErrStopped) {
		t.Fatalf("Set after Stop = %v", err)
	}

	// A fresh app restores the saved session.
	b, err := New(path, Options{Clock: clock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = b.Stop(ctx, StopQuit) }()
	if got := b.Session().Far; got != "7" {
		t.Fatalf("restored far = %q, want 7", got)
	}
}

func TestPruneNowKeepsNewest(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)

	for _, far := range []string{"5", "6", "7"} {
		env.set(t, FieldFar, far)
		env.clock.Advance(time.Second)
	}
	env.app.PruneNow()

	entries, err := env.app.History(context.Background(), 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 || entries[0].Session.Far != "7" || entries[1].Session.Far != "6" {
		t.Fatalf("history after prune = %+v", entries)
	}
}

func TestRebuildBuffersKeepsPendingWork(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)
	results, unsub := env.app.Bus().Subscribe(16, eventbus.ResultReady)
	defer unsub()

	env.set(t, FieldFar, "5")
	oldCfg := env.app.Config()
	newCfg := *oldCfg
	newCfg.Buffers.Recompute = config.BufferConfig{Delay: "40ms", Mode: "throttle"}

	changed := env.app.applyConfig(oldCfg, &newCfg)
	if !config.Changed(changed, "buffers") {
		t.Fatalf("changed = %v", changed)
	}
	if !env.app.Pending() {
		t.Fatal("pending recompute lost in rebuild")
	}

	env.clock.Advance(40 * time.Millisecond)
	got := drainResults(results)
	if len(got) != 1 || got[0].Session.Far != "5" {
		t.Fatalf("results after rebuild = %+v", got)
	}
	// Old generation: one request, cancelled. New generation: one request, fired.
	st := env.app.Stats().Buffers.Recompute
	if st.Requests != 2 || st.Cancels != 1 || st.Fires != 1 {
		t.Fatalf("recompute stats = %+v", st)
	}
}

func TestDraftingReloadChangesNotation(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)

	oldCfg := env.app.Config()
	newCfg := *oldCfg
	newCfg.Drafting.Notation = "fixed"
	newCfg.Drafting.Digits = 2
	newCfg.Drafting.Far = "100"
	env.app.applyConfig(oldCfg, &newCfg)
	env.app.Flush()

	res := env.app.LastResult()
	if res.Session.Far != "4" {
		t.Fatalf("reload overwrote typed far: %q", res.Session.Far)
	}
	row, _ := res.Requested()
	if row.Distance != "6" {
		t.Fatalf("distance = %q", row.Distance)
	}
	// 1/(0.75/12 + 0.25/4) = 8
	if err := env.app.Set(FieldProgress, "1/4"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	env.app.Flush()
	row, _ = env.app.LastResult().Requested()
	if row.Distance != "8" || row.FromNear != "4" {
		t.Fatalf("row = %+v", row)
	}
}

// lockedBuffer is an io.Writer safe for the headless result printer.
type lockedBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestRunHeadless(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)

	in := strings.NewReader("far 5\nflush\nshow\nsteps x\nstats\nhistory\nbogus\nquit\nfar 9\n")
	var out lockedBuffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reason := env.app.RunHeadless(ctx, in, &out)
	if reason != StopQuit {
		t.Fatalf("reason = %s", reason)
	}
	text := out.String()
	for _, want := range []string{
		"#1 progress 50%: distance 6",
		"from near",
		"error: steps:",
		"requests",
		"far 5, near 12, progress 1/2",
		`unknown command "bogus"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
	if env.app.Session().Far != "5" {
		t.Fatal("commands after quit were executed")
	}
}

func TestRunHeadlessEOF(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), nil)
	var out lockedBuffer
	if reason := env.app.RunHeadless(context.Background(), strings.NewReader("near 11\n"), &out); reason != StopInputEOF {
		t.Fatalf("reason = %s", reason)
	}
}

func TestStatsFormat(t *testing.T) {
	t.Parallel()
	s := Stats{Storage: true, Saves: 1200, SavedAt: epoch}
	s.Buffers.Recompute.Requests = 1500
	text := s.Format(epoch.Add(2 * time.Minute))
	for _, want := range []string{"requests 1,500", "1,200 saves", "2 minutes ago"} {
		if !strings.Contains(text, want) {
			t.Fatalf("Format missing %q:\n%s", want, text)
		}
	}
	if !strings.Contains(Stats{}.Format(epoch), "storage    disabled") {
		t.Fatal("disabled storage not reported")
	}
}

func TestWithoutStorage(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), map[string]any{
		"storage": map[string]any{"driver": "none"},
	})

	env.set(t, FieldFar, "5")
	env.clock.Advance(2 * time.Second)

	st := env.app.Stats()
	if st.Storage || st.Buffers.Persist.Requests != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if entries, err := env.app.History(context.Background(), 5); err != nil || entries != nil {
		t.Fatalf("History = %v, %v", entries, err)
	}
	if env.app.LastResult().Session.Far != "5" {
		t.Fatal("recompute did not run")
	}
}

func TestDebugEndpointServesStats(t *testing.T) {
	t.Parallel()
	env := startApp(t, t.TempDir(), map[string]any{
		"debug": map[string]any{"enabled": true, "addr": "127.0.0.1:0"},
	})
	addr := env.app.debug.Addr()
	if addr == "" {
		t.Fatal("debug server not running")
	}
	resp, err := http.Get("http://" + addr + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()
	var st Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if st.Results != 1 || !st.Storage {
		t.Fatalf("stats = %+v", st)
	}
}

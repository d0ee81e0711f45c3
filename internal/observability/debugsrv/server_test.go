package debugsrv

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	logx "drafter/pkg/logx"
)

func get(t *testing.T, url string, header http.Header) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func stop(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestServesStatsAndProfiles(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), func() any { return map[string]int{"fires": 3} })
	if err := s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	defer stop(t, s)

	base := "http://" + s.Addr()
	code, body := get(t, base+"/stats", nil)
	if code != http.StatusOK {
		t.Fatalf("/stats = %d", code)
	}
	var got map[string]int
	if err := json.Unmarshal(body, &got); err != nil || got["fires"] != 3 {
		t.Fatalf("/stats body = %s (%v)", body, err)
	}
	if code, _ := get(t, base+"/debug/pprof/", nil); code != http.StatusOK {
		t.Fatalf("/debug/pprof/ = %d", code)
	}
}

func TestTokenRequired(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), nil)
	if err := s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret"}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	defer stop(t, s)

	base := "http://" + s.Addr()
	if code, _ := get(t, base+"/healthz", nil); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", code)
	}
	if code, _ := get(t, base+"/healthz?token=s3cret", nil); code != http.StatusOK {
		t.Fatalf("query token = %d", code)
	}
	h := http.Header{"Authorization": {"Bearer s3cret"}}
	if code, _ := get(t, base+"/healthz", h); code != http.StatusOK {
		t.Fatalf("bearer token = %d", code)
	}
}

func TestReconfigureDisableStops(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), nil)
	ctx := context.Background()
	if err := s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if s.Addr() == "" {
		t.Fatal("not running")
	}
	if err := s.Reconfigure(ctx, Config{Enabled: false}); err != nil {
		t.Fatalf("Reconfigure disable: %v", err)
	}
	if s.Addr() != "" {
		t.Fatal("still running after disable")
	}
}

func TestPublicBindNeedsToken(t *testing.T) {
	t.Parallel()
	if err := CheckAddr(Config{Addr: "0.0.0.0:6060"}); err == nil {
		t.Fatal("public bind without token accepted")
	}
	if err := CheckAddr(Config{Addr: "0.0.0.0:6060", Token: "x"}); err != nil {
		t.Fatalf("token bind rejected: %v", err)
	}
	if err := CheckAddr(Config{Addr: "localhost:6060"}); err != nil {
		t.Fatalf("loopback rejected: %v", err)
	}
	if err := CheckAddr(Config{Addr: "nonsense"}); err == nil {
		t.Fatal("bad addr accepted")
	}
}

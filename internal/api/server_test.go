package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"galos/internal/config"
	"galos/internal/db"
	"galos/internal/galaxy"
	"galos/internal/logger"
)

func newTestServer(t *testing.T, rateLimit int) *Server {
	t.Helper()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "galos.db")
	cfg.RateLimit = rateLimit
	ctx := context.Background()
	store, err := db.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	seed := []galaxy.System{
		{Address: 1, Name: "Sol"},
		{Address: 2, Name: "Alpha", Position: galaxy.Coordinate{X: 10}},
		{Address: 3, Name: "Beta", Position: galaxy.Coordinate{X: 20}},
		{Address: 4, Name: "Gamma", Position: galaxy.Coordinate{X: 30}},
		{Address: 5, Name: "Faraway", Position: galaxy.Coordinate{X: 100}},
		{Address: 6, Name: "Twin", Position: galaxy.Coordinate{Y: 50}},
		{Address: 7, Name: "Twin", Position: galaxy.Coordinate{Y: -50}},
	}
	for _, s := range seed {
		if _, err := store.UpsertSystem(ctx, s, time.Unix(1600000000, 0)); err != nil {
			t.Fatalf("UpsertSystem(%s): %v", s.Name, err)
		}
	}
	return NewServer(cfg, store, "test")
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t, 0)
	rec := get(t, srv, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var out struct {
		Version string `json:"version"`
		Systems int64  `json:"systems"`
	}
	decode(t, rec, &out)
	if out.Version != "test" || out.Systems != 7 {
		t.Errorf("status = %+v", out)
	}
}

func TestHandleSystems(t *testing.T) {
	srv := newTestServer(t, 0)

	rec := get(t, srv, "/api/systems?name=alpha")
	if rec.Code != http.StatusOK {
		t.Fatalf("by name status = %d", rec.Code)
	}
	var sys galaxy.System
	decode(t, rec, &sys)
	if sys.Address != 2 || sys.Name != "ALPHA" {
		t.Errorf("by name = %+v", sys)
	}

	rec = get(t, srv, "/api/systems?name=%232")
	decode(t, rec, &sys)
	if rec.Code != http.StatusOK || sys.Address != 2 {
		t.Errorf("by #address = %d %+v", rec.Code, sys)
	}

	rec = get(t, srv, "/api/systems?q=g")
	var found []galaxy.System
	decode(t, rec, &found)
	if len(found) != 1 || found[0].Name != "GAMMA" {
		t.Errorf("search = %+v", found)
	}

	rec = get(t, srv, "/api/systems?q=zzz")
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("empty search body = %q, want []", body)
	}

	for target, want := range map[string]int{
		"/api/systems":              http.StatusBadRequest,
		"/api/systems?q=s&limit=x":  http.StatusBadRequest,
		"/api/systems?name=nowhere": http.StatusNotFound,
		"/api/systems?name=twin":    http.StatusConflict,
		"/api/systems/3":            http.StatusOK,
		"/api/systems/999":          http.StatusNotFound,
		"/api/systems/abc":          http.StatusBadRequest,
	} {
		if rec := get(t, srv, target); rec.Code != want {
			t.Errorf("GET %s = %d, want %d", target, rec.Code, want)
		}
	}
}

func TestHandleNear(t *testing.T) {
	srv := newTestServer(t, 0)
	rec := get(t, srv, "/api/systems/2/near?radius=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var out []nearby
	decode(t, rec, &out)
	if len(out) != 2 || out[0].Address != 1 || out[1].Address != 3 || out[0].Distance != 10 {
		t.Errorf("near = %+v, want Sol then Beta at 10 Ly", out)
	}

	for _, target := range []string{
		"/api/systems/2/near",
		"/api/systems/2/near?radius=-1",
		"/api/systems/2/near?radius=NaN",
		"/api/systems/2/near?radius=1000",
	} {
		if rec := get(t, srv, target); rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", target, rec.Code)
		}
	}
}

func TestHandleRoute(t *testing.T) {
	srv := newTestServer(t, 0)

	rec := get(t, srv, "/api/route?from=Sol&to=gamma&range=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var out routeResponse
	decode(t, rec, &out)
	if !out.Found || out.Jumps != 3 || len(out.Hops) != 3 {
		t.Fatalf("route = %+v", out)
	}
	for i, want := range []uint64{2, 3, 4} {
		if out.Hops[i].To.Address != want || out.Hops[i].Distance != 10 {
			t.Errorf("hop %d = %+v", i, out.Hops[i])
		}
	}

	rec = get(t, srv, "/api/route?from=Sol&to=%235&range=10")
	out = routeResponse{}
	decode(t, rec, &out)
	if rec.Code != http.StatusOK || out.Found || out.Jumps != 0 || len(out.Hops) != 0 {
		t.Errorf("unreachable = %d %+v, want found=false", rec.Code, out)
	}

	for target, want := range map[string]int{
		"/api/route?from=Sol&range=10":            http.StatusBadRequest,
		"/api/route?from=Sol&to=Gamma":            http.StatusBadRequest,
		"/api/route?from=Sol&to=Gamma&range=0":    http.StatusBadRequest,
		"/api/route?from=Sol&to=Nowhere&range=10": http.StatusNotFound,
		"/api/route?from=Twin&to=Gamma&range=10":  http.StatusConflict,
		"/api/route?from=Sol&to=Sol&range=10":     http.StatusOK,
	} {
		if rec := get(t, srv, target); rec.Code != want {
			t.Errorf("GET %s = %d, want %d", target, rec.Code, want)
		}
	}
}

func TestHandleJumps_Empty(t *testing.T) {
	srv := newTestServer(t, 0)
	rec := get(t, srv, "/api/jumps")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Errorf("jumps = %d %q", rec.Code, rec.Body)
	}
	if rec := get(t, srv, "/api/jumps?limit=-3"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", rec.Code)
	}
}

type failingStore struct{ Store }

func (failingStore) CountSystems(context.Context) (int64, error) {
	return 0, fmt.Errorf("count systems: %w: disk I/O error", galaxy.ErrStorage)
}

func TestStorageFaultIs500(t *testing.T) {
	logger.SetOutput(io.Discard)
	srv := NewServer(config.Default(), failingStore{}, "test")
	rec := get(t, srv, "/api/status")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var out map[string]string
	decode(t, rec, &out)
	if out["error"] != "storage error" {
		t.Errorf("error body = %v", out)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := NewServer(config.Default(), failingStore{}, "test")
	req := httptest.NewRequest(http.MethodOptions, "/api/route", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRateLimitByIP(t *testing.T) {
	srv := newTestServer(t, 2)
	h := srv.Handler()
	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.RemoteAddr = "192.0.2.7:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, 0)
	get(t, srv, "/api/status")
	rec := get(t, srv, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "galos_store_query_duration_seconds") {
		t.Errorf("metrics body is missing store histograms")
	}
}

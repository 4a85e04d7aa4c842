package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"galos/internal/config"
	"galos/internal/db"
	"galos/internal/galaxy"
	"galos/internal/graph"
	"galos/internal/logger"
)

// seedDB writes a small line of systems 10 Ly apart and returns the file path.
func seedDB(t *testing.T) string {
	t.Helper()
	logger.SetOutput(io.Discard)
	path := filepath.Join(t.TempDir(), "galos.db")
	cfg := config.Default()
	cfg.DatabaseURL = path

	ctx := context.Background()
	store, err := db.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer store.Close()
	for _, s := range []galaxy.System{
		{Address: 10, Name: "Sol"},
		{Address: 11, Name: "Alpha", Position: galaxy.Coordinate{X: 10}},
		{Address: 12, Name: "Beta", Position: galaxy.Coordinate{X: 20}},
		{Address: 13, Name: "Sothis", Position: galaxy.Coordinate{X: 30}, Population: 1000},
		{Address: 14, Name: "Faraway", Position: galaxy.Coordinate{X: 500}},
	} {
		if _, err := store.UpsertSystem(ctx, s, time.Unix(1600000000, 0)); err != nil {
			t.Fatalf("UpsertSystem: %v", err)
		}
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand("test")
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoute_PrintsHops(t *testing.T) {
	path := seedDB(t)
	out, err := run(t, "-d", path, "route", "10", "sol", "#13")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	want := `-----
total jumps (3)
SOL -- 10.00 Ly -> ALPHA
ALPHA -- 10.00 Ly -> BETA
BETA -- 10.00 Ly -> SOTHIS
cost 3
`
	if out != want {
		t.Errorf("output =\n%s\nwant\n%s", out, want)
	}
}

func TestRoute_Errors(t *testing.T) {
	path := seedDB(t)
	if _, err := run(t, "-d", path, "route", "10", "Sol", "Faraway"); !errors.Is(err, errNoRoute) {
		t.Errorf("unreachable err = %v, want errNoRoute", err)
	}
	if _, err := run(t, "-d", path, "route", "10", "Sol", "Nowhere"); !errors.Is(err, galaxy.ErrNotFound) {
		t.Errorf("unknown err = %v, want ErrNotFound", err)
	}
	if _, err := run(t, "-d", path, "route", "-5", "Sol", "Beta"); err == nil {
		t.Error("negative range should fail")
	}
	if _, err := run(t, "-d", path, "route", "10", "Sol", "Beta", "--fsd", "5A"); err == nil {
		t.Error("--fsd without masses should fail")
	}
}

func TestRoute_Greedy(t *testing.T) {
	path := seedDB(t)
	out, err := run(t, "-d", path, "route", "10", "Sol", "Sothis", "--greedy", "3")
	if err != nil {
		t.Fatalf("route --greedy: %v", err)
	}
	if !strings.Contains(out, "total jumps (3)") || !strings.Contains(out, "BETA -- 10.00 Ly -> SOTHIS") {
		t.Errorf("greedy route output = %q", out)
	}

	for _, args := range [][]string{
		{"--greedy", "0.5"},
		{"--greedy", "NaN"},
		{"--greedy", "2", "--fsd", "5A", "--optimal-mass", "1050", "--mass", "400"},
	} {
		full := append([]string{"-d", path, "route", "10", "Sol", "Sothis"}, args...)
		if _, err := run(t, full...); err == nil {
			t.Errorf("route %v should fail", args)
		}
	}
}

func TestRoute_FuelWeighted(t *testing.T) {
	path := seedDB(t)
	out, err := run(t, "-d", path, "route", "10", "Sol", "Beta", "--fsd", "5A", "--optimal-mass", "1050", "--mass", "400")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !strings.Contains(out, "total jumps (2)") || strings.Contains(out, "cost 2\n") {
		t.Errorf("fuel route output = %q", out)
	}
}

func TestSearch(t *testing.T) {
	path := seedDB(t)
	out, err := run(t, "-d", path, "search", "so")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "SOL (10)") || !strings.Contains(out, "SOTHIS (13)") || !strings.Contains(out, "population  1000") {
		t.Errorf("search output = %q", out)
	}

	out, err = run(t, "-d", path, "search", "Sothis", "-c")
	if err != nil || out != "1 system\n" {
		t.Errorf("search -c = %q, %v", out, err)
	}

	out, err = run(t, "-d", path, "search", "s", "-c", "-n", "1")
	if err != nil || out != "2 systems\n" {
		t.Errorf("search -c ignores -n: got %q, %v", out, err)
	}
}

func TestNear(t *testing.T) {
	path := seedDB(t)
	out, err := run(t, "-d", path, "near", "Alpha", "--radius", "10")
	if err != nil {
		t.Fatalf("near: %v", err)
	}
	want := "   10.00 Ly  SOL\n   10.00 Ly  BETA\n2 systems\n"
	if out != want {
		t.Errorf("near output = %q, want %q", out, want)
	}
}

func TestSyncEDSM_FromFile(t *testing.T) {
	path := seedDB(t)
	src := filepath.Join(t.TempDir(), "systems.json")
	dumpJSON := `[
{"id":1,"id64":13,"name":"Sothis","coords":{"x":30,"y":0,"z":0},"population":5000,"date":"2021-01-01 00:00:00"},
{"id":2,"id64":99,"name":"Newcomer","coords":{"x":40,"y":0,"z":0},"date":"2021-01-01 00:00:00"}
]
`
	if err := os.WriteFile(src, []byte(dumpJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "-d", path, "sync", "edsm", src); err != nil {
		t.Fatalf("sync edsm: %v", err)
	}

	out, err := run(t, "-d", path, "route", "10", "Sol", "Newcomer")
	if err != nil {
		t.Fatalf("route after sync: %v", err)
	}
	if !strings.Contains(out, "total jumps (4)") {
		t.Errorf("route output = %q", out)
	}
	out, _ = run(t, "-d", path, "search", "Sothis")
	if !strings.Contains(out, "population  5000") {
		t.Errorf("newer dump did not update Sothis: %q", out)
	}
}

func TestPrintRoute_SelfRoute(t *testing.T) {
	var buf bytes.Buffer
	sol := galaxy.System{Address: 1, Name: "SOL"}
	printRoute(&buf, &graph.Route{Systems: []galaxy.System{sol}})
	if got := buf.String(); got != "-----\ntotal jumps (0)\ncost 0\n" {
		t.Errorf("self route = %q", got)
	}
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"galos/internal/config"
	"galos/internal/db"
	"galos/internal/galaxy"
	"galos/internal/logger"
)

func openStore(t *testing.T) *db.DB {
	t.Helper()
	logger.SetOutput(io.Discard)
	cfg := config.Default()
	cfg.DatabaseURL = "sqlite:" + filepath.Join(t.TempDir(), "galos.db")
	d, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func record(address uint64, name string, x float64, at int64) Record {
	return Record{
		System:    galaxy.System{Address: address, Name: name, Position: galaxy.Coordinate{X: x}},
		UpdatedAt: time.Unix(at, 0).UTC(),
		Source:    "Test",
	}
}

type errStore struct{ err error }

func (s errStore) UpsertSystem(context.Context, galaxy.System, time.Time) (db.Upsert, error) {
	return db.Upsert{}, s.err
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		ok   bool
	}{
		{"valid", record(1, "Sol", 0, 1), true},
		{"no address", record(0, "Sol", 0, 1), false},
		{"no name", record(1, "  ", 0, 1), false},
		{"nan position", record(1, "Sol", math.NaN(), 1), false},
		{"no timestamp", Record{System: galaxy.System{Address: 1, Name: "Sol"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("Validate() = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestSink_PutCountsOutcomes(t *testing.T) {
	sink := NewSink(openStore(t), 1)
	ctx := context.Background()

	for _, rec := range []Record{
		record(1, "Sol", 0, 10),
		record(1, "Sol", 0, 5),
		record(1, "Sol", 0, 20),
		record(1, "Sol", 500, 30),
		record(2, "", 0, 10),
	} {
		if err := sink.Put(ctx, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got := sink.Stats()
	want := Stats{Inserted: 1, Updated: 2, Stale: 1, Conflicts: 1, Failed: 1}
	if got != want {
		t.Errorf("Stats = %+v, want %+v", got, want)
	}
	if got.Total() != 5 {
		t.Errorf("Total = %d, want 5", got.Total())
	}
}

func TestSink_StoreFailureIsNotFatal(t *testing.T) {
	logger.SetOutput(io.Discard)
	sink := NewSink(errStore{fmt.Errorf("upsert system: %w: locked", galaxy.ErrStorage)}, 1)
	if err := sink.Put(context.Background(), record(1, "Sol", 0, 1)); err != nil {
		t.Fatalf("Put returned %v, want nil", err)
	}
	if sink.Stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", sink.Stats().Failed)
	}
}

func TestSink_PutReturnsContextError(t *testing.T) {
	logger.SetOutput(io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := NewSink(errStore{context.Canceled}, 1)
	if err := sink.Put(ctx, record(1, "Sol", 0, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Put = %v, want context.Canceled", err)
	}
}

func TestSink_RunDrainsChannel(t *testing.T) {
	store := openStore(t)
	sink := NewSink(store, 4)

	records := make(chan Record)
	go func() {
		defer close(records)
		for i := 1; i <= 200; i++ {
			records <- record(uint64(i), fmt.Sprintf("System %d", i), float64(i), 1)
		}
		for i := 1; i <= 50; i++ {
			records <- record(uint64(i), fmt.Sprintf("System %d", i), float64(i), 1)
		}
	}()

	if err := sink.Run(context.Background(), records); err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := sink.Stats()
	if st.Inserted != 200 || st.Stale != 50 || st.Failed != 0 {
		t.Errorf("Stats = %+v, want 200 inserted, 50 stale", st)
	}
	n, err := store.CountSystems(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 200 {
		t.Errorf("CountSystems = %d, want 200", n)
	}
}

func TestSink_RunStopsOnCancel(t *testing.T) {
	sink := NewSink(errStore{}, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Run(ctx, make(chan Record)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

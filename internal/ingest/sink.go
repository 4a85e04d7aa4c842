// Package ingest feeds upstream telemetry into the system store. A bad record
// is logged and counted, never fatal to the batch it arrived in.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"galos/internal/db"
	"galos/internal/galaxy"
	"galos/internal/logger"
	"galos/internal/metrics"
)

// ErrInvalidRecord marks a record rejected before it reached the store.
var ErrInvalidRecord = errors.New("invalid record")

// Record is one upstream observation of a system.
type Record struct {
	System    galaxy.System
	UpdatedAt time.Time
	// Source names the feed, for log lines.
	Source string
}

// Validate checks the fields the store requires.
func (r Record) Validate() error {
	switch {
	case r.System.Address == 0:
		return fmt.Errorf("%w: system %q has no address", ErrInvalidRecord, r.System.Name)
	case strings.TrimSpace(r.System.Name) == "":
		return fmt.Errorf("%w: system %d has no name", ErrInvalidRecord, r.System.Address)
	case !r.System.Position.Finite():
		return fmt.Errorf("%w: system %q has a non-finite position", ErrInvalidRecord, r.System.Name)
	case r.UpdatedAt.IsZero():
		return fmt.Errorf("%w: system %q has no timestamp", ErrInvalidRecord, r.System.Name)
	}
	return nil
}

// Store is the part of the system store the sink writes through.
type Store interface {
	UpsertSystem(ctx context.Context, s galaxy.System, updatedAt time.Time) (db.Upsert, error)
}

// Stats counts what the sink did with the records it was given.
type Stats struct {
	Inserted  int64 `json:"inserted"`
	Updated   int64 `json:"updated"`
	Stale     int64 `json:"stale"`
	Conflicts int64 `json:"conflicts"`
	Failed    int64 `json:"failed"`
}

// Total returns the number of records handled.
func (s Stats) Total() int64 {
	return s.Inserted + s.Updated + s.Stale + s.Failed
}

// Sink writes records into a Store.
type Sink struct {
	store   Store
	workers int

	inserted  atomic.Int64
	updated   atomic.Int64
	stale     atomic.Int64
	conflicts atomic.Int64
	failed    atomic.Int64
}

// NewSink returns a sink that runs up to workers concurrent upserts. Size it
// to the store's connection pool.
func NewSink(store Store, workers int) *Sink {
	if workers < 1 {
		workers = 1
	}
	return &Sink{store: store, workers: workers}
}

// Put upserts one record. It returns an error only when ctx is done; invalid
// records and store failures are logged and counted.
func (s *Sink) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		s.fail(rec, err)
		return nil
	}

	res, err := s.store.UpsertSystem(ctx, rec.System, rec.UpdatedAt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.fail(rec, err)
		return nil
	}

	switch res.Outcome {
	case db.Inserted:
		s.inserted.Add(1)
	case db.Updated:
		s.updated.Add(1)
	default:
		s.stale.Add(1)
	}
	metrics.IngestRecords.WithLabelValues(res.Outcome.String()).Inc()

	if res.PositionConflict {
		s.conflicts.Add(1)
		logger.Warn(tag(rec), fmt.Sprintf("Position conflict for %s (%d): stored (%.5f, %.5f, %.5f), observed (%.5f, %.5f, %.5f); kept stored",
			galaxy.NormalizeName(rec.System.Name), rec.System.Address,
			res.Stored.X, res.Stored.Y, res.Stored.Z,
			rec.System.Position.X, rec.System.Position.Y, rec.System.Position.Z))
	}
	return nil
}

// Run drains records with a bounded pool of workers until the channel is
// closed or ctx is done.
func (s *Sink) Run(ctx context.Context, records <-chan Record) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case rec, ok := <-records:
					if !ok {
						return nil
					}
					if err := s.Put(gctx, rec); err != nil {
						return err
					}
				}
			}
		})
	}
	return g.Wait()
}

// Stats returns a snapshot of the counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Inserted:  s.inserted.Load(),
		Updated:   s.updated.Load(),
		Stale:     s.stale.Load(),
		Conflicts: s.conflicts.Load(),
		Failed:    s.failed.Load(),
	}
}

// LogStats writes the counters in the logger's stats format.
func (s *Sink) LogStats() {
	st := s.Stats()
	logger.Stats("inserted", st.Inserted)
	logger.Stats("updated", st.Updated)
	logger.Stats("stale", st.Stale)
	logger.Stats("position conflicts", st.Conflicts)
	logger.Stats("failed", st.Failed)
}

func (s *Sink) fail(rec Record, err error) {
	s.failed.Add(1)
	metrics.IngestRecords.WithLabelValues("failed").Inc()
	logger.Error(tag(rec), fmt.Sprintf("Skipped system %d: %v", rec.System.Address, err))
}

func tag(rec Record) string {
	if rec.Source == "" {
		return "Ingest"
	}
	return rec.Source
}

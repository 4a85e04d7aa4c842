package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"galos/internal/db"
	"galos/internal/dump"
	"galos/internal/eddn"
	"galos/internal/ingest"
	"galos/internal/journal"
	"galos/internal/logger"
)

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import systems from journals, EDDN or nightly dumps",
	}
	cmd.AddCommand(
		newSyncJournalCmd(a),
		newSyncEDDNCmd(a),
		newSyncEDSMCmd(a),
		newSyncEDDBCmd(a),
	)
	return cmd
}

func newSyncJournalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "journal PATH...",
		Short: "Import local journal files or directories of them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := journal.Files(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no journal files in %v", args)
			}
			return a.withSink(cmd.Context(), "Journal", func(ctx context.Context, store *db.DB, sink *ingest.Sink) error {
				im := journal.NewImporter(sink, store, "Journal")
				im.Chain = true
				for _, f := range files {
					logger.Info("Journal", "Importing "+f)
					if err := im.ImportFile(ctx, f); err != nil {
						return err
					}
				}
				logger.Stats("events", im.Events)
				logger.Stats("jumps", im.Jumps)
				return nil
			})
		},
	}
}

func newSyncEDDNCmd(a *app) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "eddn",
		Short: "Follow the EDDN relay until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = a.cfg.EDDNURL
			}
			return a.withSink(cmd.Context(), "EDDN", func(ctx context.Context, _ *db.DB, sink *ingest.Sink) error {
				// Relay jumps belong to many commanders, so only systems are kept.
				im := journal.NewImporter(sink, nil, "EDDN")
				go logProgress(ctx, sink, time.Minute)
				err := eddn.Subscribe(ctx, url, im.Apply)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "relay URL (default EDDN_URL)")
	return cmd
}

func newSyncEDSMCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edsm [SOURCE]",
		Short: "Load an EDSM systems dump from a file or URL",
		Long:  "Load an EDSM systems dump. SOURCE is a path or http(s) URL; .gz is inflated. It defaults to " + dump.EDSMPopulatedURL + ".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := dump.EDSMPopulatedURL
			if len(args) == 1 {
				src = args[0]
			}
			return a.loadDump(cmd.Context(), "EDSM", func(ctx context.Context, fn func(ingest.Record) error) (int, error) {
				return dump.LoadEDSM(ctx, src, fn)
			})
		},
	}
}

func newSyncEDDBCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "eddb SOURCE",
		Short: "Load an EDDB systems CSV dump from a file or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.loadDump(cmd.Context(), "EDDB", func(ctx context.Context, fn func(ingest.Record) error) (int, error) {
				r, err := dump.Open(ctx, args[0])
				if err != nil {
					return 0, err
				}
				defer r.Close()
				return dump.LoadEDDB(ctx, r, fn)
			})
		},
	}
}

// withSink opens the store, runs fn with a sink sized to the pool and logs
// the sink's counters whatever fn returns.
func (a *app) withSink(ctx context.Context, tag string, fn func(context.Context, *db.DB, *ingest.Sink) error) error {
	store, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	sink := ingest.NewSink(store, a.cfg.MaxConnections)
	start := time.Now()
	err = fn(ctx, store, sink)

	logger.Section(tag + " sync")
	sink.LogStats()
	logger.Stats("elapsed", time.Since(start).Round(time.Millisecond).String())
	return err
}

// loadDump streams a dump reader into the sink's worker pool.
func (a *app) loadDump(ctx context.Context, tag string, load func(context.Context, func(ingest.Record) error) (int, error)) error {
	return a.withSink(ctx, tag, func(ctx context.Context, _ *db.DB, sink *ingest.Sink) error {
		records := make(chan ingest.Record, 256)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer close(records)
			n, err := load(gctx, func(rec ingest.Record) error {
				select {
				case records <- rec:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
			logger.Info(tag, fmt.Sprintf("Read %d records", n))
			return err
		})
		g.Go(func() error {
			return sink.Run(gctx, records)
		})
		return g.Wait()
	})
}

func logProgress(ctx context.Context, sink *ingest.Sink, every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			st := sink.Stats()
			logger.Info("EDDN", fmt.Sprintf("%d systems (%d new, %d updated, %d stale, %d failed)",
				st.Total(), st.Inserted, st.Updated, st.Stale, st.Failed))
		}
	}
}

package dump

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"galos/internal/galaxy"
	"galos/internal/ingest"
	"galos/internal/logger"
)

var eddbRequired = []string{"id", "name", "x", "y", "z", "updated_at"}

type eddbRow struct {
	col    map[string]int
	fields []string
}

func (r eddbRow) get(name string) string {
	i, ok := r.col[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r eddbRow) float(name string) (float64, error) {
	return strconv.ParseFloat(r.get(name), 64)
}

func (r eddbRow) record() (ingest.Record, error) {
	id, err := strconv.ParseInt(r.get("id"), 10, 64)
	if err != nil {
		return ingest.Record{}, fmt.Errorf("%w: id %q", ingest.ErrInvalidRecord, r.get("id"))
	}
	// Systems EDDB never saw in the journal have no address; their negated
	// EDDB id keeps them out of the real address space.
	address := uint64(-id)
	if v := r.get("ed_system_address"); v != "" {
		if address, err = strconv.ParseUint(v, 10, 64); err != nil {
			return ingest.Record{}, fmt.Errorf("%w: ed_system_address %q", ingest.ErrInvalidRecord, v)
		}
	}
	if address == 0 {
		return ingest.Record{}, fmt.Errorf("%w: system %q has no address", ingest.ErrInvalidRecord, r.get("name"))
	}

	var pos galaxy.Coordinate
	if pos.X, err = r.float("x"); err == nil {
		if pos.Y, err = r.float("y"); err == nil {
			pos.Z, err = r.float("z")
		}
	}
	if err != nil {
		return ingest.Record{}, fmt.Errorf("%w: system %d coordinates: %v", ingest.ErrInvalidRecord, id, err)
	}

	updated, err := strconv.ParseInt(r.get("updated_at"), 10, 64)
	if err != nil {
		return ingest.Record{}, fmt.Errorf("%w: system %d updated_at %q", ingest.ErrInvalidRecord, id, r.get("updated_at"))
	}

	var population uint64
	if v := r.get("population"); v != "" {
		if population, err = strconv.ParseUint(v, 10, 64); err != nil {
			return ingest.Record{}, fmt.Errorf("%w: system %d population %q", ingest.ErrInvalidRecord, id, v)
		}
	}

	return ingest.Record{
		System: galaxy.System{
			Address:        address,
			Name:           r.get("name"),
			Position:       pos,
			Population:     population,
			Security:       galaxy.ParseSecurity(r.get("security")),
			Government:     galaxy.ParseGovernment(r.get("government")),
			Allegiance:     galaxy.ParseAllegiance(r.get("allegiance")),
			PrimaryEconomy: galaxy.ParseEconomy(r.get("primary_economy")),
		},
		UpdatedAt: time.Unix(updated, 0).UTC(),
		Source:    "EDDB",
	}, nil
}

// LoadEDDB reads an EDDB systems CSV dump, locating columns by header name.
// Rows that fail to parse are logged and skipped. It returns the number of
// records handed to fn.
func LoadEDDB(ctx context.Context, r io.Reader, fn func(ingest.Record) error) (int, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, name := range eddbRequired {
		if _, ok := col[name]; !ok {
			return 0, fmt.Errorf("missing column %q", name)
		}
	}

	n, line := 0, 1
	for {
		line++
		if err := ctx.Err(); err != nil {
			return n, err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				logger.Warn("EDDB", err.Error())
				continue
			}
			return n, err
		}

		rec, err := eddbRow{col: col, fields: fields}.record()
		if err != nil {
			logger.Warn("EDDB", fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if err := fn(rec); err != nil {
			return n, err
		}
		n++
	}
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"galos/internal/galaxy"
	"galos/internal/metrics"
)

// PositionTolerance is the distance in light-years within which two observed
// positions of a system are considered the same: one cell of the game's 1/32 Ly grid.
const PositionTolerance = 1.0 / 32

const defaultSearchLimit = 20

// UpsertOutcome says what an upsert did to the stored row.
type UpsertOutcome int

const (
	// Stale means a row with an equal or newer updated_at already existed; nothing changed.
	Stale UpsertOutcome = iota
	// Inserted means the system was new.
	Inserted
	// Updated means the mutable fields were replaced by newer telemetry.
	Updated
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "stale"
	}
}

// Upsert is the result of UpsertSystem.
type Upsert struct {
	Outcome UpsertOutcome
	// PositionConflict is set when the observed position is further than
	// PositionTolerance from the stored one. The stored position is kept.
	PositionConflict bool
	// Stored is the position already on record; zero for inserts.
	Stored galaxy.Coordinate
}

// UpsertSystem inserts s or, when updatedAt is strictly newer than the stored
// row, replaces its mutable fields. The name is normalized and the position of
// an existing row is never changed.
func (d *DB) UpsertSystem(ctx context.Context, s galaxy.System, updatedAt time.Time) (Upsert, error) {
	defer metrics.ObserveQuery("upsert", time.Now())
	const op = "upsert system"

	if !s.Position.Finite() {
		return Upsert{}, fmt.Errorf("%s %d: %w: non-finite position", op, s.Address, galaxy.ErrStorage)
	}

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return Upsert{}, storageErr(op, err)
	}
	defer tx.Rollback()

	var (
		res     Upsert
		stored  galaxy.Coordinate
		existed = true
	)
	err = tx.QueryRowContext(ctx, d.dialect.readPosition, int64(s.Address)).Scan(&stored.X, &stored.Y, &stored.Z)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existed = false
	case err != nil:
		return Upsert{}, storageErr(op, err)
	default:
		res.Stored = stored
		res.PositionConflict = !stored.Within(s.Position, PositionTolerance)
	}

	result, err := tx.ExecContext(ctx, d.dialect.upsertSystem,
		int64(s.Address),
		galaxy.NormalizeName(s.Name),
		s.Position.X, s.Position.Y, s.Position.Z,
		int64(s.Population),
		nullString(string(s.Security)),
		nullString(string(s.Government)),
		nullString(string(s.Allegiance)),
		nullString(string(s.PrimaryEconomy)),
		nullString(string(s.SecondaryEconomy)),
		encodeTime(d.dialect, updatedAt),
	)
	if err != nil {
		return Upsert{}, storageErr(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return Upsert{}, storageErr(op, err)
	}
	switch {
	case !existed:
		res.Outcome = Inserted
	case n > 0:
		res.Outcome = Updated
	default:
		res.Outcome = Stale
	}

	if !existed && d.dialect.indexPosition != "" {
		if _, err := tx.ExecContext(ctx, d.dialect.indexPosition, int64(s.Address), int64(s.Address)); err != nil {
			return Upsert{}, storageErr(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Upsert{}, storageErr(op, err)
	}

	metrics.UpsertOutcomes.WithLabelValues(res.Outcome.String()).Inc()
	if res.PositionConflict {
		metrics.PositionConflicts.Inc()
	}
	return res, nil
}

// System fetches a system by address.
func (d *DB) System(ctx context.Context, address uint64) (galaxy.System, error) {
	defer metrics.ObserveQuery("system", time.Now())

	s, err := scanSystem(d.sql.QueryRowContext(ctx, d.dialect.systemByAddr, int64(address)))
	if errors.Is(err, sql.ErrNoRows) {
		return galaxy.System{}, fmt.Errorf("system %d: %w", address, galaxy.ErrNotFound)
	}
	if err != nil {
		return galaxy.System{}, storageErr("fetch system", err)
	}
	return s, nil
}

// SystemByName fetches a system by name, ignoring case. It returns
// galaxy.ErrAmbiguous when more than one system carries the name.
func (d *DB) SystemByName(ctx context.Context, name string) (galaxy.System, error) {
	defer metrics.ObserveQuery("system_by_name", time.Now())

	normalized := galaxy.NormalizeName(name)
	found, err := d.querySystems(ctx, "fetch system by name", d.dialect.systemByName, normalized)
	if err != nil {
		return galaxy.System{}, err
	}
	switch len(found) {
	case 0:
		return galaxy.System{}, fmt.Errorf("system %q: %w", normalized, galaxy.ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return galaxy.System{}, fmt.Errorf("system %q matches addresses %d and %d: %w",
			normalized, found[0].Address, found[1].Address, galaxy.ErrAmbiguous)
	}
}

// Lookup resolves a system reference: "#<address>" fetches by address,
// anything else by name.
func (d *DB) Lookup(ctx context.Context, ref string) (galaxy.System, error) {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "#"); ok {
		address, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return galaxy.System{}, fmt.Errorf("system %q: bad address: %w", ref, galaxy.ErrNotFound)
		}
		return d.System(ctx, address)
	}
	return d.SystemByName(ctx, ref)
}

// SystemsWithin returns every system whose distance to center is at most
// radius. Order is unspecified.
func (d *DB) SystemsWithin(ctx context.Context, center galaxy.Coordinate, radius float64) ([]galaxy.System, error) {
	defer metrics.ObserveQuery("within", time.Now())

	if radius < 0 || math.IsNaN(radius) || !center.Finite() {
		return nil, nil
	}
	return d.querySystems(ctx, "systems within", d.dialect.within, d.dialect.withinArgs(center, radius)...)
}

// SearchSystems returns up to limit systems whose name starts with prefix,
// ordered by name.
func (d *DB) SearchSystems(ctx context.Context, prefix string, limit int) ([]galaxy.System, error) {
	defer metrics.ObserveQuery("search", time.Now())

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	pattern := escapeLike(galaxy.NormalizeName(prefix)) + "%"
	return d.querySystems(ctx, "search systems", d.dialect.searchByPrefix, pattern, limit)
}

// CountSystems returns the number of stored systems.
func (d *DB) CountSystems(ctx context.Context) (int64, error) {
	defer metrics.ObserveQuery("count", time.Now())

	var n int64
	if err := d.sql.QueryRowContext(ctx, systemCount).Scan(&n); err != nil {
		return 0, storageErr("count systems", err)
	}
	return n, nil
}

// CountSystemsByPrefix returns the number of systems whose normalized name
// starts with prefix.
func (d *DB) CountSystemsByPrefix(ctx context.Context, prefix string) (int64, error) {
	defer metrics.ObserveQuery("count_prefix", time.Now())

	var n int64
	pattern := escapeLike(galaxy.NormalizeName(prefix)) + "%"
	if err := d.sql.QueryRowContext(ctx, d.dialect.countByPrefix, pattern).Scan(&n); err != nil {
		return 0, storageErr("count systems", err)
	}
	return n, nil
}

func (d *DB) querySystems(ctx context.Context, op, query string, args ...any) ([]galaxy.System, error) {
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []galaxy.System
	for rows.Next() {
		s, err := scanSystem(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSystem(r rowScanner) (galaxy.System, error) {
	var (
		s          galaxy.System
		address    int64
		population sql.NullInt64
		security   sql.NullString
		government sql.NullString
		allegiance sql.NullString
		primary    sql.NullString
		secondary  sql.NullString
		updatedAt  any
	)
	if err := r.Scan(
		&address, &s.Name, &s.Position.X, &s.Position.Y, &s.Position.Z, &population,
		&security, &government, &allegiance, &primary, &secondary,
		&updatedAt,
	); err != nil {
		return galaxy.System{}, err
	}
	t, err := decodeTime(updatedAt)
	if err != nil {
		return galaxy.System{}, err
	}

	s.Address = uint64(address)
	if population.Valid && population.Int64 > 0 {
		s.Population = uint64(population.Int64)
	}
	s.Security = galaxy.Security(security.String)
	s.Government = galaxy.Government(government.String)
	s.Allegiance = galaxy.Allegiance(allegiance.String)
	s.PrimaryEconomy = galaxy.Economy(primary.String)
	s.SecondaryEconomy = galaxy.Economy(secondary.String)
	s.UpdatedAt = t
	return s, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"galos/internal/galaxy"
	"galos/internal/metrics"
)

const defaultJumpLimit = 50

// InsertJump appends a jump to the log.
func (d *DB) InsertJump(ctx context.Context, j galaxy.Jump) error {
	defer metrics.ObserveQuery("insert_jump", time.Now())

	var distance, used, level, fuel any
	if j.Cost != nil {
		distance, used, level, fuel = j.Cost.Distance, j.Cost.Used, j.Cost.Level, string(j.Cost.Fuel)
	}
	var ts any
	if j.Timestamp != nil {
		ts = encodeTime(d.dialect, *j.Timestamp)
	}
	if _, err := d.sql.ExecContext(ctx, d.dialect.insertJump,
		j.ID.String(), int64(j.CurrentSystemAddress),
		distance, used, level, fuel,
		j.Future, ts, nullUUID(j.NextJumpID),
	); err != nil {
		return storageErr("insert jump", err)
	}
	return nil
}

// LinkJump sets the forward link of jump from to jump to. A jump is linked at
// most once; linking a missing or already linked jump returns galaxy.ErrNotFound.
func (d *DB) LinkJump(ctx context.Context, from, to uuid.UUID) error {
	defer metrics.ObserveQuery("link_jump", time.Now())

	res, err := d.sql.ExecContext(ctx, d.dialect.linkJump, to.String(), from.String())
	if err != nil {
		return storageErr("link jump", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("link jump", err)
	}
	if n == 0 {
		return fmt.Errorf("unlinked jump %s: %w", from, galaxy.ErrNotFound)
	}
	return nil
}

// RecentJumps returns up to limit jumps, newest first; jumps without a
// timestamp come last.
func (d *DB) RecentJumps(ctx context.Context, limit int) ([]galaxy.Jump, error) {
	defer metrics.ObserveQuery("recent_jumps", time.Now())

	if limit <= 0 {
		limit = defaultJumpLimit
	}
	rows, err := d.sql.QueryContext(ctx, d.dialect.selectJumps, limit)
	if err != nil {
		return nil, storageErr("recent jumps", err)
	}
	defer rows.Close()

	var out []galaxy.Jump
	for rows.Next() {
		j, err := scanJump(rows)
		if err != nil {
			return nil, storageErr("recent jumps", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("recent jumps", err)
	}
	return out, nil
}

func scanJump(r rowScanner) (galaxy.Jump, error) {
	var (
		j        galaxy.Jump
		id       string
		address  int64
		distance sql.NullFloat64
		used     sql.NullFloat64
		level    sql.NullFloat64
		fuel     sql.NullString
		ts       any
		next     sql.NullString
	)
	if err := r.Scan(&id, &address, &distance, &used, &level, &fuel, &j.Future, &ts, &next); err != nil {
		return galaxy.Jump{}, err
	}

	var err error
	if j.ID, err = uuid.Parse(id); err != nil {
		return galaxy.Jump{}, fmt.Errorf("jump id: %w", err)
	}
	j.CurrentSystemAddress = uint64(address)
	if fuel.Valid {
		j.Cost = &galaxy.Cost{
			Fuel:     galaxy.FuelType(fuel.String),
			Distance: distance.Float64,
			Used:     used.Float64,
			Level:    level.Float64,
		}
	}
	if ts != nil {
		t, err := decodeTime(ts)
		if err != nil {
			return galaxy.Jump{}, err
		}
		j.Timestamp = &t
	}
	if next.Valid {
		nid, err := uuid.Parse(next.String)
		if err != nil {
			return galaxy.Jump{}, fmt.Errorf("next jump id: %w", err)
		}
		j.NextJumpID = uuid.NullUUID{UUID: nid, Valid: true}
	}
	return j, nil
}

func nullUUID(id uuid.NullUUID) any {
	if !id.Valid {
		return nil
	}
	return id.UUID.String()
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"galos/internal/config"
	"galos/internal/galaxy"
	"galos/internal/logger"
	"galos/internal/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DB is the system store. It wraps a bounded database/sql pool over either
// SQLite (R*Tree spatial index) or PostgreSQL with PostGIS (GIST n-d index).
type DB struct {
	sql     *sql.DB
	dialect *dialect
}

// Open connects to the database named by cfg.DatabaseURL, bounds the pool to
// cfg.MaxConnections and runs schema setup.
func Open(ctx context.Context, cfg *config.Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, _ := cfg.Dialect()

	var (
		driver   string
		dsn      string
		d        *dialect
		maxConns = cfg.MaxConnections
	)
	switch kind {
	case config.DialectPostgres:
		driver, dsn, d = "pgx", cfg.DatabaseURL, postgresDialect
	default:
		path := cfg.SQLitePath()
		driver, dsn, d = "sqlite", sqliteDSN(path), sqliteDialect
		// Every connection to :memory: is a separate empty database.
		if sqliteInMemory(path) {
			maxConns = 1
		}
	}

	db, err := open(ctx, driver, dsn, d, maxConns)
	if err != nil {
		return nil, err
	}
	logger.Success("DB", fmt.Sprintf("Opened %s store (pool %d)", kind, maxConns))
	return db, nil
}

func open(ctx context.Context, driver, dsn string, d *dialect, maxConns int) (*DB, error) {
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w: %w", galaxy.ErrStorage, err)
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w: %w", galaxy.ErrStorage, err)
	}
	db := &DB{sql: sqlDB, dialect: d}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w: %w", galaxy.ErrStorage, err)
	}
	return db, nil
}

// sqliteDSN adds the pragmas the store relies on. Write transactions take the
// lock up front so concurrent upserts queue on busy_timeout instead of failing
// a deferred lock upgrade.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	pragmas := "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	if !sqliteInMemory(path) {
		pragmas = "_pragma=journal_mode(WAL)&" + pragmas
	}
	return path + sep + pragmas
}

func sqliteInMemory(path string) bool {
	return strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory")
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.sql.Close()
}

// SqlDB returns the underlying *sql.DB.
func (d *DB) SqlDB() *sql.DB {
	return d.sql
}

// Dialect reports which backend the store runs on.
func (d *DB) Dialect() config.Dialect {
	return d.dialect.name
}

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.sql.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("schema_version: %w", err)
	}
	version := 0
	err := d.sql.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, m := range d.dialect.migrations {
		v := i + 1
		if version >= v {
			continue
		}
		tx, err := d.sql.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range m.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration v%d: %w", v, err)
			}
		}
		if _, err := tx.ExecContext(ctx, d.dialect.rebind("INSERT INTO schema_version (version) VALUES (?)"), v); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration v%d: %w", v, err)
		}
		logger.Info("DB", fmt.Sprintf("Applied migration v%d (%s)", v, m.name))
	}
	return nil
}

// storageErr wraps a driver error as a storage fault, keeping context
// cancellation visible to errors.Is.
func storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.StoreErrors.WithLabelValues(op).Inc()
	return fmt.Errorf("%s: %w: %w", op, galaxy.ErrStorage, err)
}

func encodeTime(d *dialect, t time.Time) any {
	if d.name == config.DialectPostgres {
		return t.UTC()
	}
	return t.UTC().UnixMicro()
}

func decodeTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case int64:
		return time.UnixMicro(t).UTC(), nil
	case time.Time:
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

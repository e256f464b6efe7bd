package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case Postgres, "pgx", "postgresql":
		return Postgres, nil
	case SQLite, "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

// DB is a database/sql handle that remembers which engine it talks to.
// Reader serves queries that never write. On Postgres it is the same handle;
// on SQLite it is a separate query-only pool so reads do not queue behind the
// single writer connection.
type DB struct {
	*sql.DB
	Reader  *sql.DB
	Dialect Dialect
	pool    *pgxpool.Pool
}

func (d *DB) Close() error {
	err := d.DB.Close()
	if d.Reader != nil && d.Reader != d.DB {
		if rerr := d.Reader.Close(); err == nil {
			err = rerr
		}
	}
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

// Open connects to Postgres through a pgx pool or opens (creating if missing) a SQLite file.
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	switch dialect {
	case Postgres:
		pool, err := NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		sqlDB := stdlib.OpenDBFromPool(pool)
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &DB{DB: sqlDB, Reader: sqlDB, Dialect: Postgres, pool: pool}, nil
	case SQLite:
		sqlDB, err := sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// One connection: SQLite serializes writers anyway and this keeps
		// BEGIN/COMMIT from tripping over SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping sqlite: %w", err)
		}
		// WAL lets readers run next to the writer. The path must name a file;
		// ":memory:" would give the reader a different database.
		reader, err := sql.Open("sqlite", sqliteReaderDSN(dsn))
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("open sqlite reader: %w", err)
		}
		reader.SetMaxOpenConns(sqliteReaders)
		if err := reader.PingContext(ctx); err != nil {
			_ = reader.Close()
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping sqlite reader: %w", err)
		}
		return &DB{DB: sqlDB, Reader: reader, Dialect: SQLite}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, config)
}

const sqliteReaders = 4

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

func sqliteReaderDSN(path string) string {
	dsn := sqliteDSN(path)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=query_only(1)"
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"forestlog/internal/db"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo runs queries against the connection, or against a transaction when
// obtained through WithTx. Pure reads go through rq, the reader pool.
type Repo struct {
	conn    *db.DB
	q       querier
	rq      querier
	dialect db.Dialect
}

func New(conn *db.DB) *Repo {
	reader := conn.Reader
	if reader == nil {
		reader = conn.DB
	}
	return &Repo{conn: conn, q: conn.DB, rq: reader, dialect: conn.Dialect}
}

// WithTx runs fn inside a SQL transaction. The Repo passed to fn is bound to
// that transaction; nested calls reuse it.
func (r *Repo) WithTx(ctx context.Context, fn func(tx *Repo) error) error {
	if r.conn == nil {
		return fn(r)
	}
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&Repo{q: tx, rq: tx, dialect: r.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// WithReadTx runs fn in a transaction on the reader pool, giving it one
// consistent snapshot. fn must not write.
func (r *Repo) WithReadTx(ctx context.Context, fn func(tx *Repo) error) error {
	if r.conn == nil {
		return fn(r)
	}
	reader := r.conn.Reader
	if reader == nil {
		reader = r.conn.DB
	}
	tx, err := reader.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&Repo{q: tx, rq: tx, dialect: r.dialect})
}

func (r *Repo) Ping(ctx context.Context) error {
	if r.conn == nil {
		return nil
	}
	return r.conn.PingContext(ctx)
}

func (r *Repo) ts(t time.Time) any {
	return db.FormatTime(r.dialect, t)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func optional(p *string) any {
	if p == nil {
		return nil
	}
	return nullString(*p)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

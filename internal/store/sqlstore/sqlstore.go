// Package sqlstore implements store.Repository over database/sql through
// sqlx. One code path serves PostgreSQL (pgx driver) and SQLite (modernc
// driver); the dialect only decides placeholders, row locking, isolation
// and how driver errors map onto store errors.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"apotekin/backend/internal/store"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type Store struct {
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time
}

var _ store.Repository = (*Store)(nil)

// OpenPostgres connects with the pgx stdlib driver and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	return open(ctx, db, Postgres)
}

// OpenSQLite opens a database file with the modernc driver. SQLite allows a
// single writer, so the pool is capped at one connection and every unit of
// work runs serially.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + path
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_time_format", "sqlite")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	db, err := sqlx.Open("sqlite", dsn+sep+q.Encode())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	return open(ctx, db, SQLite)
}

func open(ctx context.Context, db *sqlx.DB, dialect Dialect) (*Store, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s schema: %w", dialect, err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// WithTx runs fn inside one database transaction. Postgres units run
// serializable and lock the stock rows they touch; serialization failures
// and deadlocks surface as store.ErrConflict so the caller may retry.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var opts *sql.TxOptions
	if s.dialect == Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return s.mapErr(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txStore{tx: tx, dialect: s.dialect, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.mapErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) mapErr(err error) error {
	return mapErr(s.dialect, err)
}

// mapErr translates driver errors into store.ErrDuplicate and
// store.ErrConflict while keeping the driver error in the chain.
func mapErr(dialect Dialect, err error) error {
	if err == nil {
		return nil
	}
	switch dialect {
	case Postgres:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
			case "40001", "40P01", "55P03":
				return fmt.Errorf("%w: %w", store.ErrConflict, err)
			}
		}
	case SQLite:
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) {
			switch code := sqliteErr.Code(); {
			case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
				return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
			case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
				return fmt.Errorf("%w: %w", store.ErrConflict, err)
			}
		}
	}
	return err
}

// forUpdate is appended to stock reads inside a unit. SQLite has no row
// locks; its single connection already serializes units.
func (d Dialect) forUpdate() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// moneyOrder is the ORDER BY expression for a money column. SQLite keeps
// money as exact decimal text, which does not sort numerically.
func (d Dialect) moneyOrder(column string) string {
	if d == SQLite {
		return "CAST(" + column + " AS REAL)"
	}
	return column
}

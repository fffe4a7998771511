// Package database is the storage gateway shared by the staging repository and the matching
// service. It wraps database/sql so the same SQL runs against the FrontAccounting MySQL schema
// or a local SQLite file.
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect names the SQL engine behind a gateway.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// Gateway executes positional-parameter SQL and scopes transactions.
type Gateway interface {
	// Exec runs a statement; the result carries LastInsertId and RowsAffected.
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row

	// InTx runs fn inside a transaction. The transaction commits when fn returns nil and
	// rolls back otherwise. Calling InTx on a gateway already inside a transaction reuses it.
	InTx(ctx context.Context, fn func(tx Gateway) error) error

	// Table returns name with the configured table prefix, quoted for use in SQL.
	Table(name string) string
	Dialect() Dialect
	Close() error
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlGateway struct {
	db      *sql.DB
	q       querier
	inTx    bool
	prefix  string
	dialect Dialect
}

// New wraps an open *sql.DB.
func New(db *sql.DB, dialect Dialect, prefix string) Gateway {
	return &sqlGateway{db: db, q: db, prefix: prefix, dialect: dialect}
}

func (g *sqlGateway) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return g.q.ExecContext(ctx, query, args...)
}

func (g *sqlGateway) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return g.q.QueryContext(ctx, query, args...)
}

func (g *sqlGateway) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return g.q.QueryRowContext(ctx, query, args...)
}

func (g *sqlGateway) InTx(ctx context.Context, fn func(tx Gateway) error) error {
	if g.inTx {
		return fn(g)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txg := &sqlGateway{db: g.db, q: tx, inTx: true, prefix: g.prefix, dialect: g.dialect}
	if err := fn(txg); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Both engines accept backquoted identifiers; FrontAccounting prefixes start with a digit.
func (g *sqlGateway) Table(name string) string {
	return "`" + g.prefix + name + "`"
}

func (g *sqlGateway) Dialect() Dialect {
	return g.dialect
}

func (g *sqlGateway) Close() error {
	if g.inTx {
		return nil
	}
	return g.db.Close()
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Options selects and addresses the database.
type Options struct {
	Driver string // mysql or sqlite

	Host     string // host name, or /cloudsql/<connection> for a unix socket
	Port     int
	User     string
	Password string
	Name     string

	Path string // sqlite file, ":memory:" for a throwaway database

	TablePrefix string
}

// MySQLDSN builds the driver DSN. Times are parsed into time.Time in UTC and RowsAffected
// counts matched rows, not only changed ones.
func (o Options) MySQLDSN() string {
	cfg := mysql.NewConfig()
	cfg.ClientFoundRows = true
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.DBName = o.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if strings.HasPrefix(o.Host, "/cloudsql/") {
		cfg.Net = "unix"
		cfg.Addr = o.Host
	} else {
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", o.Host, o.Port)
	}
	return cfg.FormatDSN()
}

// Open connects and pings the configured database.
func Open(ctx context.Context, o Options) (Gateway, error) {
	const op = "Open"

	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	switch Dialect(o.Driver) {
	case MySQL:
		dialect = MySQL
		db, err = sql.Open("mysql", o.MySQLDSN())
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetConnMaxLifetime(5 * time.Minute)
		}
	case SQLite:
		dialect = SQLite
		db, err = sql.Open("sqlite", o.Path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
		if err == nil {
			// One connection: an in-memory database lives and dies with it.
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("%s: %w: %q", op, ErrUnsupportedDriver, o.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping %s: %w", op, dialect, err)
	}

	return New(db, dialect, o.TablePrefix), nil
}

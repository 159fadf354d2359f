// Package database opens the record stores used by each service. Postgres is
// the production driver; sqlite backs local development and tests.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite" // sqlite driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrUnsupportedURL = errors.New("database url must start with postgres://, postgresql:// or sqlite://")

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DB is a sqlx handle that remembers which dialect it speaks.
type DB struct {
	*sqlx.DB
	driver string
}

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string) (*DB, error) {
	driver, dsn, err := parseURL(url)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single connection keeps :memory: databases shared and avoids
		// SQLITE_BUSY on concurrent writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &DB{DB: db, driver: driver}, nil
}

func parseURL(url string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" || path == ":memory:" {
			return DriverSQLite, ":memory:", nil
		}
		return DriverSQLite, path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	default:
		return "", "", ErrUnsupportedURL
	}
}

// Driver returns the database/sql driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Builder returns a goqu dialect matching the driver.
func (db *DB) Builder() goqu.DialectWrapper {
	if db.driver == DriverSQLite {
		return goqu.Dialect("sqlite3")
	}
	return goqu.Dialect("postgres")
}

// Schema holds DDL statements per driver.
type Schema map[string][]string

// Migrate applies the statements for the current driver in order.
func (db *DB) Migrate(ctx context.Context, schema Schema) error {
	stmts, ok := schema[db.driver]
	if !ok {
		return fmt.Errorf("no schema for driver %s", db.driver)
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package database

import (
	"context"
	"errors"
	"testing"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		url    string
		driver string
		dsn    string
		err    error
	}{
		{url: "postgres://u:p@localhost/library", driver: DriverPostgres, dsn: "postgres://u:p@localhost/library"},
		{url: "postgresql://localhost/library", driver: DriverPostgres, dsn: "postgresql://localhost/library"},
		{url: "sqlite://", driver: DriverSQLite, dsn: ":memory:"},
		{url: "sqlite://:memory:", driver: DriverSQLite, dsn: ":memory:"},
		{url: "mysql://localhost", err: ErrUnsupportedURL},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, err := parseURL(tt.url)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestMigrateAndUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	defer db.Close()

	schema := Schema{
		DriverSQLite: {`CREATE TABLE IF NOT EXISTS things (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE)`},
	}
	require.NoError(t, db.Migrate(ctx, schema))
	require.NoError(t, db.Migrate(ctx, schema), "migrations are idempotent")

	_, err = db.ExecContext(ctx, db.Rebind(`INSERT INTO things (name) VALUES (?)`), "a")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, db.Rebind(`INSERT INTO things (name) VALUES (?)`), "a")
	assert.True(t, IsUniqueViolation(err))

	sql, args, err := db.Builder().From("things").Where(goqu.Ex{"name": "a"}).Prepared(true).ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, "?")
	assert.Equal(t, []any{"a"}, args)
}

func TestIsUniqueViolationPostgres(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestMigrateUnknownDriver(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite://")
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, db.Migrate(ctx, Schema{DriverPostgres: {"SELECT 1"}}))
}

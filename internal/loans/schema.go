// internal/loans/schema.go
package loans

import "github.com/muhaimeen90/Smart-Library-Distributed/internal/database"

// Schema creates the loan and reconciliation tables. user_id and book_id
// carry no foreign keys: the rows they point at live in other services.
var Schema = database.Schema{
	database.DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS loans (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			book_id BIGINT NOT NULL,
			issue_date TIMESTAMPTZ NOT NULL,
			due_date TIMESTAMPTZ NOT NULL,
			return_date TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'RETURNED')),
			extensions_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_user ON loans (user_id, issue_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_status_due ON loans (status, due_date)`,
		`CREATE TABLE IF NOT EXISTS reconciliations (
			id BIGSERIAL PRIMARY KEY,
			saga_id TEXT NOT NULL DEFAULT '',
			loan_id BIGINT,
			book_id BIGINT NOT NULL,
			operation TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		)`,
	},
	database.DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS loans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			book_id INTEGER NOT NULL,
			issue_date DATETIME NOT NULL,
			due_date DATETIME NOT NULL,
			return_date DATETIME,
			status TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'RETURNED')),
			extensions_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_user ON loans (user_id, issue_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_status_due ON loans (status, due_date)`,
		`CREATE TABLE IF NOT EXISTS reconciliations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			saga_id TEXT NOT NULL DEFAULT '',
			loan_id INTEGER,
			book_id INTEGER NOT NULL,
			operation TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			resolved_at DATETIME
		)`,
	},
}

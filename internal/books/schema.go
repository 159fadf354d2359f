// internal/books/schema.go
package books

import "github.com/muhaimeen90/Smart-Library-Distributed/internal/database"

// Schema creates the books table. The CHECK constraint backs the
// availability invariant.
var Schema = database.Schema{
	database.DriverPostgres: {`
		CREATE TABLE IF NOT EXISTS books (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			isbn TEXT NOT NULL UNIQUE,
			copies INT NOT NULL CHECK (copies >= 1),
			available_copies INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CHECK (available_copies >= 0 AND available_copies <= copies)
		)`,
	},
	database.DriverSQLite: {`
		CREATE TABLE IF NOT EXISTS books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			isbn TEXT NOT NULL UNIQUE,
			copies INTEGER NOT NULL CHECK (copies >= 1),
			available_copies INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			CHECK (available_copies >= 0 AND available_copies <= copies)
		)`,
	},
}

// internal/users/schema.go
package users

import "github.com/muhaimeen90/Smart-Library-Distributed/internal/database"

// Schema creates the users table.
var Schema = database.Schema{
	database.DriverPostgres: {`
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL DEFAULT 'student' CHECK (role IN ('student', 'faculty', 'admin')),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	},
	database.DriverSQLite: {`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL DEFAULT 'student' CHECK (role IN ('student', 'faculty', 'admin')),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	},
}

package storage

import (
	"strconv"

	// Database drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type dialect struct {
	name        string
	driver      string
	schema      []string
	placeholder func(n int) string
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite3",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS ` + Table + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			to_email VARCHAR(255) NOT NULL DEFAULT '',
			subject VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + Table + `_timestamp ON ` + Table + ` (timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_` + Table + `_status_timestamp ON ` + Table + ` (status, timestamp)`,
	},
	placeholder: func(int) string { return "?" },
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "pgx",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS ` + Table + ` (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			to_email VARCHAR(255) NOT NULL DEFAULT '',
			subject VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + Table + `_timestamp ON ` + Table + ` (timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_` + Table + `_status_timestamp ON ` + Table + ` (status, timestamp)`,
	},
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

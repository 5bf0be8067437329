package migrations

import (
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// IsSQLite checks if the database is SQLite
func IsSQLite(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.SQLite
}

// IsPostgreSQL checks if the database is PostgreSQL
func IsPostgreSQL(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.PG
}

// partialIndexWhere returns the predicate for an index over live rows.
// Both dialects accept partial indexes but spell booleans differently.
func partialIndexWhere(db *bun.DB, column string) string {
	if IsPostgreSQL(db) {
		return column + " = false"
	}
	return column + " = 0"
}

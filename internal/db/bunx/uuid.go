package bunx

import "github.com/google/uuid"

// NewUUIDv7 returns a time-ordered UUID for primary keys. It works on both
// Postgres and SQLite since neither needs a server-side generator.
// Panics only if the entropy source fails.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

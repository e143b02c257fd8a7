// Package postgres registers the lib/pq driver and opens remap dialect
// drivers over it.
package postgres

import (
	"github.com/remapdb/remap/dialect"
	"github.com/remapdb/remap/dialect/sql"

	_ "github.com/lib/pq"
)

// Open opens a PostgreSQL database at the given DSN.
func Open(dsn string) (*sql.Driver, error) {
	return sql.Open(dialect.Postgres, dsn)
}

// Package sqlite registers the pure-Go SQLite driver and opens remap
// dialect drivers over it.
package sqlite

import (
	"github.com/remapdb/remap/dialect"
	"github.com/remapdb/remap/dialect/sql"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database at the given DSN. Use ":memory:" or a
// "file:...?mode=memory&cache=shared" DSN for an in-memory store.
func Open(dsn string) (*sql.Driver, error) {
	return sql.Open(dialect.SQLite, dsn)
}

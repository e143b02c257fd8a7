// Package mysql registers the MySQL driver and opens remap dialect drivers
// over it.
package mysql

import (
	"github.com/remapdb/remap/dialect"
	"github.com/remapdb/remap/dialect/sql"

	_ "github.com/go-sql-driver/mysql"
)

// Open opens a MySQL database at the given DSN.
func Open(dsn string) (*sql.Driver, error) {
	return sql.Open(dialect.MySQL, dsn)
}

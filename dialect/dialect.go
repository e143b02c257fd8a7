// Package dialect provides the database dialect abstraction used by the
// remap runtime. It defines the driver interfaces the backend engine executes
// against and the constants identifying the supported dialects.
package dialect

import "context"

// Dialect names.
const (
	// SQLite is the sqlite dialect name.
	SQLite = "sqlite"
	// MySQL is the mysql dialect name.
	MySQL = "mysql"
	// Postgres is the postgres dialect name.
	Postgres = "postgres"
)

// ExecQuerier wraps the two standard database operations.
//
// Exec executes a statement that does not return rows. Query executes a
// statement that returns rows. In both cases args is the positional
// parameter list ([]any) and v is the result destination.
type ExecQuerier interface {
	Exec(ctx context.Context, query string, args, v any) error
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface the backend engine executes statements against.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The provided context is used until the transaction is committed or rolled back.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps transactional behavior around an ExecQuerier.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

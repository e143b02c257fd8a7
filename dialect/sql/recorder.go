package sql

import (
	"context"
	"sync"

	"github.com/remapdb/remap/dialect"
)

// Statement is one recorded statement: its SQL text and parameters.
type Statement struct {
	Query string
	Args  []any
}

// Recorder wraps a dialect.Driver and records every statement executed
// through it. It is intended for tests that assert on the exact SQL the
// engine emits, or count round trips to the store.
type Recorder struct {
	dialect.Driver

	mu    sync.Mutex
	stmts []Statement
}

// Record returns a Recorder wrapping the given driver.
func Record(drv dialect.Driver) *Recorder {
	return &Recorder{Driver: drv}
}

// Exec records the statement and delegates to the wrapped driver.
func (r *Recorder) Exec(ctx context.Context, query string, args, v any) error {
	r.record(query, args)
	return r.Driver.Exec(ctx, query, args, v)
}

// Query records the statement and delegates to the wrapped driver.
func (r *Recorder) Query(ctx context.Context, query string, args, v any) error {
	r.record(query, args)
	return r.Driver.Query(ctx, query, args, v)
}

func (r *Recorder) record(query string, args any) {
	argv, _ := args.([]any)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, Statement{Query: query, Args: argv})
}

// Statements returns a copy of the recorded statements.
func (r *Recorder) Statements() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Statement, len(r.stmts))
	copy(out, r.stmts)
	return out
}

// Len returns the number of recorded statements.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stmts)
}

// Reset clears the recorded statements.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = r.stmts[:0]
}

// Package backend implements the remap operation engine: descriptor-driven
// insert/find/update/delete/upsert against a dialect driver, returning
// identity-consistent records with lazily resolved relations.
package backend

import (
	"context"
	"sort"

	"github.com/remapdb/remap"
	"github.com/remapdb/remap/schema"
)

// Record is one materialized row: a mutable set of column values plus one
// lazy relation slot per relation declared (or backref-derived) on its
// table. Records for the same (table, primary key) identity are reconciled
// through the backend's identity map, so within one backend two finds of an
// unchanged row yield the same *Record.
//
// A Record is owned by the goroutine operating on its backend; it is not
// safe for concurrent mutation.
type Record struct {
	table     *schema.Table
	backend   *Backend
	values    map[string]any
	relations map[string]*relationState
}

// Table returns the record's table descriptor.
func (r *Record) Table() *schema.Table { return r.table }

// Get returns the value of the given column. The second result reports
// whether the column exists on the record's table.
func (r *Record) Get(col string) (any, bool) {
	if !r.table.HasColumn(col) {
		return nil, false
	}
	return r.values[col], true
}

// Values returns a copy of the record's column values.
func (r *Record) Values() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// RelationNames returns the record's relation slot names, sorted.
func (r *Record) RelationNames() []string {
	names := make([]string, 0, len(r.relations))
	for name := range r.relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Relation returns the value of the named relation, resolving it against
// the store on first access. The result is a *Record or nil for a to-one
// relation, and a []*Record for a to-many relation.
func (r *Record) Relation(ctx context.Context, name string) (any, error) {
	st, ok := r.relations[name]
	if !ok {
		return nil, remap.NewRelationNotFoundError(r.table.Name, name)
	}
	if !st.resolved {
		if err := r.backend.resolveRelation(ctx, r, st); err != nil {
			return nil, err
		}
	}
	return st.value, nil
}

// RelationOne is like Relation for a to-one relation, returning the related
// record or nil.
func (r *Record) RelationOne(ctx context.Context, name string) (*Record, error) {
	v, err := r.Relation(ctx, name)
	if err != nil || v == nil {
		return nil, err
	}
	rec, ok := v.(*Record)
	if !ok {
		return nil, remap.NewInvalidArgumentError("relation %q on table %q is not a to-one relation", name, r.table.Name)
	}
	return rec, nil
}

// RelationMany is like Relation for a to-many relation, returning the
// ordered list of related records.
func (r *Record) RelationMany(ctx context.Context, name string) ([]*Record, error) {
	v, err := r.Relation(ctx, name)
	if err != nil || v == nil {
		return nil, err
	}
	recs, ok := v.([]*Record)
	if !ok {
		return nil, remap.NewInvalidArgumentError("relation %q on table %q is not a to-many relation", name, r.table.Name)
	}
	return recs, nil
}

// RelationResolved reports whether the named relation slot has been
// resolved, without triggering resolution.
func (r *Record) RelationResolved(name string) bool {
	st, ok := r.relations[name]
	return ok && st.resolved
}

// InvalidateRelation resets the named relation slot to unresolved, forcing
// the next access to re-query the store.
func (r *Record) InvalidateRelation(name string) error {
	st, ok := r.relations[name]
	if !ok {
		return remap.NewRelationNotFoundError(r.table.Name, name)
	}
	st.reset()
	return nil
}

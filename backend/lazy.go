package backend

import (
	"context"
	"fmt"

	"github.com/remapdb/remap/schema"
)

// relationState is one lazy relation slot on a record. It starts
// unresolved; the first access queries the store and caches the result
// until the slot is reset. Resolution is idempotent with respect to the
// store: a resolved slot never re-queries.
type relationState struct {
	spec     *schema.Relation
	resolved bool
	value    any // *Record or nil (unique), []*Record (non-unique)
}

func (st *relationState) reset() {
	st.resolved = false
	st.value = nil
}

// attachRelations ensures rec carries a slot for every relation of its
// table and eagerly resolves the slots named in include. Slots that already
// exist keep their state unless included, so reconciling a cached record
// with fresh column values does not discard resolved relations.
func (b *Backend) attachRelations(ctx context.Context, rec *Record, include map[string]bool) error {
	for _, spec := range b.reg.Relations(rec.table) {
		st, ok := rec.relations[spec.Name]
		if !ok {
			st = &relationState{spec: spec}
			rec.relations[spec.Name] = st
		}
		if include[spec.Name] {
			if err := b.resolveRelation(ctx, rec, st); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveRelation queries the target table for the rows joined to rec by
// the relation mapping and caches the result on st. A nil value in any
// local mapping column short-circuits to the empty result without touching
// the store.
func (b *Backend) resolveRelation(ctx context.Context, rec *Record, st *relationState) error {
	where := make(map[string]any, len(st.spec.Mapping))
	for _, m := range st.spec.Mapping {
		v, ok := rec.Get(m.Local)
		if !ok {
			return fmt.Errorf("backend: relation %q on table %q maps unknown column %q", st.spec.Name, rec.table.Name, m.Local)
		}
		if v == nil {
			st.value = emptyRelationValue(st.spec)
			st.resolved = true
			return nil
		}
		where[m.Remote] = v
	}
	target, ok := b.reg.Table(st.spec.Target)
	if !ok {
		return fmt.Errorf("backend: relation %q on table %q targets unknown table %q", st.spec.Name, rec.table.Name, st.spec.Target)
	}
	if st.spec.Unique {
		related, err := b.FindFirst(ctx, target, FindOptions{Where: where})
		if err != nil {
			return err
		}
		if related == nil {
			st.value = nil
		} else {
			st.value = related
		}
	} else {
		related, err := b.FindMany(ctx, target, FindOptions{Where: where})
		if err != nil {
			return err
		}
		st.value = related
	}
	st.resolved = true
	return nil
}

// emptyRelationValue is the resolved value of a relation whose local join
// column is nil: nil for to-one, an empty list for to-many.
func emptyRelationValue(spec *schema.Relation) any {
	if spec.Unique {
		return nil
	}
	return []*Record{}
}

// invalidateBackrefs resets, on every live parent record that rec's foreign
// keys point at, the backref slot that would list rec. Only foreign keys
// targeting the parent's primary key can address a cached parent; others
// are skipped.
func (b *Backend) invalidateBackrefs(rec *Record) {
	for _, fk := range rec.table.ForeignKeys {
		if fk.Backref == "" {
			continue
		}
		remote, ok := b.reg.Table(fk.RemoteTable)
		if !ok || !columnsEqual(fk.RemoteColumns, remote.PrimaryKey) {
			continue
		}
		values := make(map[string]any, len(fk.Columns))
		addressable := true
		for i, col := range fk.Columns {
			v, ok := rec.Get(col)
			if !ok || v == nil {
				addressable = false
				break
			}
			values[fk.RemoteColumns[i]] = v
		}
		if !addressable {
			continue
		}
		key, ok := newIdentityKey(remote, values)
		if !ok {
			continue
		}
		for _, parent := range b.identity.lookupAll(key) {
			if st, ok := parent.relations[fk.Backref]; ok {
				st.reset()
			}
		}
	}
}

func columnsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

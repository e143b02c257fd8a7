// Package schema defines the descriptor model consumed by the remap
// runtime: per-table column, key, foreign-key and relation metadata, plus a
// registry that resolves relation targets lazily so mutually referencing
// tables can be declared in any order.
package schema

import (
	"fmt"

	"github.com/go-openapi/inflect"
)

// Column describes one table column.
type Column struct {
	Name          string
	Optional      bool
	AutoIncrement bool

	// Default and DefaultFunc supply a value for inserts that omit the
	// column. DefaultFunc wins when both are set.
	Default     any
	DefaultFunc func() any
}

// HasDefault reports whether the column declares a default value or a
// default generator.
func (c *Column) HasDefault() bool {
	return c.Default != nil || c.DefaultFunc != nil
}

// DefaultValue returns the column's default, invoking the generator if one
// is declared.
func (c *Column) DefaultValue() any {
	if c.DefaultFunc != nil {
		return c.DefaultFunc()
	}
	return c.Default
}

// ForeignKey describes a foreign key from this table to a remote table.
// Columns and RemoteColumns have the same arity and pair up by position.
// Backref optionally names the inverse relation synthesized on the remote
// table; the BackrefAuto sentinel derives the name from this table's name.
type ForeignKey struct {
	Columns       []string
	RemoteTable   string
	RemoteColumns []string
	Backref       string
}

// BackrefAuto, used as a ForeignKey.Backref value, derives the backref name
// from the child table name (pluralized and underscored for to-many,
// singularized for to-one).
const BackrefAuto = "auto"

// MapPair is one (owner column, target column) join pair of a relation.
type MapPair struct {
	Local  string // column on the owning table
	Remote string // column on the target table
}

// Relation describes a named relation from an owning table to a target
// table. Unique relations resolve to at most one instance; non-unique
// relations resolve to an ordered list.
type Relation struct {
	Name    string
	Target  string // target table name, resolved through the Registry
	Unique  bool
	Mapping []MapPair
}

// Table is the immutable per-table descriptor. It is constructed once,
// registered with a Registry, and shared across all backend instances.
type Table struct {
	Name          string
	Columns       []*Column
	PrimaryKey    []string
	ForeignKeys   []*ForeignKey
	Relations     []*Relation
	UniqueIndexes [][]string

	columns map[string]*Column
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.columns[name]
	return c, ok
}

// HasColumn reports whether the table declares the given column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// AutoIncrementKey returns the name of the single-column auto-increment
// primary key, or "" if the table does not have one.
func (t *Table) AutoIncrementKey() string {
	if len(t.PrimaryKey) != 1 {
		return ""
	}
	c, ok := t.columns[t.PrimaryKey[0]]
	if !ok || !c.AutoIncrement {
		return ""
	}
	return c.Name
}

// Registry holds the table descriptors of one schema and resolves
// cross-table references. Tables are added in any order; Finalize validates
// cross-references and synthesizes backref relations, after which the
// registry is read-only.
type Registry struct {
	tables    map[string]*Table
	relations map[string][]*Relation
	finalized bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Add registers the given tables, validating their table-local invariants.
func (r *Registry) Add(tables ...*Table) error {
	if r.finalized {
		return fmt.Errorf("schema: registry is finalized")
	}
	for _, t := range tables {
		if err := r.add(t); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) add(t *Table) error {
	if t.Name == "" {
		return fmt.Errorf("schema: table with empty name")
	}
	if _, ok := r.tables[t.Name]; ok {
		return fmt.Errorf("schema: duplicate table %q", t.Name)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("schema: table %q has no columns", t.Name)
	}
	t.columns = make(map[string]*Column, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema: table %q has a column with empty name", t.Name)
		}
		if _, ok := t.columns[c.Name]; ok {
			return fmt.Errorf("schema: table %q declares column %q twice", t.Name, c.Name)
		}
		t.columns[c.Name] = c
	}
	if len(t.PrimaryKey) == 0 {
		return fmt.Errorf("schema: table %q does not define a primary key", t.Name)
	}
	for _, pk := range t.PrimaryKey {
		if !t.HasColumn(pk) {
			return fmt.Errorf("schema: table %q primary key references unknown column %q", t.Name, pk)
		}
	}
	for _, idx := range t.UniqueIndexes {
		if len(idx) == 0 {
			return fmt.Errorf("schema: table %q declares an empty unique index", t.Name)
		}
		for _, col := range idx {
			if !t.HasColumn(col) {
				return fmt.Errorf("schema: table %q unique index references unknown column %q", t.Name, col)
			}
		}
	}
	for _, fk := range t.ForeignKeys {
		if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.RemoteColumns) {
			return fmt.Errorf("schema: table %q foreign key to %q has mismatched column arity", t.Name, fk.RemoteTable)
		}
		for _, col := range fk.Columns {
			if !t.HasColumn(col) {
				return fmt.Errorf("schema: table %q foreign key references unknown local column %q", t.Name, col)
			}
		}
	}
	for _, rel := range t.Relations {
		if rel.Name == "" {
			return fmt.Errorf("schema: table %q declares a relation with empty name", t.Name)
		}
		if len(rel.Mapping) == 0 {
			return fmt.Errorf("schema: table %q relation %q has an empty mapping", t.Name, rel.Name)
		}
		for _, m := range rel.Mapping {
			if !t.HasColumn(m.Local) {
				return fmt.Errorf("schema: table %q relation %q references unknown local column %q", t.Name, rel.Name, m.Local)
			}
		}
	}
	r.tables[t.Name] = t
	return nil
}

// Table returns the descriptor registered under the given name.
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns all registered descriptors.
func (r *Registry) Tables() []*Table {
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	return out
}

// Finalize validates cross-table references and synthesizes the backref
// relations implied by foreign keys. It must be called once, after all
// tables have been added.
func (r *Registry) Finalize() error {
	if r.finalized {
		return nil
	}
	r.relations = make(map[string][]*Relation, len(r.tables))
	for _, t := range r.tables {
		for _, rel := range t.Relations {
			target, ok := r.tables[rel.Target]
			if !ok {
				return fmt.Errorf("schema: table %q relation %q targets unknown table %q", t.Name, rel.Name, rel.Target)
			}
			for _, m := range rel.Mapping {
				if !target.HasColumn(m.Remote) {
					return fmt.Errorf("schema: table %q relation %q references unknown column %q on table %q", t.Name, rel.Name, m.Remote, rel.Target)
				}
			}
		}
		r.relations[t.Name] = append(r.relations[t.Name], t.Relations...)
	}
	for _, child := range r.tables {
		for _, fk := range child.ForeignKeys {
			remote, ok := r.tables[fk.RemoteTable]
			if !ok {
				return fmt.Errorf("schema: table %q foreign key targets unknown table %q", child.Name, fk.RemoteTable)
			}
			for _, col := range fk.RemoteColumns {
				if !remote.HasColumn(col) {
					return fmt.Errorf("schema: table %q foreign key references unknown column %q on table %q", child.Name, col, fk.RemoteTable)
				}
			}
			if fk.Backref == "" {
				continue
			}
			unique := equalColumns(child.PrimaryKey, fk.Columns)
			name := fk.Backref
			if name == BackrefAuto {
				name = DefaultBackref(child.Name, unique)
				fk.Backref = name
			}
			if r.hasRelation(remote.Name, name) {
				continue
			}
			mapping := make([]MapPair, len(fk.Columns))
			for i := range fk.Columns {
				mapping[i] = MapPair{Local: fk.RemoteColumns[i], Remote: fk.Columns[i]}
			}
			r.relations[remote.Name] = append(r.relations[remote.Name], &Relation{
				Name:    name,
				Target:  child.Name,
				Unique:  unique,
				Mapping: mapping,
			})
		}
	}
	r.finalized = true
	return nil
}

// Relations returns the relations of the given table, declared and
// backref-derived, in a stable order.
func (r *Registry) Relations(t *Table) []*Relation {
	return r.relations[t.Name]
}

// Relation returns the named relation of the given table.
func (r *Registry) Relation(t *Table, name string) (*Relation, bool) {
	for _, rel := range r.relations[t.Name] {
		if rel.Name == name {
			return rel, true
		}
	}
	return nil, false
}

func (r *Registry) hasRelation(table, name string) bool {
	for _, rel := range r.relations[table] {
		if rel.Name == name {
			return true
		}
	}
	return false
}

// DefaultBackref derives a backref relation name from the child table name:
// "OrderItem" becomes "order_items" for a to-many backref and "order_item"
// for a to-one backref.
func DefaultBackref(childTable string, unique bool) string {
	name := inflect.Underscore(childTable)
	if unique {
		return inflect.Singularize(name)
	}
	return inflect.Pluralize(name)
}

func equalColumns(a, b []string) bool {
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

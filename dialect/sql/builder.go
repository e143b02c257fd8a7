package sql

import (
	"strconv"
	"strings"

	"github.com/remapdb/remap/dialect"
)

// Builder is the base query builder. It holds the growing SQL text, the
// positional parameter list, and the dialect that controls identifier
// quoting and placeholder style.
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
}

// NewBuilder returns a Builder for the given dialect.
func NewBuilder(dialect string) *Builder {
	return &Builder{dialect: dialect}
}

// Dialect returns the builder dialect.
func (b *Builder) Dialect() string { return b.dialect }

// Quote returns the quoted form of the given identifier. Identifiers of the
// form "table.column" are quoted per segment.
func (b *Builder) Quote(ident string) string {
	quote := `"`
	if b.dialect == dialect.MySQL {
		quote = "`"
	}
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = quote + p + quote
	}
	return strings.Join(parts, ".")
}

// Ident writes the quoted identifier to the builder.
func (b *Builder) Ident(ident string) {
	b.sb.WriteString(b.Quote(ident))
}

// IdentComma writes the given identifiers, comma separated.
func (b *Builder) IdentComma(idents ...string) {
	for i, id := range idents {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Ident(id)
	}
}

// Arg appends the given value to the parameter list and writes its
// positional placeholder.
func (b *Builder) Arg(v any) {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
		return
	}
	b.sb.WriteByte('?')
}

// Args writes a comma separated placeholder list for the given values.
func (b *Builder) Args(vs ...any) {
	for i, v := range vs {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(v)
	}
}

// WriteString writes raw SQL text to the builder.
func (b *Builder) WriteString(s string) { b.sb.WriteString(s) }

// String returns the accumulated SQL text.
func (b *Builder) String() string { return b.sb.String() }

// SupportsReturning reports whether the dialect has native RETURNING
// support. Dialects without it require a follow-up find keyed by primary
// key to materialize write results.
func SupportsReturning(d string) bool {
	return d == dialect.SQLite || d == dialect.Postgres
}

// likeEscapeClause returns the ESCAPE clause matching the dialect's string
// literal rules for a backslash escape character.
func likeEscapeClause(d string) string {
	if d == dialect.MySQL {
		return ` ESCAPE '\\'`
	}
	return ` ESCAPE '\'`
}

// EscapeLike escapes the LIKE wildcard characters and the escape character
// itself in the given operand, so user input matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Predicate is a node in a compiled boolean criterion tree. Rendering a
// predicate appends its parameters to the owning builder in traversal
// order, keeping placeholders and parameters aligned 1:1.
type Predicate struct {
	fn func(*Builder)
}

func p(fn func(*Builder)) *Predicate { return &Predicate{fn: fn} }

// WriteTo renders the predicate into the given builder.
func (pr *Predicate) WriteTo(b *Builder) { pr.fn(b) }

func binary(col, op string, arg any) *Predicate {
	return p(func(b *Builder) {
		b.Ident(col)
		b.WriteString(" " + op + " ")
		b.Arg(arg)
	})
}

// EQ returns a column = value predicate.
func EQ(col string, arg any) *Predicate { return binary(col, "=", arg) }

// NEQ returns a column <> value predicate.
func NEQ(col string, arg any) *Predicate { return binary(col, "<>", arg) }

// GT returns a column > value predicate.
func GT(col string, arg any) *Predicate { return binary(col, ">", arg) }

// GTE returns a column >= value predicate.
func GTE(col string, arg any) *Predicate { return binary(col, ">=", arg) }

// LT returns a column < value predicate.
func LT(col string, arg any) *Predicate { return binary(col, "<", arg) }

// LTE returns a column <= value predicate.
func LTE(col string, arg any) *Predicate { return binary(col, "<=", arg) }

// IsNull returns a column IS NULL predicate.
func IsNull(col string) *Predicate {
	return p(func(b *Builder) {
		b.Ident(col)
		b.WriteString(" IS NULL")
	})
}

// NotNull returns a column IS NOT NULL predicate.
func NotNull(col string) *Predicate {
	return p(func(b *Builder) {
		b.Ident(col)
		b.WriteString(" IS NOT NULL")
	})
}

// In returns a column IN (...) predicate. An empty value list compiles to
// an always-false criterion.
func In(col string, args ...any) *Predicate {
	return p(func(b *Builder) {
		if len(args) == 0 {
			b.WriteString("FALSE")
			return
		}
		b.Ident(col)
		b.WriteString(" IN (")
		b.Args(args...)
		b.WriteString(")")
	})
}

// NotIn returns a column NOT IN (...) predicate. An empty value list
// compiles to an always-true criterion.
func NotIn(col string, args ...any) *Predicate {
	return p(func(b *Builder) {
		if len(args) == 0 {
			b.WriteString("TRUE")
			return
		}
		b.Ident(col)
		b.WriteString(" NOT IN (")
		b.Args(args...)
		b.WriteString(")")
	})
}

// Like returns a column LIKE pattern predicate with a backslash escape
// character. The pattern is passed through as-is; use EscapeLike on the
// literal part of the operand.
func Like(col, pattern string) *Predicate {
	return p(func(b *Builder) {
		b.Ident(col)
		b.WriteString(" LIKE ")
		b.Arg(pattern)
		b.WriteString(likeEscapeClause(b.dialect))
	})
}

// Contains returns a predicate matching rows whose column contains the
// given substring.
func Contains(col, sub string) *Predicate {
	return Like(col, "%"+EscapeLike(sub)+"%")
}

// HasPrefix returns a predicate matching rows whose column starts with the
// given prefix.
func HasPrefix(col, prefix string) *Predicate {
	return Like(col, EscapeLike(prefix)+"%")
}

// HasSuffix returns a predicate matching rows whose column ends with the
// given suffix.
func HasSuffix(col, suffix string) *Predicate {
	return Like(col, "%"+EscapeLike(suffix))
}

// ColumnsEQ returns a column = column predicate (used for correlated join
// conditions).
func ColumnsEQ(col1, col2 string) *Predicate {
	return p(func(b *Builder) {
		b.Ident(col1)
		b.WriteString(" = ")
		b.Ident(col2)
	})
}

// And returns the conjunction of the given predicates.
func And(preds ...*Predicate) *Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return p(func(b *Builder) {
		for i, pr := range preds {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString("(")
			pr.WriteTo(b)
			b.WriteString(")")
		}
	})
}

// Or returns the disjunction of the given predicates.
func Or(preds ...*Predicate) *Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return p(func(b *Builder) {
		for i, pr := range preds {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.WriteString("(")
			pr.WriteTo(b)
			b.WriteString(")")
		}
	})
}

// Not negates the given predicate.
func Not(pred *Predicate) *Predicate {
	return p(func(b *Builder) {
		b.WriteString("NOT (")
		pred.WriteTo(b)
		b.WriteString(")")
	})
}

// Exists returns an EXISTS (subquery) predicate.
func Exists(s *Selector) *Predicate {
	return p(func(b *Builder) {
		b.WriteString("EXISTS (")
		s.writeTo(b)
		b.WriteString(")")
	})
}

// NotExists returns a NOT EXISTS (subquery) predicate.
func NotExists(s *Selector) *Predicate {
	return p(func(b *Builder) {
		b.WriteString("NOT EXISTS (")
		s.writeTo(b)
		b.WriteString(")")
	})
}

// DialectBuilder is the entry point for constructing statement builders
// bound to a dialect.
type DialectBuilder struct {
	dialect string
}

// Dialect returns a DialectBuilder for the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Select returns a Selector for the given columns.
func (d *DialectBuilder) Select(cols ...string) *Selector {
	return &Selector{dialect: d.dialect, columns: cols}
}

// Insert returns an InsertBuilder for the given table.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{dialect: d.dialect, table: table}
}

// Update returns an UpdateBuilder for the given table.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{dialect: d.dialect, table: table}
}

// Delete returns a DeleteBuilder for the given table.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{dialect: d.dialect, table: table}
}

type orderTerm struct {
	column string
	desc   bool
}

// Selector builds a SELECT statement.
type Selector struct {
	dialect  string
	columns  []string
	table    string
	as       string
	raw1     bool // select the literal 1 (for EXISTS subqueries)
	where    *Predicate
	order    []orderTerm
	limit    *int
	offset   *int
	distinct []string
}

// SelectOne returns a `SELECT 1` Selector, used for EXISTS subqueries.
func (d *DialectBuilder) SelectOne() *Selector {
	return &Selector{dialect: d.dialect, raw1: true}
}

// From sets the source table of the selection.
func (s *Selector) From(table string) *Selector {
	s.table = table
	return s
}

// As sets an alias for the source table.
func (s *Selector) As(alias string) *Selector {
	s.as = alias
	return s
}

// Where sets the selection criterion, replacing any previous one.
func (s *Selector) Where(p *Predicate) *Selector {
	s.where = p
	return s
}

// OrderAsc appends an ascending order term.
func (s *Selector) OrderAsc(col string) *Selector {
	s.order = append(s.order, orderTerm{column: col})
	return s
}

// OrderDesc appends a descending order term.
func (s *Selector) OrderDesc(col string) *Selector {
	s.order = append(s.order, orderTerm{column: col, desc: true})
	return s
}

// Limit sets the LIMIT clause.
func (s *Selector) Limit(n int) *Selector {
	s.limit = &n
	return s
}

// Offset sets the OFFSET clause.
func (s *Selector) Offset(n int) *Selector {
	s.offset = &n
	return s
}

// Distinct requests group-wise deduplication over the given columns: rows
// are ranked per distinct group by the requested order (ascending by the
// distinct columns when no order is set) and only rank 1 survives. Limit
// and offset apply after deduplication.
func (s *Selector) Distinct(cols ...string) *Selector {
	s.distinct = cols
	return s
}

// Query returns the SQL text and the positional parameter list.
func (s *Selector) Query() (string, []any) {
	b := NewBuilder(s.dialect)
	s.writeTo(b)
	return b.String(), b.args
}

func (s *Selector) writeTo(b *Builder) {
	if len(s.distinct) > 0 {
		s.writeDistinct(b)
		return
	}
	b.WriteString("SELECT ")
	if s.raw1 {
		b.WriteString("1")
	} else {
		b.IdentComma(s.columns...)
	}
	b.WriteString(" FROM ")
	b.Ident(s.table)
	if s.as != "" {
		b.WriteString(" AS ")
		b.Ident(s.as)
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.WriteTo(b)
	}
	s.writeOrder(b, "")
	s.writePaging(b)
}

// writeDistinct emits the rank-and-filter form: the base selection is
// annotated with ROW_NUMBER() partitioned by the distinct columns, wrapped,
// and filtered to rank 1. Ordering and paging are applied to the wrapper so
// paging never skips raw (pre-deduplication) rows.
func (s *Selector) writeDistinct(b *Builder) {
	const alias = "__d"
	b.WriteString("SELECT ")
	b.Ident(alias)
	b.WriteString(".* FROM (SELECT ")
	b.IdentComma(s.columns...)
	b.WriteString(", ROW_NUMBER() OVER (PARTITION BY ")
	b.IdentComma(s.distinct...)
	b.WriteString(" ORDER BY ")
	if len(s.order) > 0 {
		for i, o := range s.order {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(o.column)
			if o.desc {
				b.WriteString(" DESC")
			} else {
				b.WriteString(" ASC")
			}
		}
	} else {
		for i, col := range s.distinct {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(col)
			b.WriteString(" ASC")
		}
	}
	b.WriteString(") AS ")
	b.Ident("rn")
	b.WriteString(" FROM ")
	b.Ident(s.table)
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.WriteTo(b)
	}
	b.WriteString(") AS ")
	b.Ident(alias)
	b.WriteString(" WHERE ")
	b.Ident(alias + ".rn")
	b.WriteString(" = 1")
	s.writeOrder(b, alias)
	s.writePaging(b)
}

func (s *Selector) writeOrder(b *Builder, qualifier string) {
	if len(s.order) == 0 {
		return
	}
	b.WriteString(" ORDER BY ")
	for i, o := range s.order {
		if i > 0 {
			b.WriteString(", ")
		}
		if qualifier != "" {
			b.Ident(qualifier + "." + o.column)
		} else {
			b.Ident(o.column)
		}
		if o.desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
}

func (s *Selector) writePaging(b *Builder) {
	limit := s.limit
	if limit == nil && s.offset != nil && b.dialect != dialect.Postgres {
		// SQLite and MySQL require a LIMIT clause before OFFSET.
		all := -1
		limit = &all
	}
	if limit != nil {
		b.WriteString(" LIMIT ")
		if *limit < 0 && b.dialect == dialect.MySQL {
			// MySQL has no "unlimited" literal; use its documented maximum.
			b.WriteString("18446744073709551615")
		} else {
			b.WriteString(strconv.Itoa(*limit))
		}
	}
	if s.offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*s.offset))
	}
}

type assign struct {
	column string
	value  any
}

// InsertBuilder builds an INSERT statement, optionally with an upsert
// conflict clause and a RETURNING clause.
type InsertBuilder struct {
	dialect         string
	table           string
	columns         []string
	values          [][]any
	returning       []string
	conflictColumns []string
	updateSet       []assign
}

// Columns sets the insert column list.
func (i *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	i.columns = cols
	return i
}

// Values appends one row of values, matching the column list.
func (i *InsertBuilder) Values(vals ...any) *InsertBuilder {
	i.values = append(i.values, vals)
	return i
}

// Returning sets the RETURNING column list. It is only emitted on dialects
// with native RETURNING support.
func (i *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	i.returning = cols
	return i
}

// OnConflict sets the upsert conflict target columns.
func (i *InsertBuilder) OnConflict(cols ...string) *InsertBuilder {
	i.conflictColumns = cols
	return i
}

// DoUpdateSet appends an assignment applied when the conflict target
// matches an existing row.
func (i *InsertBuilder) DoUpdateSet(col string, v any) *InsertBuilder {
	i.updateSet = append(i.updateSet, assign{column: col, value: v})
	return i
}

// Query returns the SQL text and the positional parameter list.
func (i *InsertBuilder) Query() (string, []any) {
	b := NewBuilder(i.dialect)
	b.WriteString("INSERT INTO ")
	b.Ident(i.table)
	b.WriteString(" (")
	b.IdentComma(i.columns...)
	b.WriteString(") VALUES ")
	for ri, row := range i.values {
		if ri > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		b.Args(row...)
		b.WriteString(")")
	}
	if len(i.updateSet) > 0 {
		if i.dialect == dialect.MySQL {
			b.WriteString(" ON DUPLICATE KEY UPDATE ")
		} else {
			b.WriteString(" ON CONFLICT (")
			b.IdentComma(i.conflictColumns...)
			b.WriteString(") DO UPDATE SET ")
		}
		for ai, a := range i.updateSet {
			if ai > 0 {
				b.WriteString(", ")
			}
			b.Ident(a.column)
			b.WriteString(" = ")
			b.Arg(a.value)
		}
	}
	if len(i.returning) > 0 && SupportsReturning(i.dialect) {
		b.WriteString(" RETURNING ")
		b.IdentComma(i.returning...)
	}
	return b.String(), b.args
}

// UpdateBuilder builds an UPDATE statement.
type UpdateBuilder struct {
	dialect   string
	table     string
	set       []assign
	where     *Predicate
	returning []string
}

// Set appends a column assignment.
func (u *UpdateBuilder) Set(col string, v any) *UpdateBuilder {
	u.set = append(u.set, assign{column: col, value: v})
	return u
}

// Where sets the update criterion.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	u.where = p
	return u
}

// Returning sets the RETURNING column list. It is only emitted on dialects
// with native RETURNING support.
func (u *UpdateBuilder) Returning(cols ...string) *UpdateBuilder {
	u.returning = cols
	return u
}

// Query returns the SQL text and the positional parameter list.
func (u *UpdateBuilder) Query() (string, []any) {
	b := NewBuilder(u.dialect)
	b.WriteString("UPDATE ")
	b.Ident(u.table)
	b.WriteString(" SET ")
	for i, a := range u.set {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(a.column)
		b.WriteString(" = ")
		b.Arg(a.value)
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where.WriteTo(b)
	}
	if len(u.returning) > 0 && SupportsReturning(u.dialect) {
		b.WriteString(" RETURNING ")
		b.IdentComma(u.returning...)
	}
	return b.String(), b.args
}

// DeleteBuilder builds a DELETE statement.
type DeleteBuilder struct {
	dialect   string
	table     string
	where     *Predicate
	returning []string
}

// Where sets the delete criterion.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	d.where = p
	return d
}

// Returning sets the RETURNING column list. It is only emitted on dialects
// with native RETURNING support.
func (d *DeleteBuilder) Returning(cols ...string) *DeleteBuilder {
	d.returning = cols
	return d
}

// Query returns the SQL text and the positional parameter list.
func (d *DeleteBuilder) Query() (string, []any) {
	b := NewBuilder(d.dialect)
	b.WriteString("DELETE FROM ")
	b.Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where.WriteTo(b)
	}
	if len(d.returning) > 0 && SupportsReturning(d.dialect) {
		b.WriteString(" RETURNING ")
		b.IdentComma(d.returning...)
	}
	return b.String(), b.args
}

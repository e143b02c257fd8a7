package backend

import (
	"context"
	"sort"

	"github.com/remapdb/remap"
	"github.com/remapdb/remap/dialect"
	"github.com/remapdb/remap/dialect/sql"
	"github.com/remapdb/remap/schema"
)

// Backend executes descriptor-driven operations against a dialect driver.
// All mutating operations reload affected rows (RETURNING where the dialect
// supports it), reconcile them through the identity map, and invalidate the
// backref slots of live parent records, so a read after a write observes
// the write.
type Backend struct {
	drv      dialect.Driver
	reg      *schema.Registry
	identity *identityMap
}

// New returns a Backend over the given driver and finalized registry.
func New(drv dialect.Driver, reg *schema.Registry) *Backend {
	return &Backend{drv: drv, reg: reg, identity: newIdentityMap()}
}

// Registry returns the backend's schema registry.
func (b *Backend) Registry() *schema.Registry { return b.reg }

// Driver returns the underlying driver.
func (b *Backend) Driver() dialect.Driver { return b.drv }

// Close clears the identity map and closes the underlying driver.
func (b *Backend) Close() error {
	b.identity.clear()
	return b.drv.Close()
}

func (b *Backend) dialect() string { return b.drv.Dialect() }

func (b *Backend) returning() bool { return sql.SupportsReturning(b.dialect()) }

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// OrderTerm is one ORDER BY term.
type OrderTerm struct {
	Column    string
	Direction Order
}

// OrderAsc returns an ascending order term for col.
func OrderAsc(col string) OrderTerm { return OrderTerm{Column: col, Direction: Asc} }

// OrderDesc returns a descending order term for col.
func OrderDesc(col string) OrderTerm { return OrderTerm{Column: col, Direction: Desc} }

// FindOptions shape a find: filter, eager relations, ordering, distinct
// projection and paging. Distinct selects one representative row per
// distinct-column combination; a non-nil empty Distinct is invalid. Take
// and Skip are pointers so zero is distinguishable from unset.
type FindOptions struct {
	Where    map[string]any
	Include  map[string]bool
	OrderBy  []OrderTerm
	Distinct []string
	Take     *int
	Skip     *int
}

// FindMany returns all records of tbl matching the options, in store order
// unless OrderBy is given.
func (b *Backend) FindMany(ctx context.Context, tbl *schema.Table, opts FindOptions) ([]*Record, error) {
	if err := b.validateInclude(tbl, opts.Include); err != nil {
		return nil, err
	}
	query, args, err := b.buildSelect(tbl, opts)
	if err != nil {
		return nil, err
	}
	rows, err := b.queryRows(ctx, query, args)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := b.materialize(ctx, tbl, row, opts.Include)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// FindFirst returns the first record matching the options, or nil when none
// matches.
func (b *Backend) FindFirst(ctx context.Context, tbl *schema.Table, opts FindOptions) (*Record, error) {
	one := 1
	opts.Take = &one
	recs, err := b.FindMany(ctx, tbl, opts)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Insert inserts one row and returns its reloaded record.
func (b *Backend) Insert(ctx context.Context, tbl *schema.Table, data any) (*Record, error) {
	return b.insert(ctx, tbl, data, nil)
}

// InsertWith is Insert with eagerly resolved relations on the result.
func (b *Backend) InsertWith(ctx context.Context, tbl *schema.Table, data any, include map[string]bool) (*Record, error) {
	if err := b.validateInclude(tbl, include); err != nil {
		return nil, err
	}
	return b.insert(ctx, tbl, data, include)
}

func (b *Backend) insert(ctx context.Context, tbl *schema.Table, data any, include map[string]bool) (*Record, error) {
	payload, err := b.insertPayload(tbl, data)
	if err != nil {
		return nil, err
	}
	cols := orderedColumns(tbl, payload)
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = payload[c]
	}
	ins := sql.Dialect(b.dialect()).Insert(tbl.Name).Columns(cols...).Values(vals...)
	var rec *Record
	if b.returning() {
		query, args := ins.Returning(tbl.ColumnNames()...).Query()
		rows, err := b.queryRows(ctx, query, args)
		if err != nil {
			return nil, err
		}
		if len(rows) != 1 {
			return nil, remap.NewConsistencyError(tbl.Name, "insert", len(rows))
		}
		rec, err = b.materialize(ctx, tbl, rows[0], include)
		if err != nil {
			return nil, err
		}
	} else {
		query, args := ins.Query()
		var res sql.Result
		if err := b.drv.Exec(ctx, query, args, &res); err != nil {
			return nil, err
		}
		keyFilter, err := b.insertKeyFilter(tbl, payload, res)
		if err != nil {
			return nil, err
		}
		rec, err = b.reloadOne(ctx, tbl, keyFilter, include, "insert")
		if err != nil {
			return nil, err
		}
	}
	b.invalidateBackrefs(rec)
	return rec, nil
}

// InsertMany inserts the given rows in chunks of batchSize (one chunk when
// batchSize <= 0) and returns the reloaded records in input order. Each
// chunk is one statement, so a failing chunk leaves earlier chunks applied.
func (b *Backend) InsertMany(ctx context.Context, tbl *schema.Table, data []any, batchSize int) ([]*Record, error) {
	if len(data) == 0 {
		return []*Record{}, nil
	}
	payloads := make([]map[string]any, len(data))
	for i, d := range data {
		p, err := b.insertPayload(tbl, d)
		if err != nil {
			return nil, err
		}
		payloads[i] = p
	}
	// Column set of the whole batch: the union, in declaration order.
	// Payloads missing a column insert NULL for it.
	union := make(map[string]any)
	for _, p := range payloads {
		for k := range p {
			union[k] = nil
		}
	}
	cols := orderedColumns(tbl, union)
	if batchSize <= 0 {
		batchSize = len(payloads)
	}
	out := make([]*Record, 0, len(payloads))
	for start := 0; start < len(payloads); start += batchSize {
		end := min(start+batchSize, len(payloads))
		recs, err := b.insertChunk(ctx, tbl, cols, payloads[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	for _, rec := range out {
		b.invalidateBackrefs(rec)
	}
	return out, nil
}

func (b *Backend) insertChunk(ctx context.Context, tbl *schema.Table, cols []string, payloads []map[string]any) ([]*Record, error) {
	ins := sql.Dialect(b.dialect()).Insert(tbl.Name).Columns(cols...)
	for _, p := range payloads {
		vals := make([]any, len(cols))
		for i, c := range cols {
			vals[i] = p[c]
		}
		ins.Values(vals...)
	}
	if b.returning() {
		query, args := ins.Returning(tbl.ColumnNames()...).Query()
		rows, err := b.queryRows(ctx, query, args)
		if err != nil {
			return nil, err
		}
		if len(rows) != len(payloads) {
			return nil, remap.NewConsistencyError(tbl.Name, "insert", len(rows))
		}
		recs := make([]*Record, len(rows))
		for i, row := range rows {
			rec, err := b.materialize(ctx, tbl, row, nil)
			if err != nil {
				return nil, err
			}
			recs[i] = rec
		}
		return recs, nil
	}
	query, args := ins.Query()
	var res sql.Result
	if err := b.drv.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	// MySQL reports the first generated id of a multi-row insert; the rest
	// follow sequentially.
	first := int64(0)
	auto := tbl.AutoIncrementKey()
	if auto != "" {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		first = id
	}
	recs := make([]*Record, len(payloads))
	for i, p := range payloads {
		keyFilter := make(map[string]any, len(tbl.PrimaryKey))
		for _, pk := range tbl.PrimaryKey {
			v, ok := p[pk]
			if (!ok || v == nil) && pk == auto {
				v = first + int64(i)
				ok = true
			}
			if !ok || v == nil {
				return nil, remap.NewInvalidArgumentError("insert into %q cannot be reloaded: primary key column %q has no value", tbl.Name, pk)
			}
			keyFilter[pk] = v
		}
		rec, err := b.reloadOne(ctx, tbl, keyFilter, nil, "insert")
		if err != nil {
			return nil, err
		}
		recs[i] = rec
	}
	return recs, nil
}

// Update updates exactly one row matching where and returns its reloaded
// record. Matching zero rows or more than one is a ConsistencyError.
func (b *Backend) Update(ctx context.Context, tbl *schema.Table, data any, where map[string]any, include map[string]bool) (*Record, error) {
	if err := b.validateInclude(tbl, include); err != nil {
		return nil, err
	}
	set, err := normalizePayload(tbl, data)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, remap.NewInvalidArgumentError("update payload for table %q is empty", tbl.Name)
	}
	if b.returning() {
		pred, err := b.compileWhere(tbl, where)
		if err != nil {
			return nil, err
		}
		upd := sql.Dialect(b.dialect()).Update(tbl.Name)
		for _, c := range orderedColumns(tbl, set) {
			upd.Set(c, set[c])
		}
		query, args := upd.Where(pred).Returning(tbl.ColumnNames()...).Query()
		rows, err := b.queryRows(ctx, query, args)
		if err != nil {
			return nil, err
		}
		if len(rows) != 1 {
			return nil, remap.NewConsistencyError(tbl.Name, "update", len(rows))
		}
		rec, err := b.materialize(ctx, tbl, rows[0], include)
		if err != nil {
			return nil, err
		}
		b.evict(rec)
		b.invalidateBackrefs(rec)
		return rec, nil
	}
	// Without RETURNING: pin down the single matching row by primary key,
	// update it, then reload it.
	keys, err := b.selectKeys(ctx, tbl, where, 2)
	if err != nil {
		return nil, err
	}
	if len(keys) != 1 {
		return nil, remap.NewConsistencyError(tbl.Name, "update", len(keys))
	}
	if err := b.execUpdate(ctx, tbl, set, keys[0]); err != nil {
		return nil, err
	}
	rec, err := b.reloadOne(ctx, tbl, keys[0], include, "update")
	if err != nil {
		return nil, err
	}
	b.evict(rec)
	b.invalidateBackrefs(rec)
	return rec, nil
}

// UpdateMany updates all rows matching where and returns how many.
func (b *Backend) UpdateMany(ctx context.Context, tbl *schema.Table, data any, where map[string]any) (int, error) {
	n, _, err := b.updateMany(ctx, tbl, data, where, false)
	return n, err
}

// UpdateManyRecords updates all rows matching where and returns their
// reloaded records.
func (b *Backend) UpdateManyRecords(ctx context.Context, tbl *schema.Table, data any, where map[string]any) ([]*Record, error) {
	_, recs, err := b.updateMany(ctx, tbl, data, where, true)
	return recs, err
}

func (b *Backend) updateMany(ctx context.Context, tbl *schema.Table, data any, where map[string]any, records bool) (int, []*Record, error) {
	set, err := normalizePayload(tbl, data)
	if err != nil {
		return 0, nil, err
	}
	if len(set) == 0 {
		return 0, nil, remap.NewInvalidArgumentError("update payload for table %q is empty", tbl.Name)
	}
	if b.returning() {
		pred, err := b.compileWhere(tbl, where)
		if err != nil {
			return 0, nil, err
		}
		upd := sql.Dialect(b.dialect()).Update(tbl.Name)
		for _, c := range orderedColumns(tbl, set) {
			upd.Set(c, set[c])
		}
		query, args := upd.Where(pred).Returning(tbl.ColumnNames()...).Query()
		rows, err := b.queryRows(ctx, query, args)
		if err != nil {
			return 0, nil, err
		}
		var recs []*Record
		for _, row := range rows {
			rec, err := b.materialize(ctx, tbl, row, nil)
			if err != nil {
				return 0, nil, err
			}
			b.evict(rec)
			b.invalidateBackrefs(rec)
			if records {
				recs = append(recs, rec)
			}
		}
		return len(rows), recs, nil
	}
	keys, err := b.selectKeys(ctx, tbl, where, 0)
	if err != nil {
		return 0, nil, err
	}
	pred, err := b.compileWhere(tbl, where)
	if err != nil {
		return 0, nil, err
	}
	upd := sql.Dialect(b.dialect()).Update(tbl.Name)
	for _, c := range orderedColumns(tbl, set) {
		upd.Set(c, set[c])
	}
	query, args := upd.Where(pred).Query()
	var res sql.Result
	if err := b.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil, err
	}
	var recs []*Record
	for _, key := range keys {
		if k, ok := newIdentityKey(tbl, key); ok {
			b.identity.evict(k)
		}
		if records {
			rec, err := b.reloadOne(ctx, tbl, key, nil, "update")
			if err != nil {
				return 0, nil, err
			}
			b.invalidateBackrefs(rec)
			recs = append(recs, rec)
		}
	}
	return int(n), recs, nil
}

// Delete deletes at most one row matching where and returns its final
// state, or nil when no row matched. Matching more than one row is a
// ConsistencyError.
func (b *Backend) Delete(ctx context.Context, tbl *schema.Table, where map[string]any, include map[string]bool) (*Record, error) {
	if err := b.validateInclude(tbl, include); err != nil {
		return nil, err
	}
	if b.returning() {
		pred, err := b.compileWhere(tbl, where)
		if err != nil {
			return nil, err
		}
		query, args := sql.Dialect(b.dialect()).Delete(tbl.Name).Where(pred).Returning(tbl.ColumnNames()...).Query()
		rows, err := b.queryRows(ctx, query, args)
		if err != nil {
			return nil, err
		}
		switch len(rows) {
		case 0:
			return nil, nil
		case 1:
		default:
			return nil, remap.NewConsistencyError(tbl.Name, "delete", len(rows))
		}
		rec, err := b.materialize(ctx, tbl, rows[0], include)
		if err != nil {
			return nil, err
		}
		b.evict(rec)
		b.invalidateBackrefs(rec)
		return rec, nil
	}
	keys, err := b.selectKeys(ctx, tbl, where, 2)
	if err != nil {
		return nil, err
	}
	switch len(keys) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, remap.NewConsistencyError(tbl.Name, "delete", len(keys))
	}
	// Capture the row before it is gone.
	rec, err := b.reloadOne(ctx, tbl, keys[0], include, "delete")
	if err != nil {
		return nil, err
	}
	if err := b.execDelete(ctx, tbl, keys[0]); err != nil {
		return nil, err
	}
	b.evict(rec)
	b.invalidateBackrefs(rec)
	return rec, nil
}

// DeleteMany deletes all rows matching where and returns how many.
func (b *Backend) DeleteMany(ctx context.Context, tbl *schema.Table, where map[string]any) (int, error) {
	n, _, err := b.deleteMany(ctx, tbl, where, false)
	return n, err
}

// DeleteManyRecords deletes all rows matching where and returns their final
// states.
func (b *Backend) DeleteManyRecords(ctx context.Context, tbl *schema.Table, where map[string]any) ([]*Record, error) {
	_, recs, err := b.deleteMany(ctx, tbl, where, true)
	return recs, err
}

func (b *Backend) deleteMany(ctx context.Context, tbl *schema.Table, where map[string]any, records bool) (int, []*Record, error) {
	if b.returning() {
		pred, err := b.compileWhere(tbl, where)
		if err != nil {
			return 0, nil, err
		}
		query, args := sql.Dialect(b.dialect()).Delete(tbl.Name).Where(pred).Returning(tbl.ColumnNames()...).Query()
		rows, err := b.queryRows(ctx, query, args)
		if err != nil {
			return 0, nil, err
		}
		var recs []*Record
		for _, row := range rows {
			rec, err := b.materialize(ctx, tbl, row, nil)
			if err != nil {
				return 0, nil, err
			}
			b.evict(rec)
			b.invalidateBackrefs(rec)
			if records {
				recs = append(recs, rec)
			}
		}
		return len(rows), recs, nil
	}
	var (
		recs []*Record
		keys []map[string]any
		err  error
	)
	if records {
		recs, err = b.FindMany(ctx, tbl, FindOptions{Where: where})
	} else {
		keys, err = b.selectKeys(ctx, tbl, where, 0)
	}
	if err != nil {
		return 0, nil, err
	}
	pred, err := b.compileWhere(tbl, where)
	if err != nil {
		return 0, nil, err
	}
	query, args := sql.Dialect(b.dialect()).Delete(tbl.Name).Where(pred).Query()
	var res sql.Result
	if err := b.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil, err
	}
	for _, rec := range recs {
		b.evict(rec)
		b.invalidateBackrefs(rec)
	}
	for _, key := range keys {
		if k, ok := newIdentityKey(tbl, key); ok {
			b.identity.evict(k)
		}
	}
	return int(n), recs, nil
}

// Upsert inserts a row or, on conflict with the key named by where, updates
// it. The where keys must exactly cover the table's primary key or one of
// its unique indexes. The insert payload is the insert data completed with
// the where values; update is applied on conflict.
func (b *Backend) Upsert(ctx context.Context, tbl *schema.Table, where map[string]any, insert, update any, include map[string]bool) (*Record, error) {
	if err := b.validateInclude(tbl, include); err != nil {
		return nil, err
	}
	conflictCols, err := b.conflictTarget(tbl, where)
	if err != nil {
		return nil, err
	}
	updSet, err := normalizePayload(tbl, update)
	if err != nil {
		return nil, err
	}
	if len(updSet) == 0 {
		return nil, remap.NewInvalidArgumentError("upsert update payload for table %q is empty", tbl.Name)
	}
	insPayload, err := b.insertPayload(tbl, insert)
	if err != nil {
		return nil, err
	}
	for k, v := range where {
		if _, ok := insPayload[k]; !ok {
			insPayload[k] = v
		}
	}
	cols := orderedColumns(tbl, insPayload)
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = insPayload[c]
	}
	ins := sql.Dialect(b.dialect()).Insert(tbl.Name).Columns(cols...).Values(vals...).OnConflict(conflictCols...)
	for _, c := range orderedColumns(tbl, updSet) {
		ins.DoUpdateSet(c, updSet[c])
	}
	if b.returning() {
		query, args := ins.Returning(tbl.ColumnNames()...).Query()
		rows, err := b.queryRows(ctx, query, args)
		if err != nil {
			return nil, err
		}
		if len(rows) != 1 {
			return nil, remap.NewConsistencyError(tbl.Name, "upsert", len(rows))
		}
		rec, err := b.materialize(ctx, tbl, rows[0], include)
		if err != nil {
			return nil, err
		}
		b.evict(rec)
		b.invalidateBackrefs(rec)
		return rec, nil
	}
	query, args := ins.Query()
	if err := b.drv.Exec(ctx, query, args, nil); err != nil {
		return nil, err
	}
	rec, err := b.reloadOne(ctx, tbl, where, include, "upsert")
	if err != nil {
		return nil, err
	}
	b.evict(rec)
	b.invalidateBackrefs(rec)
	return rec, nil
}

// QueryRaw runs an arbitrary query and returns its rows as column-name
// keyed maps, bypassing descriptors and the identity map.
func (b *Backend) QueryRaw(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return b.queryRows(ctx, query, args)
}

// ExecRaw runs an arbitrary statement and returns the affected row count.
func (b *Backend) ExecRaw(ctx context.Context, query string, args ...any) (int64, error) {
	var res sql.Result
	if err := b.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- internals ---

func (b *Backend) validateInclude(tbl *schema.Table, include map[string]bool) error {
	for name, on := range include {
		if !on {
			continue
		}
		if _, ok := b.reg.Relation(tbl, name); !ok {
			return remap.NewRelationNotFoundError(tbl.Name, name)
		}
	}
	return nil
}

func (b *Backend) buildSelect(tbl *schema.Table, opts FindOptions) (string, []any, error) {
	if opts.Distinct != nil && len(opts.Distinct) == 0 {
		return "", nil, remap.NewInvalidArgumentError("distinct column list for table %q is empty", tbl.Name)
	}
	for _, col := range opts.Distinct {
		if !tbl.HasColumn(col) {
			return "", nil, remap.NewColumnNotFoundError(tbl.Name, col)
		}
	}
	sel := sql.Dialect(b.dialect()).Select(tbl.ColumnNames()...).From(tbl.Name)
	pred, err := b.compileWhere(tbl, opts.Where)
	if err != nil {
		return "", nil, err
	}
	if pred != nil {
		sel.Where(pred)
	}
	for _, term := range opts.OrderBy {
		if !tbl.HasColumn(term.Column) {
			return "", nil, remap.NewColumnNotFoundError(tbl.Name, term.Column)
		}
		switch term.Direction {
		case Asc:
			sel.OrderAsc(term.Column)
		case Desc:
			sel.OrderDesc(term.Column)
		default:
			return "", nil, remap.NewInvalidArgumentError("invalid order direction %q for column %q", term.Direction, term.Column)
		}
	}
	if len(opts.Distinct) > 0 {
		sel.Distinct(opts.Distinct...)
	}
	if opts.Take != nil {
		sel.Limit(*opts.Take)
	}
	if opts.Skip != nil {
		sel.Offset(*opts.Skip)
	}
	query, args := sel.Query()
	return query, args, nil
}

// selectKeys returns the primary-key values of the rows matching where,
// optionally limited. Used on dialects without RETURNING to pin down
// affected rows before a write.
func (b *Backend) selectKeys(ctx context.Context, tbl *schema.Table, where map[string]any, limit int) ([]map[string]any, error) {
	pred, err := b.compileWhere(tbl, where)
	if err != nil {
		return nil, err
	}
	sel := sql.Dialect(b.dialect()).Select(tbl.PrimaryKey...).From(tbl.Name)
	if pred != nil {
		sel.Where(pred)
	}
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()
	return b.queryRows(ctx, query, args)
}

func (b *Backend) execUpdate(ctx context.Context, tbl *schema.Table, set, keyFilter map[string]any) error {
	pred, err := b.compileWhere(tbl, keyFilter)
	if err != nil {
		return err
	}
	upd := sql.Dialect(b.dialect()).Update(tbl.Name)
	for _, c := range orderedColumns(tbl, set) {
		upd.Set(c, set[c])
	}
	query, args := upd.Where(pred).Query()
	return b.drv.Exec(ctx, query, args, nil)
}

func (b *Backend) execDelete(ctx context.Context, tbl *schema.Table, keyFilter map[string]any) error {
	pred, err := b.compileWhere(tbl, keyFilter)
	if err != nil {
		return err
	}
	query, args := sql.Dialect(b.dialect()).Delete(tbl.Name).Where(pred).Query()
	return b.drv.Exec(ctx, query, args, nil)
}

// insertPayload normalizes an insert payload and applies column defaults.
func (b *Backend) insertPayload(tbl *schema.Table, data any) (map[string]any, error) {
	payload, err := normalizePayload(tbl, data)
	if err != nil {
		return nil, err
	}
	applyDefaults(tbl, payload)
	if len(payload) == 0 {
		return nil, remap.NewInvalidArgumentError("insert payload for table %q is empty", tbl.Name)
	}
	return payload, nil
}

// insertKeyFilter derives the primary-key filter that reloads a row just
// inserted without RETURNING: the payload's key values, with a missing
// auto-increment key taken from the statement result.
func (b *Backend) insertKeyFilter(tbl *schema.Table, payload map[string]any, res sql.Result) (map[string]any, error) {
	auto := tbl.AutoIncrementKey()
	filter := make(map[string]any, len(tbl.PrimaryKey))
	for _, pk := range tbl.PrimaryKey {
		v, ok := payload[pk]
		if (!ok || v == nil) && pk == auto {
			id, err := res.LastInsertId()
			if err != nil {
				return nil, err
			}
			v, ok = id, true
		}
		if !ok || v == nil {
			return nil, remap.NewInvalidArgumentError("insert into %q cannot be reloaded: primary key column %q has no value", tbl.Name, pk)
		}
		filter[pk] = v
	}
	return filter, nil
}

// reloadOne fetches exactly one row by filter, for read-back after a write
// on dialects without RETURNING.
func (b *Backend) reloadOne(ctx context.Context, tbl *schema.Table, where map[string]any, include map[string]bool, op string) (*Record, error) {
	recs, err := b.FindMany(ctx, tbl, FindOptions{Where: where, Include: include})
	if err != nil {
		return nil, err
	}
	if len(recs) != 1 {
		return nil, remap.NewConsistencyError(tbl.Name, op, len(recs))
	}
	return recs[0], nil
}

// conflictTarget validates that the where keys of an upsert exactly cover
// the primary key or one unique index, and returns the covered columns in
// declaration order.
func (b *Backend) conflictTarget(tbl *schema.Table, where map[string]any) ([]string, error) {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if matchesColumns(keys, tbl.PrimaryKey) {
		return tbl.PrimaryKey, nil
	}
	for _, idx := range tbl.UniqueIndexes {
		if matchesColumns(keys, idx) {
			return idx, nil
		}
	}
	return nil, remap.NewInvalidArgumentError("upsert where keys %v do not match the primary key or a unique index of table %q", keys, tbl.Name)
}

// matchesColumns reports set-equality between the sorted keys and cols.
func matchesColumns(sortedKeys, cols []string) bool {
	if len(sortedKeys) != len(cols) {
		return false
	}
	sorted := append([]string(nil), cols...)
	sort.Strings(sorted)
	for i := range sorted {
		if sorted[i] != sortedKeys[i] {
			return false
		}
	}
	return true
}

// materialize reconciles one scanned row into the identity map: a live
// record with the same identity is updated in place, otherwise a new record
// is created and registered. Rows with a nil primary-key value bypass the
// map.
func (b *Backend) materialize(ctx context.Context, tbl *schema.Table, row map[string]any, include map[string]bool) (*Record, error) {
	key, hasKey := newIdentityKey(tbl, row)
	var rec *Record
	if hasKey {
		rec = b.identity.lookup(key)
	}
	if rec == nil {
		values := make(map[string]any, len(row))
		for k, v := range row {
			values[k] = v
		}
		rec = &Record{
			table:     tbl,
			backend:   b,
			values:    values,
			relations: make(map[string]*relationState),
		}
		if hasKey {
			b.identity.register(key, rec)
		}
	} else {
		for k, v := range row {
			rec.values[k] = v
		}
	}
	if err := b.attachRelations(ctx, rec, include); err != nil {
		return nil, err
	}
	return rec, nil
}

func (b *Backend) evict(rec *Record) {
	if key, ok := newIdentityKey(rec.table, rec.values); ok {
		b.identity.evict(key)
	}
}

// queryRows runs a query and scans every row into a column-name keyed map.
func (b *Backend) queryRows(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	var rows sql.Rows
	if err := b.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if bs, ok := vals[i].([]byte); ok {
				row[c] = string(bs)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

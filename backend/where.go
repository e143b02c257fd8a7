package backend

import (
	"sort"
	"strconv"

	"github.com/remapdb/remap"
	"github.com/remapdb/remap/dialect/sql"
	"github.com/remapdb/remap/schema"
)

// The filter language is a nested map. Keys at a filter level are column
// names, relation names, or the combinators AND / OR / NOT; sibling entries
// conjoin. A column maps to a bare value (equality, nil meaning IS NULL) or
// to an operator map {EQ, NOT, IN, LT, LTE, GT, GTE, CONTAINS, STARTS_WITH,
// ENDS_WITH}. A relation maps to a single quantifier {IS, IS_NOT} (to-one)
// or {SOME, NONE, EVERY} (to-many) whose operand is a nested filter on the
// target table, compiled to a correlated EXISTS subquery.
//
// Map iteration order is randomized in Go, so the compiler visits keys
// sorted; the same filter always compiles to the same SQL.

type whereCompiler struct {
	b     *Backend
	depth int
}

// compileWhere compiles a filter map against tbl into a predicate over the
// table's unaliased columns. An empty or nil filter compiles to no
// predicate.
func (b *Backend) compileWhere(tbl *schema.Table, filter map[string]any) (*sql.Predicate, error) {
	c := &whereCompiler{b: b}
	return c.compile(tbl, tbl.Name, filter)
}

func (c *whereCompiler) compile(tbl *schema.Table, qualifier string, filter map[string]any) (*sql.Predicate, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var preds []*sql.Predicate
	for _, key := range keys {
		val := filter[key]
		var (
			pred *sql.Predicate
			err  error
		)
		switch key {
		case "AND", "OR":
			pred, err = c.compileCombinator(tbl, qualifier, key, val)
		case "NOT":
			sub, ok := val.(map[string]any)
			if !ok {
				return nil, remap.NewInvalidArgumentError("NOT operand must be a filter map, got %T", val)
			}
			var inner *sql.Predicate
			inner, err = c.compile(tbl, qualifier, sub)
			if err == nil && inner != nil {
				pred = sql.Not(inner)
			}
		default:
			switch {
			case tbl.HasColumn(key):
				pred, err = c.compileColumn(qualifier, key, val)
			default:
				rel, ok := c.b.reg.Relation(tbl, key)
				if !ok {
					return nil, c.unknownKeyError(tbl, key, val)
				}
				pred, err = c.compileRelation(tbl, qualifier, rel, val)
			}
		}
		if err != nil {
			return nil, err
		}
		if pred != nil {
			preds = append(preds, pred)
		}
	}
	if len(preds) == 0 {
		return nil, nil
	}
	return sql.And(preds...), nil
}

func (c *whereCompiler) compileCombinator(tbl *schema.Table, qualifier, key string, val any) (*sql.Predicate, error) {
	subs, err := filterList(val)
	if err != nil {
		return nil, remap.NewInvalidArgumentError("%s operand must be a list of filter maps, got %T", key, val)
	}
	if len(subs) == 0 {
		return nil, remap.NewInvalidArgumentError("%s requires at least one sub-filter", key)
	}
	preds := make([]*sql.Predicate, 0, len(subs))
	for _, sub := range subs {
		p, err := c.compile(tbl, qualifier, sub)
		if err != nil {
			return nil, err
		}
		if p != nil {
			preds = append(preds, p)
		}
	}
	if len(preds) == 0 {
		return nil, nil
	}
	if key == "OR" {
		return sql.Or(preds...), nil
	}
	return sql.And(preds...), nil
}

func (c *whereCompiler) compileColumn(qualifier, col string, val any) (*sql.Predicate, error) {
	qcol := qualifier + "." + col
	ops, ok := val.(map[string]any)
	if !ok {
		if val == nil {
			return sql.IsNull(qcol), nil
		}
		return sql.EQ(qcol, val), nil
	}
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var preds []*sql.Predicate
	for _, op := range keys {
		operand := ops[op]
		switch op {
		case "EQ":
			if operand == nil {
				preds = append(preds, sql.IsNull(qcol))
			} else {
				preds = append(preds, sql.EQ(qcol, operand))
			}
		case "NOT":
			if operand == nil {
				preds = append(preds, sql.NotNull(qcol))
			} else {
				preds = append(preds, sql.NEQ(qcol, operand))
			}
		case "IN":
			items, err := valueList(operand)
			if err != nil {
				return nil, remap.NewInvalidArgumentError("IN operand for column %q must be a list, got %T", col, operand)
			}
			preds = append(preds, sql.In(qcol, items...))
		case "LT", "LTE", "GT", "GTE":
			if operand == nil {
				return nil, remap.NewInvalidArgumentError("%s operand for column %q cannot be null", op, col)
			}
			switch op {
			case "LT":
				preds = append(preds, sql.LT(qcol, operand))
			case "LTE":
				preds = append(preds, sql.LTE(qcol, operand))
			case "GT":
				preds = append(preds, sql.GT(qcol, operand))
			case "GTE":
				preds = append(preds, sql.GTE(qcol, operand))
			}
		case "CONTAINS", "STARTS_WITH", "ENDS_WITH":
			s, ok := operand.(string)
			if !ok {
				return nil, remap.NewInvalidArgumentError("%s operand for column %q must be a string, got %T", op, col, operand)
			}
			switch op {
			case "CONTAINS":
				preds = append(preds, sql.Contains(qcol, s))
			case "STARTS_WITH":
				preds = append(preds, sql.HasPrefix(qcol, s))
			case "ENDS_WITH":
				preds = append(preds, sql.HasSuffix(qcol, s))
			}
		default:
			return nil, remap.NewInvalidArgumentError("unknown operator %q for column %q", op, col)
		}
	}
	if len(preds) == 0 {
		return nil, nil
	}
	return sql.And(preds...), nil
}

func (c *whereCompiler) compileRelation(tbl *schema.Table, qualifier string, rel *schema.Relation, val any) (*sql.Predicate, error) {
	ops, ok := val.(map[string]any)
	if !ok || len(ops) != 1 {
		return nil, remap.NewInvalidArgumentError("relation %q filter must be a single-quantifier map", rel.Name)
	}
	var op string
	for k := range ops {
		op = k
	}
	operand := ops[op]
	switch op {
	case "IS", "IS_NOT":
		if !rel.Unique {
			return nil, remap.NewInvalidArgumentError("quantifier %q requires a to-one relation, %q is to-many", op, rel.Name)
		}
	case "SOME", "NONE", "EVERY":
		if rel.Unique {
			return nil, remap.NewInvalidArgumentError("quantifier %q requires a to-many relation, %q is to-one", op, rel.Name)
		}
	default:
		return nil, remap.NewInvalidArgumentError("unknown quantifier %q for relation %q", op, rel.Name)
	}

	target, ok := c.b.reg.Table(rel.Target)
	if !ok {
		return nil, remap.NewRelationNotFoundError(tbl.Name, rel.Name)
	}
	c.depth++
	alias := "t" + strconv.Itoa(c.depth)
	join := make([]*sql.Predicate, 0, len(rel.Mapping)+1)
	for _, m := range rel.Mapping {
		join = append(join, sql.ColumnsEQ(alias+"."+m.Remote, qualifier+"."+m.Local))
	}
	var nested *sql.Predicate
	if operand != nil {
		sub, ok := operand.(map[string]any)
		if !ok {
			return nil, remap.NewInvalidArgumentError("quantifier %q operand for relation %q must be a filter map or null, got %T", op, rel.Name, operand)
		}
		var err error
		nested, err = c.compile(target, alias, sub)
		if err != nil {
			return nil, err
		}
	}
	subquery := func(p *sql.Predicate) *sql.Selector {
		return sql.Dialect(c.b.dialect()).SelectOne().From(target.Name).As(alias).Where(p)
	}
	joined := sql.And(join...)
	switch op {
	case "IS":
		if nested == nil {
			// IS null: no related row exists.
			return sql.NotExists(subquery(joined)), nil
		}
		return sql.Exists(subquery(sql.And(joined, nested))), nil
	case "IS_NOT":
		if nested == nil {
			return sql.Exists(subquery(joined)), nil
		}
		return sql.NotExists(subquery(sql.And(joined, nested))), nil
	case "SOME":
		if nested == nil {
			return sql.Exists(subquery(joined)), nil
		}
		return sql.Exists(subquery(sql.And(joined, nested))), nil
	case "NONE":
		if nested == nil {
			return sql.NotExists(subquery(joined)), nil
		}
		return sql.NotExists(subquery(sql.And(joined, nested))), nil
	default: // EVERY
		if nested == nil {
			// Vacuously true for every row.
			return nil, nil
		}
		return sql.NotExists(subquery(sql.And(joined, sql.Not(nested)))), nil
	}
}

// unknownKeyError classifies a key that is neither a column nor a relation:
// a value shaped like a quantifier map reads as a relation filter, anything
// else as a column filter.
func (c *whereCompiler) unknownKeyError(tbl *schema.Table, key string, val any) error {
	if ops, ok := val.(map[string]any); ok && len(ops) == 1 {
		for op := range ops {
			switch op {
			case "IS", "IS_NOT", "SOME", "NONE", "EVERY":
				return remap.NewRelationNotFoundError(tbl.Name, key)
			}
		}
	}
	return remap.NewColumnNotFoundError(tbl.Name, key)
}

// filterList coerces a combinator operand into a list of filter maps.
func filterList(v any) ([]map[string]any, error) {
	switch v := v.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, remap.ErrInvalidArgument
			}
			out[i] = m
		}
		return out, nil
	default:
		return nil, remap.ErrInvalidArgument
	}
}

// valueList coerces an IN operand into a list of scalar values.
func valueList(v any) ([]any, error) {
	switch v := v.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []int64:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, nil
	default:
		return nil, remap.ErrInvalidArgument
	}
}

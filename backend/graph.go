package backend

import (
	"context"
	"strings"

	"github.com/remapdb/remap"
)

// Policy controls how unresolved relation slots are treated when a record
// graph is converted to plain maps.
type Policy string

const (
	// PolicySkip renders unresolved slots as empty without touching the
	// store.
	PolicySkip Policy = "skip"
	// PolicyFetch resolves every slot against the store before rendering.
	PolicyFetch Policy = "fetch"
	// PolicyKeep renders resolved slots and leaves unresolved ones empty.
	PolicyKeep Policy = "keep"
)

// ToMap converts a record and its relation graph into nested plain maps:
// column values keyed by column name, relation values as nested maps
// (to-one) or slices of maps (to-many). Cycles are cut two ways: a record
// already on the conversion path renders as empty, and a relation whose
// join values match one already being expanded is not expanded again, so
// mutually referencing rows terminate.
func ToMap(ctx context.Context, rec *Record, policy Policy) (map[string]any, error) {
	switch policy {
	case PolicySkip, PolicyFetch, PolicyKeep:
	default:
		return nil, remap.NewInvalidArgumentError("unknown serialization policy %q", policy)
	}
	g := &graphWalk{
		policy:  policy,
		visited: make(map[*Record]bool),
		guard:   make(map[string]bool),
	}
	return g.record(ctx, rec)
}

// ToMaps converts each record independently, so a record appearing under
// two list elements renders fully under each.
func ToMaps(ctx context.Context, recs []*Record, policy Policy) ([]map[string]any, error) {
	out := make([]map[string]any, len(recs))
	for i, rec := range recs {
		m, err := ToMap(ctx, rec, policy)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

type graphWalk struct {
	policy  Policy
	visited map[*Record]bool
	guard   map[string]bool
}

func (g *graphWalk) record(ctx context.Context, rec *Record) (map[string]any, error) {
	g.visited[rec] = true
	defer delete(g.visited, rec)
	out := make(map[string]any, len(rec.table.Columns)+len(rec.relations))
	for _, c := range rec.table.Columns {
		out[c.Name] = rec.values[c.Name]
	}
	for _, name := range rec.RelationNames() {
		v, err := g.relation(ctx, rec, rec.relations[name])
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func (g *graphWalk) relation(ctx context.Context, owner *Record, st *relationState) (any, error) {
	gk, guarded := relationGuardKey(owner, st)
	if guarded {
		if g.guard[gk] {
			return emptyGraphValue(st), nil
		}
		g.guard[gk] = true
		defer delete(g.guard, gk)
	}
	switch g.policy {
	case PolicySkip:
		return emptyGraphValue(st), nil
	case PolicyFetch:
		if err := owner.backend.resolveRelation(ctx, owner, st); err != nil {
			return nil, err
		}
	case PolicyKeep:
		if !st.resolved {
			return emptyGraphValue(st), nil
		}
	}
	switch v := st.value.(type) {
	case nil:
		return nil, nil
	case *Record:
		if g.visited[v] {
			return nil, nil
		}
		return g.record(ctx, v)
	case []*Record:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if g.visited[item] {
				continue
			}
			m, err := g.record(ctx, item)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return emptyGraphValue(st), nil
	}
}

// relationGuardKey identifies a relation expansion by its target table and
// join values, independent of which record instance owns the slot. The
// second result is false when a join value is nil, in which case the
// relation is empty anyway.
func relationGuardKey(owner *Record, st *relationState) (string, bool) {
	var sb strings.Builder
	sb.WriteString(st.spec.Target)
	sb.WriteByte(0x1e)
	for _, m := range st.spec.Mapping {
		v, ok := owner.Get(m.Local)
		if !ok || v == nil {
			return "", false
		}
		sb.WriteString(m.Remote)
		sb.WriteByte('=')
		sb.WriteString(encodeKeyValue(v))
		sb.WriteByte(0x1f)
	}
	return sb.String(), true
}

// emptyGraphValue is the rendering of a relation that is not expanded: nil
// for to-one, an empty slice for to-many.
func emptyGraphValue(st *relationState) any {
	if st.spec.Unique {
		return nil
	}
	return []any{}
}

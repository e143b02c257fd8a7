// Package serialize renders record graphs into transportable forms: plain
// maps, JSON and MessagePack.
package serialize

import (
	"context"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/remapdb/remap/backend"
)

// Policy controls how unresolved relations are rendered; see backend.Policy.
type Policy = backend.Policy

const (
	Skip  = backend.PolicySkip
	Fetch = backend.PolicyFetch
	Keep  = backend.PolicyKeep
)

// Map renders a record graph as nested maps.
func Map(ctx context.Context, rec *backend.Record, policy Policy) (map[string]any, error) {
	return backend.ToMap(ctx, rec, policy)
}

// Slice renders a list of record graphs as nested maps.
func Slice(ctx context.Context, recs []*backend.Record, policy Policy) ([]map[string]any, error) {
	return backend.ToMaps(ctx, recs, policy)
}

// JSON renders a record graph as a JSON object.
func JSON(ctx context.Context, rec *backend.Record, policy Policy) ([]byte, error) {
	m, err := backend.ToMap(ctx, rec, policy)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Msgpack renders a record graph as a MessagePack map.
func Msgpack(ctx context.Context, rec *backend.Record, policy Policy) ([]byte, error) {
	m, err := backend.ToMap(ctx, rec, policy)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(m)
}

package backend

import (
	"fmt"
	"reflect"

	"github.com/go-openapi/inflect"

	"github.com/remapdb/remap"
	"github.com/remapdb/remap/schema"
)

// normalizePayload converts a write payload into column values. Two payload
// shapes are accepted:
//
//   - map[string]any: keys are column names; a key that is not a column of
//     the table is a ColumnNotFoundError.
//   - a struct or pointer to struct: exported fields map to the column named
//     by their `db` tag, or the underscored field name when untagged; fields
//     tagged `db:"-"` and fields that name no column are skipped, as are nil
//     pointer fields, so optional struct fields stay absent rather than
//     writing NULL.
//
// Anything else is an UnsupportedPayloadError.
func normalizePayload(tbl *schema.Table, data any) (map[string]any, error) {
	if data == nil {
		return nil, remap.NewUnsupportedPayloadError(tbl.Name, "<nil>")
	}
	if m, ok := data.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			if !tbl.HasColumn(k) {
				return nil, remap.NewColumnNotFoundError(tbl.Name, k)
			}
			out[k] = v
		}
		return out, nil
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, remap.NewUnsupportedPayloadError(tbl.Name, fmt.Sprintf("%T", data))
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, remap.NewUnsupportedPayloadError(tbl.Name, fmt.Sprintf("%T", data))
	}
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("db")
		if name == "-" {
			continue
		}
		if name == "" {
			name = inflect.Underscore(f.Name)
		}
		if !tbl.HasColumn(name) {
			continue
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		out[name] = fv.Interface()
	}
	return out, nil
}

// applyDefaults fills absent columns that declare a default value or
// generator. Defaults never overwrite explicit values, including explicit
// nils.
func applyDefaults(tbl *schema.Table, payload map[string]any) {
	for _, c := range tbl.Columns {
		if _, ok := payload[c.Name]; ok {
			continue
		}
		if c.HasDefault() {
			payload[c.Name] = c.DefaultValue()
		}
	}
}

// orderedColumns returns the payload's column names in the table's
// declaration order.
func orderedColumns(tbl *schema.Table, payload map[string]any) []string {
	cols := make([]string, 0, len(payload))
	for _, c := range tbl.Columns {
		if _, ok := payload[c.Name]; ok {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

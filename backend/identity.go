package backend

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"weak"

	"github.com/remapdb/remap/schema"
)

// identityKey addresses one logical row: table name plus an encoded
// primary-key tuple. Integer values of different widths encode to the same
// key, so a row scanned as int64 reconciles with one inserted as int.
type identityKey struct {
	table string
	key   string
}

// newIdentityKey builds the identity key of a row. The second result is
// false when any primary-key column is nil, in which case the row has no
// identity and cannot be cached.
func newIdentityKey(t *schema.Table, values map[string]any) (identityKey, bool) {
	var sb strings.Builder
	for _, pk := range t.PrimaryKey {
		v, ok := values[pk]
		if !ok || v == nil {
			return identityKey{}, false
		}
		sb.WriteString(encodeKeyValue(v))
		sb.WriteByte(0x1f)
	}
	return identityKey{table: t.Name, key: sb.String()}, true
}

func encodeKeyValue(v any) string {
	switch v := v.(type) {
	case int:
		return "i:" + strconv.FormatInt(int64(v), 10)
	case int8:
		return "i:" + strconv.FormatInt(int64(v), 10)
	case int16:
		return "i:" + strconv.FormatInt(int64(v), 10)
	case int32:
		return "i:" + strconv.FormatInt(int64(v), 10)
	case int64:
		return "i:" + strconv.FormatInt(v, 10)
	case uint:
		return "i:" + strconv.FormatUint(uint64(v), 10)
	case uint8:
		return "i:" + strconv.FormatUint(uint64(v), 10)
	case uint16:
		return "i:" + strconv.FormatUint(uint64(v), 10)
	case uint32:
		return "i:" + strconv.FormatUint(uint64(v), 10)
	case uint64:
		return "i:" + strconv.FormatUint(v, 10)
	case string:
		return "s:" + v
	case []byte:
		return "b:" + string(v)
	case float32:
		return "f:" + strconv.FormatFloat(float64(v), 'g', -1, 64)
	case float64:
		return "f:" + strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return "v:" + strconv.FormatBool(v)
	case time.Time:
		return "t:" + v.UTC().Format(time.RFC3339Nano)
	default:
		return "v:" + fmt.Sprintf("%v", v)
	}
}

// identityMap caches live records by identity so repeated finds of the same
// row reconcile into the same instance. Entries hold weak pointers: a record
// no longer referenced by the caller is collected and its entry pruned on
// the next lookup, so the map never keeps a record alive on its own.
//
// Lookup and register are separate critical sections. Two goroutines
// materializing the same row concurrently may both register, which is why
// an identity holds a list; later lookups settle on the first live entry.
type identityMap struct {
	mu      sync.Mutex
	entries map[identityKey][]weak.Pointer[Record]
}

func newIdentityMap() *identityMap {
	return &identityMap{entries: make(map[identityKey][]weak.Pointer[Record])}
}

// lookup returns the first live record cached under k, pruning collected
// entries as a side effect.
func (m *identityMap) lookup(k identityKey) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := m.prune(k)
	if len(live) == 0 {
		return nil
	}
	return live[0].Value()
}

// lookupAll returns every live record cached under k.
func (m *identityMap) lookupAll(k identityKey) []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Record
	for _, wp := range m.prune(k) {
		if rec := wp.Value(); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// register caches rec under k.
func (m *identityMap) register(k identityKey, rec *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[k] = append(m.prune(k), weak.Make(rec))
}

// evict drops every entry cached under k.
func (m *identityMap) evict(k identityKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, k)
}

// clear drops all entries.
func (m *identityMap) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[identityKey][]weak.Pointer[Record])
}

// prune rewrites the entry list of k keeping only live pointers. The caller
// must hold mu.
func (m *identityMap) prune(k identityKey) []weak.Pointer[Record] {
	ptrs, ok := m.entries[k]
	if !ok {
		return nil
	}
	live := ptrs[:0]
	for _, wp := range ptrs {
		if wp.Value() != nil {
			live = append(live, wp)
		}
	}
	if len(live) == 0 {
		delete(m.entries, k)
		return nil
	}
	m.entries[k] = live
	return live
}

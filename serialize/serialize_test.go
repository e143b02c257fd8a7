package serialize_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/remapdb/remap/backend"
	"github.com/remapdb/remap/driver/sqlite"
	"github.com/remapdb/remap/schema"
	"github.com/remapdb/remap/serialize"
)

const fixtureSchema = `
tables:
  - name: users
    columns:
      - name: id
        auto_increment: true
      - name: name
    primary_key: [id]
  - name: posts
    columns:
      - name: id
        auto_increment: true
      - name: title
      - name: author_id
        optional: true
    primary_key: [id]
    foreign_keys:
      - columns: [author_id]
        references: users
        backref: posts
    relations:
      - name: author
        target: users
        mapping:
          - {local: author_id, remote: id}
`

func fixture(t *testing.T) (*backend.Backend, *backend.Record) {
	t.Helper()
	reg, err := schema.Load(strings.NewReader(fixtureSchema))
	require.NoError(t, err)
	drv, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	b := backend.New(drv, reg)
	t.Cleanup(func() { b.Close() })

	ctx := context.Background()
	for _, ddl := range []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, author_id INTEGER)`,
	} {
		_, err := b.ExecRaw(ctx, ddl)
		require.NoError(t, err)
	}

	users, _ := reg.Table("users")
	posts, _ := reg.Table("posts")
	u, err := b.Insert(ctx, users, map[string]any{"name": "ada"})
	require.NoError(t, err)
	uid, _ := u.Get("id")
	_, err = b.Insert(ctx, posts, map[string]any{"title": "one", "author_id": uid})
	require.NoError(t, err)
	return b, u
}

func TestMapAndSlice(t *testing.T) {
	t.Parallel()
	b, u := fixture(t)
	ctx := context.Background()

	m, err := serialize.Map(ctx, u, serialize.Fetch)
	require.NoError(t, err)
	assert.Equal(t, "ada", m["name"])
	posts, ok := m["posts"].([]any)
	require.True(t, ok)
	require.Len(t, posts, 1)

	reg := b.Registry()
	postsTbl, _ := reg.Table("posts")
	all, err := b.FindMany(ctx, postsTbl, backend.FindOptions{})
	require.NoError(t, err)
	maps, err := serialize.Slice(ctx, all, serialize.Skip)
	require.NoError(t, err)
	require.Len(t, maps, 1)
	assert.Equal(t, "one", maps[0]["title"])
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	_, u := fixture(t)

	data, err := serialize.JSON(context.Background(), u, serialize.Fetch)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ada", decoded["name"])
	posts, ok := decoded["posts"].([]any)
	require.True(t, ok)
	require.Len(t, posts, 1)
	first := posts[0].(map[string]any)
	assert.Equal(t, "one", first["title"])
	// The cycle back to the author is cut rather than recursing.
	assert.Nil(t, first["author"])
}

func TestMsgpackRoundTrip(t *testing.T) {
	t.Parallel()
	_, u := fixture(t)

	data, err := serialize.Msgpack(context.Background(), u, serialize.Skip)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(data, &decoded))
	assert.Equal(t, "ada", decoded["name"])
	assert.Equal(t, []any{}, decoded["posts"])
}

func TestInvalidPolicy(t *testing.T) {
	t.Parallel()
	_, u := fixture(t)

	_, err := serialize.Map(context.Background(), u, serialize.Policy("eager"))
	assert.Error(t, err)
}

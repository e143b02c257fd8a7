package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remapdb/remap"
)

func graphFixture(t *testing.T) (*Backend, *Record) {
	t.Helper()
	b, _ := testBackend(t)
	ctx := context.Background()

	u, err := b.Insert(ctx, b.table(t, "users"), map[string]any{"name": "ada"})
	require.NoError(t, err)
	uid, _ := u.Get("id")
	for _, title := range []string{"one", "two"} {
		_, err := b.Insert(ctx, b.table(t, "posts"), map[string]any{"title": title, "author_id": uid})
		require.NoError(t, err)
	}
	return b, u
}

func TestToMapSkip(t *testing.T) {
	t.Parallel()
	_, u := graphFixture(t)

	m, err := ToMap(context.Background(), u, PolicySkip)
	require.NoError(t, err)
	assert.Equal(t, "ada", m["name"])
	assert.Equal(t, []any{}, m["posts"], "unresolved to-many renders empty under skip")
	assert.Nil(t, m["profile"])
}

func TestToMapKeep(t *testing.T) {
	t.Parallel()
	_, u := graphFixture(t)
	ctx := context.Background()

	// Unresolved slots stay empty under keep.
	m, err := ToMap(ctx, u, PolicyKeep)
	require.NoError(t, err)
	assert.Equal(t, []any{}, m["posts"])

	// After resolution the slot renders its cached value.
	_, err = u.RelationMany(ctx, "posts")
	require.NoError(t, err)
	m, err = ToMap(ctx, u, PolicyKeep)
	require.NoError(t, err)
	posts, ok := m["posts"].([]any)
	require.True(t, ok)
	assert.Len(t, posts, 2)
}

func TestToMapFetch(t *testing.T) {
	t.Parallel()
	_, u := graphFixture(t)

	m, err := ToMap(context.Background(), u, PolicyFetch)
	require.NoError(t, err)
	posts, ok := m["posts"].([]any)
	require.True(t, ok)
	require.Len(t, posts, 2)

	first, ok := posts[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "one", first["title"])
	// The post's author is the record being converted; the cycle is cut.
	assert.Nil(t, first["author"])
}

func TestToMapCycleTermination(t *testing.T) {
	t.Parallel()
	b, u := graphFixture(t)
	ctx := context.Background()

	// Start from a post: post -> author -> posts -> (same post cut).
	post, err := b.FindFirst(ctx, b.table(t, "posts"), FindOptions{Where: map[string]any{"title": "one"}})
	require.NoError(t, err)
	require.NotNil(t, post)

	m, err := ToMap(ctx, post, PolicyFetch)
	require.NoError(t, err)
	author, ok := m["author"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada", author["name"])
	authorPosts, ok := author["posts"].([]any)
	require.True(t, ok)
	// The originating post is on the conversion path and is skipped; only
	// the sibling renders.
	require.Len(t, authorPosts, 1)
	sibling := authorPosts[0].(map[string]any)
	assert.Equal(t, "two", sibling["title"])
	_ = u
}

func TestToMapInvalidPolicy(t *testing.T) {
	t.Parallel()
	_, u := graphFixture(t)

	_, err := ToMap(context.Background(), u, Policy("lazy"))
	assert.True(t, remap.IsInvalidArgument(err))
}

func TestToMaps(t *testing.T) {
	t.Parallel()
	b, _ := graphFixture(t)
	ctx := context.Background()

	posts, err := b.FindMany(ctx, b.table(t, "posts"), FindOptions{OrderBy: []OrderTerm{OrderAsc("id")}})
	require.NoError(t, err)
	maps, err := ToMaps(ctx, posts, PolicySkip)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, "one", maps[0]["title"])
	assert.Equal(t, "two", maps[1]["title"])
}

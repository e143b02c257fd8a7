package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remapdb/remap/schema"
)

func userTable() *schema.Table {
	return &schema.Table{
		Name: "users",
		Columns: []*schema.Column{
			{Name: "id", AutoIncrement: true},
			{Name: "name"},
			{Name: "email", Optional: true},
		},
		PrimaryKey:    []string{"id"},
		UniqueIndexes: [][]string{{"email"}},
	}
}

func postTable() *schema.Table {
	return &schema.Table{
		Name: "posts",
		Columns: []*schema.Column{
			{Name: "id", AutoIncrement: true},
			{Name: "title"},
			{Name: "author_id", Optional: true},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []*schema.ForeignKey{{
			Columns:       []string{"author_id"},
			RemoteTable:   "users",
			RemoteColumns: []string{"id"},
			Backref:       "posts",
		}},
		Relations: []*schema.Relation{{
			Name:    "author",
			Target:  "users",
			Unique:  true,
			Mapping: []schema.MapPair{{Local: "author_id", Remote: "id"}},
		}},
	}
}

func TestRegistryFinalize(t *testing.T) {
	t.Parallel()

	reg := schema.NewRegistry()
	require.NoError(t, reg.Add(userTable(), postTable()))
	require.NoError(t, reg.Finalize())

	users, ok := reg.Table("users")
	require.True(t, ok)
	posts, ok := reg.Table("posts")
	require.True(t, ok)

	// The declared relation on posts survives.
	author, ok := reg.Relation(posts, "author")
	require.True(t, ok)
	assert.True(t, author.Unique)
	assert.Equal(t, "users", author.Target)

	// The foreign key synthesizes a to-many backref on users.
	backref, ok := reg.Relation(users, "posts")
	require.True(t, ok)
	assert.False(t, backref.Unique)
	assert.Equal(t, "posts", backref.Target)
	require.Len(t, backref.Mapping, 1)
	assert.Equal(t, schema.MapPair{Local: "id", Remote: "author_id"}, backref.Mapping[0])
}

func TestRegistryUniqueBackref(t *testing.T) {
	t.Parallel()

	profile := &schema.Table{
		Name: "profiles",
		Columns: []*schema.Column{
			{Name: "user_id"},
			{Name: "bio", Optional: true},
		},
		PrimaryKey: []string{"user_id"},
		ForeignKeys: []*schema.ForeignKey{{
			Columns:       []string{"user_id"},
			RemoteTable:   "users",
			RemoteColumns: []string{"id"},
			Backref:       schema.BackrefAuto,
		}},
	}
	reg := schema.NewRegistry()
	require.NoError(t, reg.Add(userTable(), profile))
	require.NoError(t, reg.Finalize())

	// The foreign key covers the child's whole primary key, so the backref
	// is to-one and the auto name is singular.
	users, _ := reg.Table("users")
	backref, ok := reg.Relation(users, "profile")
	require.True(t, ok)
	assert.True(t, backref.Unique)
	assert.Equal(t, "profiles", backref.Target)
}

func TestRegistryBackrefDoesNotShadowDeclared(t *testing.T) {
	t.Parallel()

	user := userTable()
	user.Relations = []*schema.Relation{{
		Name:    "posts",
		Target:  "posts",
		Unique:  true, // deliberately different from the derived backref
		Mapping: []schema.MapPair{{Local: "id", Remote: "author_id"}},
	}}
	reg := schema.NewRegistry()
	require.NoError(t, reg.Add(user, postTable()))
	require.NoError(t, reg.Finalize())

	users, _ := reg.Table("users")
	rel, ok := reg.Relation(users, "posts")
	require.True(t, ok)
	assert.True(t, rel.Unique, "declared relation wins over the derived backref")
}

func TestRegistryValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		table   *schema.Table
		wantErr string
	}{
		{
			name:    "no columns",
			table:   &schema.Table{Name: "t", PrimaryKey: []string{"id"}},
			wantErr: "has no columns",
		},
		{
			name: "no primary key",
			table: &schema.Table{
				Name:    "t",
				Columns: []*schema.Column{{Name: "id"}},
			},
			wantErr: "does not define a primary key",
		},
		{
			name: "unknown primary key column",
			table: &schema.Table{
				Name:       "t",
				Columns:    []*schema.Column{{Name: "id"}},
				PrimaryKey: []string{"uid"},
			},
			wantErr: "unknown column",
		},
		{
			name: "duplicate column",
			table: &schema.Table{
				Name:       "t",
				Columns:    []*schema.Column{{Name: "id"}, {Name: "id"}},
				PrimaryKey: []string{"id"},
			},
			wantErr: "twice",
		},
		{
			name: "foreign key arity",
			table: &schema.Table{
				Name:       "t",
				Columns:    []*schema.Column{{Name: "id"}, {Name: "a"}, {Name: "b"}},
				PrimaryKey: []string{"id"},
				ForeignKeys: []*schema.ForeignKey{{
					Columns:       []string{"a", "b"},
					RemoteTable:   "users",
					RemoteColumns: []string{"id"},
				}},
			},
			wantErr: "mismatched column arity",
		},
		{
			name: "relation unknown local column",
			table: &schema.Table{
				Name:       "t",
				Columns:    []*schema.Column{{Name: "id"}},
				PrimaryKey: []string{"id"},
				Relations: []*schema.Relation{{
					Name:    "owner",
					Target:  "users",
					Mapping: []schema.MapPair{{Local: "owner_id", Remote: "id"}},
				}},
			},
			wantErr: "unknown local column",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := schema.NewRegistry().Add(tt.table)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRegistryFinalizeCrossValidation(t *testing.T) {
	t.Parallel()

	reg := schema.NewRegistry()
	require.NoError(t, reg.Add(postTable()))
	assert.ErrorContains(t, reg.Finalize(), `unknown table "users"`)
}

func TestRegistryAddAfterFinalize(t *testing.T) {
	t.Parallel()

	reg := schema.NewRegistry()
	require.NoError(t, reg.Add(userTable()))
	require.NoError(t, reg.Finalize())
	assert.ErrorContains(t, reg.Add(postTable()), "finalized")
}

func TestAutoIncrementKey(t *testing.T) {
	t.Parallel()

	reg := schema.NewRegistry()
	user := userTable()
	require.NoError(t, reg.Add(user))
	assert.Equal(t, "id", user.AutoIncrementKey())

	composite := &schema.Table{
		Name: "memberships",
		Columns: []*schema.Column{
			{Name: "user_id"},
			{Name: "team_id"},
		},
		PrimaryKey: []string{"user_id", "team_id"},
	}
	require.NoError(t, reg.Add(composite))
	assert.Empty(t, composite.AutoIncrementKey())
}

func TestColumnDefaults(t *testing.T) {
	t.Parallel()

	c := &schema.Column{Name: "status", Default: "active"}
	assert.True(t, c.HasDefault())
	assert.Equal(t, "active", c.DefaultValue())

	n := 0
	c = &schema.Column{Name: "seq", Default: "ignored", DefaultFunc: func() any { n++; return n }}
	assert.Equal(t, 1, c.DefaultValue())
	assert.Equal(t, 2, c.DefaultValue(), "generator wins over the static default")

	c = &schema.Column{Name: "plain"}
	assert.False(t, c.HasDefault())
	assert.Nil(t, c.DefaultValue())
}

func TestDefaultBackref(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "order_items", schema.DefaultBackref("OrderItem", false))
	assert.Equal(t, "order_item", schema.DefaultBackref("OrderItem", true))
	assert.Equal(t, "profiles", schema.DefaultBackref("profiles", false))
	assert.Equal(t, "profile", schema.DefaultBackref("profiles", true))
}

package sql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remapdb/remap/dialect"
	"github.com/remapdb/remap/dialect/sql"
)

func TestSelectorBasic(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Select("id", "name").
		From("users").
		Query()
	assert.Equal(t, `SELECT "id", "name" FROM "users"`, query)
	assert.Empty(t, args)
}

func TestSelectorWhere(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Select("id").
		From("users").
		Where(sql.And(sql.EQ("users.name", "ada"), sql.GT("users.age", 30))).
		Query()
	assert.Equal(t, `SELECT "id" FROM "users" WHERE ("users"."name" = ?) AND ("users"."age" > ?)`, query)
	assert.Equal(t, []any{"ada", 30}, args)
}

func TestSelectorPostgresPlaceholders(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.Postgres).
		Select("id").
		From("users").
		Where(sql.Or(sql.EQ("name", "ada"), sql.EQ("name", "grace"))).
		Query()
	assert.Equal(t, `SELECT "id" FROM "users" WHERE ("name" = $1) OR ("name" = $2)`, query)
	assert.Equal(t, []any{"ada", "grace"}, args)
}

func TestSelectorMySQLQuoting(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.MySQL).
		Select("id").
		From("users").
		Where(sql.EQ("users.id", 1)).
		Query()
	assert.Equal(t, "SELECT `id` FROM `users` WHERE `users`.`id` = ?", query)
	assert.Equal(t, []any{1}, args)
}

func TestSelectorOrderAndPaging(t *testing.T) {
	t.Parallel()

	query, _ := sql.Dialect(dialect.SQLite).
		Select("id").
		From("users").
		OrderAsc("name").
		OrderDesc("id").
		Limit(10).
		Offset(5).
		Query()
	assert.Equal(t, `SELECT "id" FROM "users" ORDER BY "name" ASC, "id" DESC LIMIT 10 OFFSET 5`, query)
}

func TestSelectorOffsetWithoutLimit(t *testing.T) {
	t.Parallel()

	for d, want := range map[string]string{
		dialect.SQLite:   `SELECT "id" FROM "users" LIMIT -1 OFFSET 5`,
		dialect.MySQL:    "SELECT `id` FROM `users` LIMIT 18446744073709551615 OFFSET 5",
		dialect.Postgres: `SELECT "id" FROM "users" OFFSET 5`,
	} {
		query, _ := sql.Dialect(d).Select("id").From("users").Offset(5).Query()
		assert.Equal(t, want, query, d)
	}
}

func TestSelectorDistinct(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Select("id", "city").
		From("users").
		Distinct("city").
		Query()
	assert.Equal(t,
		`SELECT "__d".* FROM (SELECT "id", "city", ROW_NUMBER() OVER (PARTITION BY "city" ORDER BY "city" ASC) AS "rn" FROM "users") AS "__d" WHERE "__d"."rn" = 1`,
		query)
	assert.Empty(t, args)
}

func TestSelectorDistinctOrderedAndPaged(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Select("id", "city").
		From("users").
		Where(sql.GT("age", 18)).
		Distinct("city").
		OrderDesc("id").
		Limit(2).
		Query()
	assert.Equal(t,
		`SELECT "__d".* FROM (SELECT "id", "city", ROW_NUMBER() OVER (PARTITION BY "city" ORDER BY "id" DESC) AS "rn" FROM "users" WHERE "age" > ?) AS "__d" WHERE "__d"."rn" = 1 ORDER BY "__d"."id" DESC LIMIT 2`,
		query)
	assert.Equal(t, []any{18}, args)
}

func TestPredicateIn(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Select("id").
		From("users").
		Where(sql.In("id", 1, 2, 3)).
		Query()
	assert.Equal(t, `SELECT "id" FROM "users" WHERE "id" IN (?, ?, ?)`, query)
	assert.Equal(t, []any{1, 2, 3}, args)

	// An empty IN list matches nothing rather than erroring.
	query, args = sql.Dialect(dialect.SQLite).
		Select("id").
		From("users").
		Where(sql.In("id")).
		Query()
	assert.Equal(t, `SELECT "id" FROM "users" WHERE FALSE`, query)
	assert.Empty(t, args)

	query, _ = sql.Dialect(dialect.SQLite).
		Select("id").
		From("users").
		Where(sql.NotIn("id")).
		Query()
	assert.Equal(t, `SELECT "id" FROM "users" WHERE TRUE`, query)
}

func TestPredicateLike(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Select("id").
		From("users").
		Where(sql.Contains("name", "50%_off")).
		Query()
	assert.Equal(t, `SELECT "id" FROM "users" WHERE "name" LIKE ? ESCAPE '\'`, query)
	require.Len(t, args, 1)
	assert.Equal(t, `%50\%\_off%`, args[0])

	query, args = sql.Dialect(dialect.MySQL).
		Select("id").
		From("users").
		Where(sql.HasPrefix("name", "ada")).
		Query()
	assert.Equal(t, "SELECT `id` FROM `users` WHERE `name` LIKE ? ESCAPE '\\\\'", query)
	assert.Equal(t, []any{"ada%"}, args)
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `50\%`, sql.EscapeLike("50%"))
	assert.Equal(t, `a\_b`, sql.EscapeLike("a_b"))
	assert.Equal(t, `c\\d`, sql.EscapeLike(`c\d`))
	assert.Equal(t, "plain", sql.EscapeLike("plain"))
}

func TestPredicateNullAndNot(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Select("id").
		From("users").
		Where(sql.Not(sql.And(sql.IsNull("email"), sql.NotNull("name")))).
		Query()
	assert.Equal(t, `SELECT "id" FROM "users" WHERE NOT (("email" IS NULL) AND ("name" IS NOT NULL))`, query)
	assert.Empty(t, args)
}

func TestPredicateExists(t *testing.T) {
	t.Parallel()

	sub := sql.Dialect(dialect.SQLite).
		SelectOne().
		From("posts").
		As("t1").
		Where(sql.And(sql.ColumnsEQ("t1.author_id", "users.id"), sql.EQ("t1.title", "go")))
	query, args := sql.Dialect(dialect.SQLite).
		Select("id").
		From("users").
		Where(sql.Exists(sub)).
		Query()
	assert.Equal(t,
		`SELECT "id" FROM "users" WHERE EXISTS (SELECT 1 FROM "posts" AS "t1" WHERE ("t1"."author_id" = "users"."id") AND ("t1"."title" = ?))`,
		query)
	assert.Equal(t, []any{"go"}, args)
}

func TestInsertBuilder(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Insert("users").
		Columns("name", "email").
		Values("ada", "ada@example.com").
		Returning("id", "name", "email").
		Query()
	assert.Equal(t, `INSERT INTO "users" ("name", "email") VALUES (?, ?) RETURNING "id", "name", "email"`, query)
	assert.Equal(t, []any{"ada", "ada@example.com"}, args)
}

func TestInsertBuilderMultiRow(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.Postgres).
		Insert("users").
		Columns("name").
		Values("ada").
		Values("grace").
		Returning("id", "name").
		Query()
	assert.Equal(t, `INSERT INTO "users" ("name") VALUES ($1), ($2) RETURNING "id", "name"`, query)
	assert.Equal(t, []any{"ada", "grace"}, args)
}

func TestInsertBuilderNoReturningOnMySQL(t *testing.T) {
	t.Parallel()

	query, _ := sql.Dialect(dialect.MySQL).
		Insert("users").
		Columns("name").
		Values("ada").
		Returning("id", "name").
		Query()
	assert.Equal(t, "INSERT INTO `users` (`name`) VALUES (?)", query)
}

func TestInsertBuilderUpsert(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Insert("users").
		Columns("email", "name").
		Values("ada@example.com", "ada").
		OnConflict("email").
		DoUpdateSet("name", "ada").
		Returning("id", "email", "name").
		Query()
	assert.Equal(t,
		`INSERT INTO "users" ("email", "name") VALUES (?, ?) ON CONFLICT ("email") DO UPDATE SET "name" = ? RETURNING "id", "email", "name"`,
		query)
	assert.Equal(t, []any{"ada@example.com", "ada", "ada"}, args)

	query, args = sql.Dialect(dialect.MySQL).
		Insert("users").
		Columns("email", "name").
		Values("ada@example.com", "ada").
		OnConflict("email").
		DoUpdateSet("name", "ada").
		Query()
	assert.Equal(t,
		"INSERT INTO `users` (`email`, `name`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `name` = ?",
		query)
	assert.Equal(t, []any{"ada@example.com", "ada", "ada"}, args)
}

func TestUpdateBuilder(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Update("users").
		Set("name", "grace").
		Set("email", nil).
		Where(sql.EQ("id", 7)).
		Returning("id", "name", "email").
		Query()
	assert.Equal(t, `UPDATE "users" SET "name" = ?, "email" = ? WHERE "id" = ? RETURNING "id", "name", "email"`, query)
	assert.Equal(t, []any{"grace", nil, 7}, args)
}

func TestDeleteBuilder(t *testing.T) {
	t.Parallel()

	query, args := sql.Dialect(dialect.SQLite).
		Delete("users").
		Where(sql.EQ("id", 7)).
		Returning("id", "name").
		Query()
	assert.Equal(t, `DELETE FROM "users" WHERE "id" = ? RETURNING "id", "name"`, query)
	assert.Equal(t, []any{7}, args)

	query, args = sql.Dialect(dialect.MySQL).
		Delete("users").
		Where(sql.EQ("id", 7)).
		Returning("id", "name").
		Query()
	assert.Equal(t, "DELETE FROM `users` WHERE `id` = ?", query)
	assert.Equal(t, []any{7}, args)
}

func TestSupportsReturning(t *testing.T) {
	t.Parallel()

	assert.True(t, sql.SupportsReturning(dialect.SQLite))
	assert.True(t, sql.SupportsReturning(dialect.Postgres))
	assert.False(t, sql.SupportsReturning(dialect.MySQL))
}

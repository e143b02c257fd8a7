package remap_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remapdb/remap"
)

func TestColumnNotFoundError(t *testing.T) {
	t.Parallel()

	err := remap.NewColumnNotFoundError("users", "nickname")
	assert.EqualError(t, err, `remap: column "nickname" not found on table "users"`)
	assert.True(t, remap.IsColumnNotFound(err))
	assert.True(t, errors.Is(err, remap.ErrColumnNotFound))
	assert.False(t, remap.IsColumnNotFound(errors.New("boom")))

	wrapped := fmt.Errorf("find users: %w", err)
	require.True(t, remap.IsColumnNotFound(wrapped))
	var cnf *remap.ColumnNotFoundError
	require.True(t, errors.As(wrapped, &cnf))
	assert.Equal(t, "users", cnf.Table)
	assert.Equal(t, "nickname", cnf.Column)
}

func TestRelationNotFoundError(t *testing.T) {
	t.Parallel()

	err := remap.NewRelationNotFoundError("users", "followers")
	assert.EqualError(t, err, `remap: relation "followers" not found on table "users"`)
	assert.True(t, remap.IsRelationNotFound(err))
	assert.False(t, remap.IsColumnNotFound(err))
}

func TestInvalidArgumentError(t *testing.T) {
	t.Parallel()

	err := remap.NewInvalidArgumentError("OR requires at least one sub-filter")
	assert.EqualError(t, err, "remap: invalid argument: OR requires at least one sub-filter")
	assert.True(t, remap.IsInvalidArgument(err))
	assert.True(t, errors.Is(err, remap.ErrInvalidArgument))
}

func TestConsistencyError(t *testing.T) {
	t.Parallel()

	err := remap.NewConsistencyError("users", "update", 3)
	assert.EqualError(t, err, `remap: update on table "users" affected 3 rows, want 1`)
	assert.True(t, remap.IsConsistency(err))

	var ce *remap.ConsistencyError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3, ce.Count)
}

func TestUnsupportedPayloadError(t *testing.T) {
	t.Parallel()

	err := remap.NewUnsupportedPayloadError("users", "[]string")
	assert.EqualError(t, err, `remap: unsupported payload type []string for table "users"`)
	assert.True(t, remap.IsUnsupportedPayload(err))
	assert.False(t, remap.IsInvalidArgument(err))
}

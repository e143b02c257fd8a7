// Package remap defines the error taxonomy shared by the remap runtime
// packages.
package remap

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by errors.Is against the typed errors below.
var (
	ErrColumnNotFound     = errors.New("remap: column not found")
	ErrRelationNotFound   = errors.New("remap: relation not found")
	ErrInvalidArgument    = errors.New("remap: invalid argument")
	ErrConsistency        = errors.New("remap: consistency violation")
	ErrUnsupportedPayload = errors.New("remap: unsupported payload")
)

// ColumnNotFoundError is returned when a filter, payload, ordering or
// distinct projection names a column the table does not declare.
type ColumnNotFoundError struct {
	Table  string
	Column string
}

// NewColumnNotFoundError returns a ColumnNotFoundError for the given table
// and column.
func NewColumnNotFoundError(table, column string) *ColumnNotFoundError {
	return &ColumnNotFoundError{Table: table, Column: column}
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("remap: column %q not found on table %q", e.Column, e.Table)
}

// Is makes the error match ErrColumnNotFound.
func (e *ColumnNotFoundError) Is(err error) bool { return err == ErrColumnNotFound }

// IsColumnNotFound reports whether err is a column-not-found error.
func IsColumnNotFound(err error) bool { return errors.Is(err, ErrColumnNotFound) }

// RelationNotFoundError is returned when a filter, include set or relation
// access names a relation the table does not declare.
type RelationNotFoundError struct {
	Table    string
	Relation string
}

// NewRelationNotFoundError returns a RelationNotFoundError for the given
// table and relation.
func NewRelationNotFoundError(table, relation string) *RelationNotFoundError {
	return &RelationNotFoundError{Table: table, Relation: relation}
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("remap: relation %q not found on table %q", e.Relation, e.Table)
}

// Is makes the error match ErrRelationNotFound.
func (e *RelationNotFoundError) Is(err error) bool { return err == ErrRelationNotFound }

// IsRelationNotFound reports whether err is a relation-not-found error.
func IsRelationNotFound(err error) bool { return errors.Is(err, ErrRelationNotFound) }

// InvalidArgumentError is returned for malformed filter, ordering, paging
// or payload arguments.
type InvalidArgumentError struct {
	msg string
}

// NewInvalidArgumentError formats an InvalidArgumentError.
func NewInvalidArgumentError(format string, args ...any) *InvalidArgumentError {
	return &InvalidArgumentError{msg: fmt.Sprintf(format, args...)}
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("remap: invalid argument: %s", e.msg)
}

// Is makes the error match ErrInvalidArgument.
func (e *InvalidArgumentError) Is(err error) bool { return err == ErrInvalidArgument }

// IsInvalidArgument reports whether err is an invalid-argument error.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// ConsistencyError is returned when a single-row operation affects a
// different number of rows than it must: an update or upsert that matched
// zero or several rows, a delete that matched several, or a just-written
// row that cannot be reloaded.
type ConsistencyError struct {
	Table string
	Op    string
	Count int
}

// NewConsistencyError returns a ConsistencyError for the given table,
// operation and affected row count.
func NewConsistencyError(table, op string, count int) *ConsistencyError {
	return &ConsistencyError{Table: table, Op: op, Count: count}
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("remap: %s on table %q affected %d rows, want 1", e.Op, e.Table, e.Count)
}

// Is makes the error match ErrConsistency.
func (e *ConsistencyError) Is(err error) bool { return err == ErrConsistency }

// IsConsistency reports whether err is a consistency error.
func IsConsistency(err error) bool { return errors.Is(err, ErrConsistency) }

// UnsupportedPayloadError is returned when a write payload is neither a
// column-value map nor a struct.
type UnsupportedPayloadError struct {
	Table string
	Type  string
}

// NewUnsupportedPayloadError returns an UnsupportedPayloadError for the
// given table and payload type.
func NewUnsupportedPayloadError(table, typ string) *UnsupportedPayloadError {
	return &UnsupportedPayloadError{Table: table, Type: typ}
}

func (e *UnsupportedPayloadError) Error() string {
	return fmt.Sprintf("remap: unsupported payload type %s for table %q", e.Type, e.Table)
}

// Is makes the error match ErrUnsupportedPayload.
func (e *UnsupportedPayloadError) Is(err error) bool { return err == ErrUnsupportedPayload }

// IsUnsupportedPayload reports whether err is an unsupported-payload error.
func IsUnsupportedPayload(err error) bool { return errors.Is(err, ErrUnsupportedPayload) }

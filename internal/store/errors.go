package store

import (
	"errors"
	"fmt"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
)

var (
	// ErrEntityNotFound is matched by every EntityNotFoundError.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrDuplicateInteraction is returned when an immutable record with the same key already exists.
	ErrDuplicateInteraction = errors.New("duplicate interaction")
	// ErrNegativeBalance is returned when a delta would take an amount below zero.
	ErrNegativeBalance = errors.New("negative balance")
	// ErrInvalidFilter is returned by list queries for malformed filter values.
	ErrInvalidFilter = errors.New("invalid filter")
)

// EntityNotFoundError is returned when an aggregate expected to exist is absent.
type EntityNotFoundError struct {
	Kind identity.Kind
	Key  identity.Key
}

// NewEntityNotFoundError creates a new EntityNotFoundError.
func NewEntityNotFoundError(kind identity.Kind, key identity.Key) *EntityNotFoundError {
	return &EntityNotFoundError{Kind: kind, Key: key}
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key.Hex())
}

func (e *EntityNotFoundError) Is(target error) bool {
	return target == ErrEntityNotFound
}

// IsNotFound reports whether err is an EntityNotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// AsNotFound extracts an EntityNotFoundError from err.
func AsNotFound(err error) (*EntityNotFoundError, bool) {
	var nf *EntityNotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}

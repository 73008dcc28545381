package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when an optimistic update finds the row
	// at a different version than the one read.
	ErrVersionConflict = errors.New("entity was modified concurrently")

	// ErrDuplicate is returned when an insert violates a uniqueness rule.
	ErrDuplicate = errors.New("entity already exists")

	// ErrReferenced is returned when a delete would orphan dependent rows.
	ErrReferenced = errors.New("entity is still referenced")
)

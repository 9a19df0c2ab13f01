package repository

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("cart was modified concurrently")
	ErrSagaConflict    = errors.New("saga was advanced by another writer")
)

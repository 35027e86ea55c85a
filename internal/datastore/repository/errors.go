package repository

import "github.com/TechinMama/RecipeForADisaster/internal/errors"

var (
	// ErrMissingEntityID is returned when an entity to cache has no usable id.
	ErrMissingEntityID = errors.NewStd("cached entity has no id")
	// ErrInvalidOperation is returned when a pending operation lacks url or method.
	ErrInvalidOperation = errors.NewStd("pending operation requires url and method")
)

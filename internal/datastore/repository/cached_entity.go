package repository

import (
	"context"

	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
)

// CachedEntityRepository persists read-through snapshots of domain records.
type CachedEntityRepository interface {
	// Upsert writes every entity in a single transaction, overwriting by id.
	Upsert(ctx context.Context, items []entities.CachedEntity) error
	All(ctx context.Context) ([]entities.CachedEntity, error)
	// ModifiedSince returns entities cached at or after the epoch millisecond mark, newest first.
	ModifiedSince(ctx context.Context, sinceMillis int64) ([]entities.CachedEntity, error)
	Count(ctx context.Context) (int64, error)
}

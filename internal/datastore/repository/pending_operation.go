package repository

import (
	"context"

	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
)

// PendingOperationRepository persists the queue of deferred writes.
type PendingOperationRepository interface {
	// Enqueue inserts op and assigns its ID. Existing records are never overwritten.
	Enqueue(ctx context.Context, op *entities.PendingOperation) error
	// ListByTimestamp returns every pending operation ordered by timestamp, then id.
	ListByTimestamp(ctx context.Context) ([]entities.PendingOperation, error)
	// ListByOperation returns pending operations carrying the given tag.
	ListByOperation(ctx context.Context, operation string) ([]entities.PendingOperation, error)
	// Remove deletes by id. Removing an absent id is not an error.
	Remove(ctx context.Context, id uint) error
	Count(ctx context.Context) (int64, error)
}

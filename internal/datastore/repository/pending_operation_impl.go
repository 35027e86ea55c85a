package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
)

// pendingOperationRepository implements PendingOperationRepository.
type pendingOperationRepository struct {
	db *gorm.DB
}

// NewPendingOperationRepository creates a new PendingOperationRepository.
func NewPendingOperationRepository(db *gorm.DB) PendingOperationRepository {
	return &pendingOperationRepository{db: db}
}

func (r *pendingOperationRepository) Enqueue(ctx context.Context, op *entities.PendingOperation) error {
	if op.URL == "" || op.Method == "" {
		return ErrInvalidOperation
	}
	// Zero the id so the store assigns it; a caller-supplied id could collide.
	op.ID = 0
	if op.Headers == nil {
		op.Headers = entities.Headers{}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(op).Error; err != nil {
			return fmt.Errorf("failed to enqueue pending operation: %w", err)
		}
		return nil
	})
}

func (r *pendingOperationRepository) ListByTimestamp(ctx context.Context) ([]entities.PendingOperation, error) {
	var ops []entities.PendingOperation
	if err := r.db.WithContext(ctx).Order("timestamp ASC").Order("id ASC").Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	return ops, nil
}

func (r *pendingOperationRepository) ListByOperation(ctx context.Context, operation string) ([]entities.PendingOperation, error) {
	var ops []entities.PendingOperation
	err := r.db.WithContext(ctx).
		Where("operation = ?", operation).
		Order("timestamp ASC").
		Find(&ops).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s operations: %w", operation, err)
	}
	return ops, nil
}

func (r *pendingOperationRepository) Remove(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Delete(&entities.PendingOperation{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("failed to remove pending operation %d: %w", id, err)
	}
	return nil
}

func (r *pendingOperationRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.PendingOperation{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return count, nil
}

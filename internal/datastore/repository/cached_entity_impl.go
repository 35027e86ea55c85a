package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
)

// cachedEntityRepository implements CachedEntityRepository.
type cachedEntityRepository struct {
	db *gorm.DB
}

// NewCachedEntityRepository creates a new CachedEntityRepository.
func NewCachedEntityRepository(db *gorm.DB) CachedEntityRepository {
	return &cachedEntityRepository{db: db}
}

func (r *cachedEntityRepository) Upsert(ctx context.Context, items []entities.CachedEntity) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			return ErrMissingEntityID
		}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range items {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"data", "last_modified"}),
			}).Create(&items[i]).Error
			if err != nil {
				return fmt.Errorf("failed to cache entity %s: %w", items[i].ID, err)
			}
		}
		return nil
	})
}

func (r *cachedEntityRepository) All(ctx context.Context) ([]entities.CachedEntity, error) {
	var items []entities.CachedEntity
	if err := r.db.WithContext(ctx).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list cached entities: %w", err)
	}
	return items, nil
}

func (r *cachedEntityRepository) ModifiedSince(ctx context.Context, sinceMillis int64) ([]entities.CachedEntity, error) {
	var items []entities.CachedEntity
	err := r.db.WithContext(ctx).
		Where("last_modified >= ?", sinceMillis).
		Order("last_modified DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cached entities since %d: %w", sinceMillis, err)
	}
	return items, nil
}

func (r *cachedEntityRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.CachedEntity{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count cached entities: %w", err)
	}
	return count, nil
}

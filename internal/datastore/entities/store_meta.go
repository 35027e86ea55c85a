package entities

import "time"

// StoreMeta is the single-row table recording the schema version of the store.
type StoreMeta struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:100;not null"`
	Version   int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (StoreMeta) TableName() string {
	return "store_meta"
}

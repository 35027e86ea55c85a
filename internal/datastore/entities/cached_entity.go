package entities

// CachedEntity is the stored snapshot of a domain record (a recipe) mirrored
// from a successful GET. Data holds the record as JSON; LastModified is epoch
// milliseconds of the latest (re)cache.
type CachedEntity struct {
	ID           string `gorm:"primaryKey;size:191" json:"id"`
	Data         string `gorm:"type:text;not null" json:"-"`
	LastModified int64  `gorm:"not null;index:idx_cached_recipes_last_modified" json:"lastModified"`
}

// TableName returns the table name for GORM.
func (CachedEntity) TableName() string {
	return "cached_recipes"
}

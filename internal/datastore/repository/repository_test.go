package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
)

// setupTestDB opens a SQLite database in a temp dir with a single connection,
// so every test gets an isolated store.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repository.db")
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(&entities.PendingOperation{}, &entities.CachedEntity{})
	require.NoError(t, err, "failed to migrate tables")
	return db
}

func strPtr(s string) *string { return &s }

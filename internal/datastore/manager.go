// Package datastore is the durable local store of the offline gateway. It keeps
// the queue of pending write operations and the mirror of cached recipes.
package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
)

// Config locates a store.
type Config struct {
	// DataDir holds the SQLite file. Ignored for MySQL.
	DataDir string
	// Name is the store name; the SQLite file is <DataDir>/<Name>.db.
	Name string
	// Version is the schema version this build expects.
	Version int
	// DSN is the MySQL data source name.
	DSN string
	// Debug enables gorm statement logging.
	Debug bool
}

func (c Config) name() string {
	if c.Name == "" {
		return "RecipeOfflineDB"
	}
	return c.Name
}

func (c Config) version() int {
	if c.Version <= 0 {
		return 1
	}
	return c.Version
}

// Manager owns the gorm connection and the schema.
type Manager struct {
	db      *gorm.DB
	name    string
	version int
	dialect string
}

func gormConfig(debug bool) *gorm.Config {
	level := gorm_logger.Silent
	if debug {
		level = gorm_logger.Info
	}
	return &gorm.Config{Logger: gorm_logger.Default.LogMode(level)}
}

// NewSQLiteManager opens (creating when missing) the SQLite store file.
func NewSQLiteManager(cfg Config) (*Manager, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("sqlite store requires a data directory")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(cfg.DataDir, cfg.name()+".db")
	dsn := path + "?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000"

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cfg.Debug))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// SQLite serializes writers; one connection keeps transactions from tripping over each other.
	sqlDB.SetMaxOpenConns(1)

	return &Manager{db: db, name: cfg.name(), version: cfg.version(), dialect: "sqlite"}, nil
}

// NewMySQLManager connects to a MySQL store.
func NewMySQLManager(cfg Config) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql store requires a dsn")
	}
	db, err := gorm.Open(mysql.Open(cfg.DSN), gormConfig(cfg.Debug))
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql store: %w", err)
	}
	return &Manager{db: db, name: cfg.name(), version: cfg.version(), dialect: "mysql"}, nil
}

// Initialize migrates the schema and records the store version. Opening a store
// written by a newer schema version fails.
func (m *Manager) Initialize() error {
	err := m.db.AutoMigrate(
		&entities.StoreMeta{},
		&entities.PendingOperation{},
		&entities.CachedEntity{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate store schema: %w", err)
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		var meta entities.StoreMeta
		result := tx.Limit(1).Find(&meta, 1)
		if result.Error != nil {
			return fmt.Errorf("failed to read store version: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			meta = entities.StoreMeta{ID: 1, Name: m.name, Version: m.version}
			if err := tx.Create(&meta).Error; err != nil {
				return fmt.Errorf("failed to record store version: %w", err)
			}
			return nil
		}
		if meta.Version > m.version {
			return fmt.Errorf("store %s has version %d, newer than supported %d", meta.Name, meta.Version, m.version)
		}
		if meta.Version < m.version {
			meta.Version = m.version
			if err := tx.Save(&meta).Error; err != nil {
				return fmt.Errorf("failed to upgrade store version: %w", err)
			}
		}
		return nil
	})
}

// DB returns the gorm connection.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Dialect is "sqlite" or "mysql".
func (m *Manager) Dialect() string {
	return m.dialect
}

// Version reads the recorded schema version.
func (m *Manager) Version() (int, error) {
	var meta entities.StoreMeta
	if err := m.db.First(&meta, 1).Error; err != nil {
		return 0, fmt.Errorf("failed to read store version: %w", err)
	}
	return meta.Version, nil
}

// Close releases the connection.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

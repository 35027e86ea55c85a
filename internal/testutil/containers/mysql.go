//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

// MySQL identifier rules: letters, digits, underscore, dollar; no leading digit.
var validTableNameRe = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$]*$`)

// MySQLContainer is a running MySQL instance with an open connection for fixtures.
type MySQLContainer struct {
	container *mysql.MySQLContainer
	db        *sql.DB
	dsn       string
}

// MySQLConfig configures the container.
type MySQLConfig struct {
	Database string
	Username string
	Password string
	ImageTag string
}

// DefaultMySQLConfig returns the configuration used by the store integration tests.
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		Database: "recipe_offline_test",
		Username: "gateway",
		Password: "gateway",
		ImageTag: "8.0",
	}
}

// NewMySQLContainer starts MySQL and waits until it accepts queries.
// A nil config uses DefaultMySQLConfig.
func NewMySQLContainer(ctx context.Context, config *MySQLConfig) (*MySQLContainer, error) {
	if config == nil {
		cfg := DefaultMySQLConfig()
		config = &cfg
	}

	c, err := mysql.Run(ctx, "mysql:"+config.ImageTag,
		mysql.WithDatabase(config.Database),
		mysql.WithUsername(config.Username),
		mysql.WithPassword(config.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start MySQL container: %w", err)
	}

	// parseTime is required for the store_meta timestamps.
	dsn, err := c.ConnectionString(ctx, "parseTime=true", "charset=utf8mb4")
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = c.Terminate(context.Background())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &MySQLContainer{container: c, db: db, dsn: dsn}, nil
}

// StartMySQL starts a container for a single test and terminates it on cleanup.
func StartMySQL(t *testing.T) *MySQLContainer {
	t.Helper()
	c, err := NewMySQLContainer(t.Context(), nil)
	if err != nil {
		t.Fatalf("mysql container: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Errorf("terminate mysql container: %v", err)
		}
	})
	return c
}

// DSN returns a go-sql-driver DSN usable by the gateway's mysql store driver.
func (c *MySQLContainer) DSN() string {
	return c.dsn
}

// DB returns the fixture connection. Tests must not close it.
func (c *MySQLContainer) DB() *sql.DB {
	return c.db
}

// Reset truncates tables between tests.
func (c *MySQLContainer) Reset(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if !validTableNameRe.MatchString(table) {
			return fmt.Errorf("invalid table name: %q", table)
		}
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return fmt.Errorf("failed to disable foreign key checks: %w", err)
	}
	for _, table := range tables {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE `%s`", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1"); err != nil {
		return fmt.Errorf("failed to enable foreign key checks: %w", err)
	}
	return nil
}

// Terminate closes the fixture connection and removes the container.
func (c *MySQLContainer) Terminate(ctx context.Context) error {
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}

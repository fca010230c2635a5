package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-recommender/internal/models"
)

const sqlitePrefix = "sqlite:"

// Connect opens the database named by dsn. A "sqlite:" or "file:" prefix
// selects SQLite, anything else is handed to the PostgreSQL driver.
func Connect(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(trimmed, sqlitePrefix):
		return ConnectSQLite(strings.TrimPrefix(trimmed, sqlitePrefix))
	case strings.HasPrefix(trimmed, "file:"):
		return ConnectSQLite(trimmed)
	default:
		return ConnectPostgres(trimmed)
	}
}

// ConnectPostgres establishes a connection to the PostgreSQL database using the provided DSN.
func ConnectPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn must not be empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return db, nil
}

// ConnectSQLite opens a SQLite database, used for local runs and the trainer CLI.
func ConnectSQLite(path string) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path must not be empty")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return db, nil
}

// AutoMigrate creates or updates the recommender tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Course{}, &models.Interaction{}, &models.Student{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

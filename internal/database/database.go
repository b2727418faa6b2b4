package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"sentinel-monitor/internal/config"
	"sentinel-monitor/internal/models"
)

const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Open connects to the configured database and migrates the schema.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	switch cfg.Type {
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
		return openSQLite(withPragmas(cfg.Path), logger)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// OpenMemory opens a private in-memory database. Each name gets its own
// database, so tests can run in isolation.
func OpenMemory(name string, logger *zap.Logger) (*gorm.DB, error) {
	return openSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", name, pragmas), logger)
}

func withPragmas(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + pragmas
	}
	return path + "?" + pragmas
}

func openSQLite(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serialises writers anyway; a single connection avoids SQLITE_BUSY
	// between the scheduler and request handlers.
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: newGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Info("database ready", zap.String("dialector", db.Dialector.Name()))
	return db, nil
}

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.CertificateMonitor{},
		&models.AppMonitor{},
		&models.CheckHistory{},
		&models.NotificationConfig{},
		&models.NotificationLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

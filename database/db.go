// database/db.go - Database Connection (PostgreSQL, SQLite for local runs and tests)
package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"quizhub/config"
	"quizhub/logger"
)

var db *gorm.DB

// Connect opens a connection pool. DSNs starting with "sqlite:" open SQLite, anything else is
// handed to the PostgreSQL driver.
func Connect(dsn string, production bool) (*gorm.DB, error) {
	level := gormLogger.Info
	if production {
		level = gormLogger.Warn
	}

	path, isSQLite := strings.CutPrefix(dsn, "sqlite:")
	var dialector gorm.Dialector
	if isSQLite {
		dialector = sqlite.Open(path)
	} else {
		dialector = postgres.Open(dsn)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if isSQLite {
		// SQLite allows a single writer; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return conn, nil
}

// InitDB connects using cfg, runs migrations and stores the handle for GetDB.
func InitDB(cfg *config.Config, log *logger.Logger) error {
	conn, err := Connect(cfg.DatabaseURL, cfg.IsProduction())
	if err != nil {
		return err
	}
	log.Info("✅ Database connected successfully")

	if err := RunMigrations(conn, log); err != nil {
		return err
	}
	db = conn
	return nil
}

// GetDB returns the database instance, or nil before InitDB.
func GetDB() *gorm.DB {
	return db
}

// SetDB replaces the shared handle. Tests and CLIs that open their own connection use it.
func SetDB(conn *gorm.DB) {
	db = conn
}

// CloseDB closes the database connection
func CloseDB() error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db = nil
	return nil
}

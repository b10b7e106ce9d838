// Package repo is the persistence layer: free functions over a *gorm.DB,
// one file per aggregate. This file bootstraps the SQLite database.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// OpenSQLite opens or creates the database file and applies the PRAGMAs the
// service depends on (WAL for concurrent readers, enforced foreign keys, a
// busy timeout instead of immediate SQLITE_BUSY). A missing parent directory
// fails up front rather than as an opaque driver error later.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Query-level spans through the global tracer provider. A no-op when
	// tracing is disabled.
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics(), tracing.WithDBSystem("chatapi"))); err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Chat{},
		&domain.Message{},
		&domain.UserSummary{},
		&domain.RefreshToken{},
		&domain.Idempotency{},
	)
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver), schema migrations and optional query tracing.
package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-autodaft/internal/domain"
)

// sqlitePragmas are applied through the DSN so every pooled connection gets
// them, not only the first one.
var sqlitePragmas = []string{
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
}

// OpenSQLite opens (or creates) a SQLite database at path and applies PRAGMAs.
//
// The pool is capped at a single open connection: SQLite admits one writer at
// a time, and serialising through one connection keeps concurrent ledger
// inserts from failing with SQLITE_BUSY.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	// Force a connection so a bad path surfaces here rather than on first use.
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(sqlitePragmas, "&")
}

// AutoMigrate creates or updates the preferences and applications tables,
// including the unique (preference_id, listing_reference) index the ledger
// relies on.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Preference{},
		&domain.Application{},
	)
}

// EnableTracing installs the GORM OpenTelemetry plugin so every statement
// becomes a child span of the calling operation.
func EnableTracing(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// Ping verifies the database is reachable.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

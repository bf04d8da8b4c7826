// Package testutil opens a throwaway Postgres connection for repo
// integration tests. Tests skip unless TEST_POSTGRES_DSN is set.
package testutil

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/eoty/eoty-backend/internal/data/db"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

// DB connects to TEST_POSTGRES_DSN and migrates the schema, skipping the
// test when the variable is unset.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("connect test postgres: %v", err)
	}
	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		tb.Fatalf("enable uuid-ossp: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("automigrate: %v", err)
	}
	return gdb
}

// Tx hands the test a transaction that is rolled back on cleanup so runs
// never leak rows into each other.
func Tx(tb testing.TB) *gorm.DB {
	tb.Helper()
	tx := DB(tb).Begin()
	if tx.Error != nil {
		tb.Fatalf("begin test tx: %v", tx.Error)
	}
	tb.Cleanup(func() { tx.Rollback() })
	return tx
}

// Logger builds the development logger used across repo tests.
func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("development")
	if err != nil {
		tb.Fatalf("init logger: %v", err)
	}
	return log
}

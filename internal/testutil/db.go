// Package testutil opens throwaway database schemas for tests that need postgres.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/monkeybits/edilcloud-back-sub000/dao/migrate"
)

// DSNEnv names the variable holding the postgres DSN of the test database.
const DSNEnv = "EDILCLOUD_TEST_DB"

// loadEnv reads the nearest .test.env above the working directory, if any.
func loadEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		candidate := filepath.Join(dir, ".test.env")
		if _, err := os.Stat(candidate); err == nil {
			_ = godotenv.Load(candidate)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sep := lo.Ternary(strings.Contains(dsn, "?"), "&", "?")
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}

// OpenDB migrates a fresh schema of the test database and drops it when t ends.
// The test is skipped when EDILCLOUD_TEST_DB is not set.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping database test", DSNEnv)
	}

	admin, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if err := admin.Exec(fmt.Sprintf("CREATE SCHEMA %s", schema)).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}

	db, err := gorm.Open(postgres.Open(withSearchPath(dsn, schema)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		t.Fatalf("connect test schema: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = admin.Exec(fmt.Sprintf("DROP SCHEMA %s CASCADE", schema)).Error
		if sqlDB, err := admin.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := migrate.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

package testutil

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"sadar/internal/db"
)

// OpenSQLite opens a migrated SQLite database in a temp dir that is removed with the test.
func OpenSQLite(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sadar-test.db")
	gormDB, err := db.Open(db.DriverSQLite, path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(gormDB); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gormDB
}

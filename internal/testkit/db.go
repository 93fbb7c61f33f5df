// Package testkit holds shared fixtures for package tests.
package testkit

import (
	"fmt"
	"testing"

	"go-bridge/internal/config"
	"go-bridge/internal/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a private in-memory sqlite database with the bridge schema migrated.
// The database is closed when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	database, err := db.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString()),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	require.NoError(t, db.RunDataMigrations(database))

	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return database
}

// Package storetest provides an in-memory database for tests.
package storetest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sentinelhive/svh/internal/database"
	"github.com/sentinelhive/svh/internal/models"
	"github.com/sentinelhive/svh/internal/pkg/vault"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated private in-memory SQLite database. A single
// connection keeps the database alive and serializes transactions.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// SeedAccount inserts an account with the given password.
func SeedAccount(t testing.TB, db *gorm.DB, externalID, password string, privileged bool) *models.Account {
	t.Helper()
	salt, digest, err := vault.Hash(password)
	require.NoError(t, err)

	acc := &models.Account{
		ExternalID:     externalID,
		IsPrivileged:   privileged,
		Salt:           salt,
		PasswordDigest: digest,
	}
	require.NoError(t, db.Create(acc).Error)
	return acc
}

package testutil

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/vidpipe/internal/database/migrations"
	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens an in-memory SQLite database with every migration applied,
// including the stock destinations and encode profiles.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every connection to :memory: is a separate database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	migrator := migrations.NewMigrator(db, nil)
	migrator.RegisterAll(migrations.AllMigrations())
	require.NoError(t, migrator.Up(context.Background()))

	return db
}

// Profile loads a seeded encode profile by name.
func Profile(t testing.TB, db *gorm.DB, name string) *models.EncodeProfile {
	t.Helper()

	var p models.EncodeProfile
	require.NoError(t, db.Preload("Destination").Where("name = ?", name).First(&p).Error)
	return &p
}

// DeactivateAllProfilesExcept leaves only the named profiles active.
func DeactivateAllProfilesExcept(t testing.TB, db *gorm.DB, names ...string) {
	t.Helper()

	require.NoError(t, db.Model(&models.EncodeProfile{}).Where("name NOT IN ?", names).Update("active", false).Error)
}

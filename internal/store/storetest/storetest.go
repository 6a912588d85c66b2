// Package storetest opens migrated throwaway stores for tests.
package storetest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/MorpheusAIs/ponder-builders-index/internal/db"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/internal/migrations"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/stretchr/testify/require"
)

// New returns a store backed by a migrated SQLite file under t.TempDir().
func New(t *testing.T) *store.Store {
	t.Helper()
	return store.New(OpenDB(t), db.NoOpMaintenance{}, logger.NewNopLogger())
}

// OpenDB opens and migrates a SQLite file under t.TempDir().
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()

	dbConfig := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "stakeindex.db")}
	dbConfig.ApplyDefaults()

	database, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, migrations.RunMigrations(logger.NewNopLogger(), database))
	return database
}

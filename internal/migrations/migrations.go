package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/MorpheusAIs/ponder-builders-index/internal/db"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
)

//go:embed 001_stakeindex_schema.sql
var mig001 string

// All returns the schema migrations in order.
func All() []db.Migration {
	return []db.Migration{
		{ID: "001_stakeindex_schema.sql", SQL: mig001},
	}
}

// RunMigrations brings the schema up to date.
func RunMigrations(log *logger.Logger, database *sql.DB) error {
	return db.RunMigrationsDB(log, database, All())
}

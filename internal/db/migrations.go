package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Migration is one embedded SQL file. The down section comes first and is
// separated from the up section by "-- +migrate Up".
type Migration struct {
	ID  string
	SQL string
}

func toMigrationSource(migrations []Migration) (*migrate.MemoryMigrationSource, error) {
	source := &migrate.MemoryMigrationSource{}

	for _, m := range migrations {
		down, up, found := strings.Cut(m.SQL, upMarker)
		if !found {
			return nil, fmt.Errorf("migration %s missing '%s' separator", m.ID, upMarker)
		}

		if _, after, ok := strings.Cut(down, downMarker); ok {
			down = after
		}

		source.Migrations = append(source.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{strings.TrimSpace(up)},
			Down: []string{strings.TrimSpace(down)},
		})
	}

	return source, nil
}

// RunMigrationsDB applies every pending up migration.
func RunMigrationsDB(log *logger.Logger, db *sql.DB, migrations []Migration) error {
	return RunMigrationsDBExtended(log, db, migrations, migrate.Up, 0)
}

// RunMigrationsDBExtended applies at most maxMigrations migrations (0 = no limit)
// in the given direction.
func RunMigrationsDBExtended(
	log *logger.Logger,
	db *sql.DB,
	migrations []Migration,
	dir migrate.MigrationDirection,
	maxMigrations int,
) error {
	source, err := toMigrationSource(migrations)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(source.Migrations))
	for _, m := range source.Migrations {
		ids = append(ids, m.Id)
	}
	list := strings.Join(ids, ", ")

	log.Debugf("running migrations (max %d/%d): %s", maxMigrations, len(ids), list)

	n, err := migrate.ExecMax(db, "sqlite3", source, dir, maxMigrations)
	if err != nil {
		return fmt.Errorf("error executing migrations (max %d/%d) %s: %w", maxMigrations, len(ids), list, err)
	}

	log.Infof("successfully ran %d migrations from: %s", n, list)
	return nil
}

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/mattn/go-sqlite3"
	"github.com/russross/meddler"
)

// NewSQLiteDBFromConfig opens the SQLite database described by cfg.
// Transactions take the write lock immediately so concurrent chain workers
// serialize on BEGIN instead of failing on upgrade.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	foreignKeys := "off"
	if cfg.EnableForeignKeys {
		foreignKeys = "on"
	}

	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=%s&_journal_mode=%s&_busy_timeout=%d",
		cfg.Path,
		foreignKeys,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)

	pragmas := []string{
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSize),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return db, nil
}

// IsUniqueViolation reports whether err is a primary key or unique constraint failure.
// meddler hides the driver error behind a type without Unwrap, so every level
// of the chain is checked through meddler.DriverErr.
func IsUniqueViolation(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		driverErr, _ := meddler.DriverErr(err)
		var sqliteErr sqlite3.Error
		if errors.As(driverErr, &sqliteErr) {
			return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
		}
	}
	return false
}

// Vacuum rebuilds the database file, reclaiming free pages.
func Vacuum(db *sql.DB) error {
	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}

// DBTotalSize returns the combined size of the database file and its WAL and
// shared-memory companions. Missing files count as zero.
func DBTotalSize(dbPath string) (int64, error) {
	var total int64
	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		total += info.Size()
	}
	return total, nil
}

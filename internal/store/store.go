package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MorpheusAIs/ponder-builders-index/internal/db"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/russross/meddler"
)

// Store owns every persisted entity. Writes go through WithTx so that all
// effects of one event commit together.
type Store struct {
	db          *sql.DB
	maintenance db.Maintenance
	log         *logger.Logger
}

// New creates a store on an already migrated database.
func New(database *sql.DB, maintenance db.Maintenance, log *logger.Logger) *Store {
	if maintenance == nil {
		maintenance = db.NoOpMaintenance{}
	}
	return &Store{
		db:          database,
		maintenance: maintenance,
		log:         log,
	}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn in a transaction and commits when fn returns nil. The
// maintenance operation lock is held for the whole transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	release := s.maintenance.AcquireOperationLock()
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkProcessed records that an event was applied. It returns
// ErrDuplicateInteraction if the event was applied before.
func MarkProcessed(q meddler.DB, ev *ProcessedEvent) error {
	return insertRecord(q, "processed_events", ev)
}

// IsProcessed reports whether the event key was applied.
func IsProcessed(q meddler.DB, ev *ProcessedEvent) (bool, error) {
	var n int
	if err := q.QueryRow("SELECT COUNT(*) FROM processed_events WHERE id = ?", ev.Key.Hex()).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func InsertInteraction(q meddler.DB, rec *Interaction) error {
	return insertRecord(q, "interactions", rec)
}

func InsertPoolChange(q meddler.DB, rec *PoolChange) error {
	return insertRecord(q, "pool_changes", rec)
}

func InsertReferralEvent(q meddler.DB, rec *ReferralEvent) error {
	return insertRecord(q, "referral_events", rec)
}

func InsertAdminEvent(q meddler.DB, rec *AdminEvent) error {
	return insertRecord(q, "admin_events", rec)
}

func InsertTransfer(q meddler.DB, rec *Transfer) error {
	return insertRecord(q, "transfers", rec)
}

func InsertRewardDistribution(q meddler.DB, rec *RewardDistribution) error {
	return insertRecord(q, "reward_distributions", rec)
}

// insertRecord appends an immutable row. A key collision is reported as
// ErrDuplicateInteraction.
func insertRecord(q meddler.DB, table string, rec any) error {
	if err := meddler.Insert(q, table, rec); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", table, ErrDuplicateInteraction)
		}
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// GetCounters loads the global counters row.
func GetCounters(q meddler.DB) (*GlobalCounters, error) {
	var c GlobalCounters
	if err := meddler.QueryRow(q, &c, "SELECT * FROM global_counters WHERE id = ?", CountersID); err != nil {
		return nil, fmt.Errorf("failed to load global counters: %w", err)
	}
	return &c, nil
}

// PutCounters overwrites the global counters row.
func PutCounters(q meddler.DB, c *GlobalCounters) error {
	c.ID = CountersID
	_, err := q.Exec(`UPDATE global_counters
		SET total_pools = ?, total_users = ?, total_users_across_pools = ?,
			total_staked = ?, total_claimed = ?, last_updated = ?
		WHERE id = ?`,
		c.TotalPools, c.TotalUsers, c.TotalUsersAcrossPools,
		bigString(c.TotalStaked), bigString(c.TotalClaimed), c.LastUpdated, CountersID)
	if err != nil {
		return fmt.Errorf("failed to update global counters: %w", err)
	}
	return nil
}

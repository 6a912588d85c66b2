package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/internal/common"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
)

// Maintenance serializes WAL checkpoints and VACUUM against event transactions.
type Maintenance interface {
	// Start begins background maintenance if enabled.
	Start(ctx context.Context) error
	// Stop stops background maintenance and waits for the worker to exit.
	Stop() error
	// AcquireOperationLock is held for the duration of one event transaction.
	// The returned function releases it.
	AcquireOperationLock() func()
	// RunMaintenance checkpoints the WAL and vacuums the database.
	RunMaintenance(ctx context.Context) error
	// Status reports the outcome of the last run.
	Status() MaintenanceStatus
}

// MaintenanceStatus describes the last maintenance run.
type MaintenanceStatus struct {
	LastRun   time.Time
	Runs      uint64
	LastError error
}

// NoOpMaintenance is used when maintenance is not configured.
type NoOpMaintenance struct{}

func (NoOpMaintenance) Start(context.Context) error          { return nil }
func (NoOpMaintenance) Stop() error                          { return nil }
func (NoOpMaintenance) AcquireOperationLock() func()         { return func() {} }
func (NoOpMaintenance) RunMaintenance(context.Context) error { return nil }
func (NoOpMaintenance) Status() MaintenanceStatus            { return MaintenanceStatus{} }

// MaintenanceCoordinator runs maintenance under the write side of an RWMutex.
// Event transactions hold the read side, so maintenance waits for in-flight
// events to commit and blocks new ones until it is done.
type MaintenanceCoordinator struct {
	db     *sql.DB
	dbPath string
	config config.MaintenanceConfig
	log    *logger.Logger

	opLock sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	statusMu sync.Mutex
	status   MaintenanceStatus
}

// NewMaintenance returns a coordinator for cfg, or a no-op when cfg is nil.
func NewMaintenance(dbPath string, db *sql.DB, cfg *config.MaintenanceConfig, log *logger.Logger) Maintenance {
	if cfg == nil {
		return NoOpMaintenance{}
	}
	return newMaintenanceCoordinator(dbPath, db, *cfg, log)
}

func newMaintenanceCoordinator(
	dbPath string,
	db *sql.DB,
	cfg config.MaintenanceConfig,
	log *logger.Logger,
) *MaintenanceCoordinator {
	return &MaintenanceCoordinator{
		db:     db,
		dbPath: dbPath,
		config: cfg,
		log:    log.WithComponent(common.ComponentMaintenance),
	}
}

// Start begins background maintenance if enabled.
func (m *MaintenanceCoordinator) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.log.Info("background maintenance is disabled")
		return nil
	}

	ctx, m.cancel = context.WithCancel(ctx)

	if m.config.VacuumOnStartup {
		if err := m.RunMaintenance(ctx); err != nil {
			m.log.Warnf("startup maintenance failed: %v", err)
		}
	}

	m.wg.Add(1)
	go m.loop(ctx, m.config.CheckInterval.Duration)

	m.log.Infof("background maintenance started, interval: %v, checkpoint mode: %s",
		m.config.CheckInterval.Duration, m.config.WALCheckpointMode)

	return nil
}

// Stop stops background maintenance and waits for completion.
func (m *MaintenanceCoordinator) Stop() error {
	if m.cancel == nil {
		return nil
	}

	m.cancel()
	m.wg.Wait()
	m.log.Info("background maintenance stopped")

	return nil
}

func (m *MaintenanceCoordinator) loop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RunMaintenance(ctx); err != nil {
				m.log.Warnf("periodic maintenance failed: %v", err)
			}
		}
	}
}

// RunMaintenance takes the exclusive lock, checkpoints the WAL and vacuums.
func (m *MaintenanceCoordinator) RunMaintenance(ctx context.Context) (err error) {
	start := time.Now()

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	defer func() {
		maintenanceFinished(start, err)

		m.statusMu.Lock()
		m.status.LastRun = time.Now().UTC()
		m.status.Runs++
		m.status.LastError = err
		m.statusMu.Unlock()
	}()

	before, sizeErr := DBTotalSize(m.dbPath)
	if sizeErr != nil {
		m.log.Warnf("failed to get db size: %v", sizeErr)
	}

	err = errors.Join(m.walCheckpoint(), m.vacuum())

	after, sizeErr := DBTotalSize(m.dbPath)
	if sizeErr != nil {
		m.log.Warnf("failed to get db size: %v", sizeErr)
	}
	dbSizeLog(after)

	if err != nil {
		m.log.Warnf("maintenance finished with errors in %v: %v", time.Since(start), err)
		return err
	}

	if before > after {
		m.log.Infof("maintenance finished in %v, reclaimed %d MB",
			time.Since(start), common.BytesToMB(uint64(before-after)))
	} else {
		m.log.Infof("maintenance finished in %v", time.Since(start))
	}

	return nil
}

func (m *MaintenanceCoordinator) walCheckpoint() error {
	var mode string
	if err := m.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to read journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return nil
	}

	var busy, logFrames, checkpointed int
	query := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.config.WALCheckpointMode)
	if err := m.db.QueryRow(query).Scan(&busy, &logFrames, &checkpointed); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}

	walCheckpointInc(strings.ToLower(m.config.WALCheckpointMode))
	m.log.Debugf("wal checkpoint: busy=%d log=%d checkpointed=%d", busy, logFrames, checkpointed)

	if busy > 0 {
		m.log.Warnf("wal checkpoint left %d busy pages", busy)
	}

	return nil
}

func (m *MaintenanceCoordinator) vacuum() error {
	if err := Vacuum(m.db); err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			return fmt.Errorf("cannot vacuum: database is locked")
		}
		return err
	}
	return nil
}

// AcquireOperationLock takes the shared side of the maintenance lock.
func (m *MaintenanceCoordinator) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

// Status reports the outcome of the last run.
func (m *MaintenanceCoordinator) Status() MaintenanceStatus {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status
}

package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/internal/common"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/stretchr/testify/require"
)

func setupMaintenanceTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "maintenance.db")

	dbConfig := config.DatabaseConfig{Path: dbPath}
	dbConfig.ApplyDefaults()

	db, err := NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE test_data (id INTEGER PRIMARY KEY, data TEXT)`)
	require.NoError(t, err)

	return db, dbPath
}

func insertRows(t *testing.T, db *sql.DB, n int) {
	t.Helper()
	for range n {
		_, err := db.Exec("INSERT INTO test_data (data) VALUES (?)", "some test data")
		require.NoError(t, err)
	}
}

func TestNewMaintenance_NilConfig(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	m := NewMaintenance(dbPath, db, nil, logger.NewNopLogger())
	require.IsType(t, NoOpMaintenance{}, m)
	require.NoError(t, m.Start(t.Context()))
	m.AcquireOperationLock()()
	require.NoError(t, m.RunMaintenance(t.Context()))
	require.NoError(t, m.Stop())
}

func TestMaintenanceCoordinator_RunMaintenance(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)
	insertRows(t, db, 1000)

	coordinator := newMaintenanceCoordinator(dbPath, db, config.MaintenanceConfig{
		WALCheckpointMode: "TRUNCATE",
	}, logger.NewNopLogger())

	require.NoError(t, coordinator.RunMaintenance(context.Background()))

	status := coordinator.Status()
	require.Equal(t, uint64(1), status.Runs)
	require.False(t, status.LastRun.IsZero())
	require.NoError(t, status.LastError)
}

func TestMaintenanceCoordinator_ContextCancellation(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	coordinator := newMaintenanceCoordinator(dbPath, db, config.MaintenanceConfig{
		WALCheckpointMode: "TRUNCATE",
	}, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, coordinator.RunMaintenance(ctx), context.Canceled)
	require.Zero(t, coordinator.Status().Runs)
}

func TestMaintenanceCoordinator_MaintenanceWaitsForOperations(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	coordinator := newMaintenanceCoordinator(dbPath, db, config.MaintenanceConfig{
		WALCheckpointMode: "PASSIVE",
	}, logger.NewNopLogger())

	unlock := coordinator.AcquireOperationLock()

	var finished atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, coordinator.RunMaintenance(context.Background()))
		finished.Store(true)
	}()

	time.Sleep(50 * time.Millisecond)
	require.False(t, finished.Load(), "maintenance must wait for the in-flight operation")

	unlock()
	<-done
	require.True(t, finished.Load())
}

func TestMaintenanceCoordinator_BackgroundAndStartup(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)
	insertRows(t, db, 100)

	coordinator := newMaintenanceCoordinator(dbPath, db, config.MaintenanceConfig{
		Enabled:           true,
		CheckInterval:     common.NewDuration(50 * time.Millisecond),
		VacuumOnStartup:   true,
		WALCheckpointMode: "PASSIVE",
	}, logger.NewNopLogger())

	require.NoError(t, coordinator.Start(t.Context()))
	require.GreaterOrEqual(t, coordinator.Status().Runs, uint64(1), "startup maintenance should have run")

	require.Eventually(t, func() bool {
		return coordinator.Status().Runs >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, coordinator.Stop())
}

func TestMaintenanceCoordinator_Disabled(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	coordinator := newMaintenanceCoordinator(dbPath, db, config.MaintenanceConfig{
		Enabled:       false,
		CheckInterval: common.NewDuration(10 * time.Millisecond),
	}, logger.NewNopLogger())

	require.NoError(t, coordinator.Start(t.Context()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, coordinator.Stop())
	require.Zero(t, coordinator.Status().Runs)
}

func TestMaintenanceCoordinator_ConcurrentOperations(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	coordinator := newMaintenanceCoordinator(dbPath, db, config.MaintenanceConfig{
		WALCheckpointMode: "PASSIVE",
	}, logger.NewNopLogger())

	const workers, perWorker = 20, 5
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)

	for range workers {
		wg.Go(func() {
			for range perWorker {
				unlock := coordinator.AcquireOperationLock()
				_, err := db.Exec("INSERT INTO test_data (data) VALUES (?)", "x")
				unlock()
				if err == nil {
					successes.Add(1)
				}
			}
		})
	}

	wg.Go(func() {
		for range 3 {
			require.NoError(t, coordinator.RunMaintenance(context.Background()))
		}
	})

	wg.Wait()

	require.Equal(t, int32(workers*perWorker), successes.Load())
	require.Equal(t, uint64(3), coordinator.Status().Runs)
}

package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MorpheusAIs/ponder-builders-index/internal/common"
	"github.com/MorpheusAIs/ponder-builders-index/internal/config"
	"github.com/MorpheusAIs/ponder-builders-index/internal/db"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/internal/migrations"
	"github.com/MorpheusAIs/ponder-builders-index/internal/pipeline"
	"github.com/MorpheusAIs/ponder-builders-index/internal/projector"
	"github.com/MorpheusAIs/ponder-builders-index/internal/reorg"
	"github.com/MorpheusAIs/ponder-builders-index/internal/rpc"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	pkgconfig "github.com/MorpheusAIs/ponder-builders-index/pkg/config"
)

// app holds the components shared by every command that touches the database.
type app struct {
	cfg         *pkgconfig.Config
	log         *logger.Logger
	database    *sql.DB
	maintenance db.Maintenance
	store       *store.Store
	reader      *rpc.ContractReader
	projector   *projector.Projector
	rollbacks   *reorg.Handler
	coordinator *pipeline.Coordinator
}

func (a *app) componentLogger(component string) *logger.Logger {
	return logger.NewComponentLoggerFromConfig(component, a.cfg.Logging)
}

// newApp loads the configuration, migrates the database and wires the
// projection pipeline. withRPC dials the configured chain endpoints.
func newApp(ctx context.Context, path string, withRPC bool) (*app, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{cfg: cfg}
	a.log = a.componentLogger(common.ComponentCoordinator)

	a.database, err = db.NewSQLiteDBFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	a.log.Info("running database migrations")
	if err := migrations.RunMigrations(a.componentLogger(common.ComponentStore), a.database); err != nil {
		a.database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a.maintenance = db.NewMaintenance(cfg.Database.Path, a.database, cfg.Maintenance,
		a.componentLogger(common.ComponentMaintenance))
	a.store = store.New(a.database, a.maintenance, a.componentLogger(common.ComponentStore))

	a.reader = rpc.NewContractReader(cfg.BalanceReader, rpc.SystemClock, a.componentLogger(common.ComponentBalanceReader))
	if withRPC {
		for _, chain := range cfg.Chains {
			if chain.RPCURL == "" {
				a.log.Warnw("no rpc_url configured, balances fall back to event amounts", "chain_id", chain.ChainID)
				continue
			}
			client, err := rpc.NewClient(ctx, chain.RPCURL)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to connect to chain %d: %w", chain.ChainID, err)
			}
			a.reader.AddChain(chain.ChainID, client)
			a.log.Infow("connected to chain", "chain_id", chain.ChainID, "name", chain.Name)
		}
	}

	a.projector, err = projector.New(cfg, a.store, a.reader, a.componentLogger(common.ComponentProjector))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.rollbacks = reorg.NewHandler(a.store, a.componentLogger(common.ComponentReorgHandler))
	a.coordinator = pipeline.NewCoordinator(cfg.Chains, a.projector, a.rollbacks, a.reader, a.store,
		a.componentLogger(common.ComponentCoordinator))

	return a, nil
}

func (a *app) Close() {
	a.reader.Close()
	if err := a.database.Close(); err != nil {
		a.log.Warnw("failed to close database", "error", err)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MorpheusAIs/ponder-builders-index/internal/common"
	"github.com/MorpheusAIs/ponder-builders-index/internal/counters"
	"github.com/MorpheusAIs/ponder-builders-index/internal/metrics"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║           stakeindex v%s               ║
║   Staking Event State Materializer        ║
╚═══════════════════════════════════════════╝
`
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "stakeindex - staking event to state materializer",
	Long: `stakeindex materializes pools, users, referrals and protocol counters from
decoded staking contract events delivered by a chain follower. Chain
reorganizations are handled by rolling back to the common ancestor and
replaying the retained history.`,
	Version:      version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the materializer with its API, metrics and audit services",
	RunE:  runIndexer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(runCmd, replayCmd, rollbackCmd, verifyCmd, schemaCmd, listCmd)
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	fmt.Printf(banner, version)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, a.componentLogger(common.ComponentAPI))
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(context.Background()); err != nil {
				a.log.Warnw("failed to stop metrics server", "error", err)
			}
		}()
	}

	if err := a.maintenance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start database maintenance: %w", err)
	}
	defer func() {
		if err := a.maintenance.Stop(); err != nil {
			a.log.Warnw("failed to stop database maintenance", "error", err)
		}
	}()

	if cfg.Audit != nil && cfg.Audit.Enabled {
		auditor := counters.NewAuditor(a.store, *cfg.Audit, a.componentLogger(common.ComponentCounters))
		if err := auditor.Start(ctx); err != nil {
			return err
		}
		defer auditor.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.coordinator.Run(gctx)
	})

	if cfg.API != nil && cfg.API.Enabled {
		server := api.NewServer(cfg.API, cfg.Chains, a.store, a.coordinator, a.coordinator,
			a.componentLogger(common.ComponentAPI))
		g.Go(func() error {
			return server.Start(gctx)
		})
	} else {
		a.log.Warn("API server is disabled, no events can be delivered")
	}

	a.log.Infow("stakeindex started", "chains", len(cfg.Chains))
	if err := g.Wait(); err != nil {
		return err
	}

	a.log.Info("stakeindex stopped")
	return nil
}

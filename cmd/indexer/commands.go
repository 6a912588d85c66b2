package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MorpheusAIs/ponder-builders-index/internal/common"
	"github.com/MorpheusAIs/ponder-builders-index/internal/config"
	"github.com/MorpheusAIs/ponder-builders-index/internal/counters"
	"github.com/MorpheusAIs/ponder-builders-index/internal/projector"
	pkgconfig "github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const maxReplayLine = 4 << 20

var (
	replayFile    string
	replayRPC     bool
	rollbackChain uint64
	rollbackBlock uint64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Feed a JSON-lines file of decoded events through the pipeline",
	Long: `Each line is either a decoded event:

  {"chain_id":42161,"contract":"Builders","event":"UserDeposited","args":{...},"block":{"number":1,"timestamp":2},"tx_hash":"0x..","log_index":0}

or a rollback notification:

  {"chain_id":42161,"rollback":250000000}`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		in := os.Stdin
		if replayFile != "" && replayFile != "-" {
			f, err := os.Open(replayFile)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		a, err := newApp(ctx, configPath, replayRPC)
		if err != nil {
			return err
		}
		defer a.Close()

		runCtx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(runCtx)
		g.Go(func() error { return a.coordinator.Run(gctx) })

		n, replayErr := replay(gctx, in, a.coordinator, a.cfg)
		cancel()
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if replayErr != nil {
			return replayErr
		}

		for _, st := range a.coordinator.ChainStatuses(ctx) {
			fmt.Fprintf(cmd.OutOrStdout(), "chain %d (%s): last processed block %d, state %s\n",
				st.ChainID, st.Name, st.LastProcessedBlock, st.State)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "replayed %d lines\n", n)
		return nil
	},
}

// replayLine is a decoded event or, when Rollback is set, a rollback notification.
type replayLine struct {
	indexer.RawEvent
	Rollback *uint64 `json:"rollback,omitempty"`
}

// replay delivers every line of r to sink and returns the number of lines applied.
func replay(ctx context.Context, r io.Reader, sink indexer.EventSink, cfg *pkgconfig.Config) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxReplayLine)

	applied, lineNo := 0, 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var line replayLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return applied, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if line.ChainID == 0 && len(cfg.Chains) == 1 {
			line.ChainID = cfg.Chains[0].ChainID
		}

		var err error
		if line.Rollback != nil {
			err = sink.OnRollback(ctx, line.ChainID, *line.Rollback)
		} else {
			err = sink.OnEvent(ctx, line.RawEvent)
		}
		if err != nil {
			return applied, fmt.Errorf("line %d: %w", lineNo, err)
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		return applied, fmt.Errorf("line %d: %w", lineNo+1, err)
	}
	return applied, nil
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll a chain back to a common ancestor block",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), configPath, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.FindChain(rollbackChain) == nil {
			return fmt.Errorf("chain %d is not configured", rollbackChain)
		}

		res, err := a.rollbacks.Rollback(cmd.Context(), rollbackChain, rollbackBlock)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "chain %d rolled back to block %d (depth %d)\n", res.ChainID, res.Ancestor, res.Depth)
		for table, n := range res.Deleted {
			if n > 0 {
				fmt.Fprintf(out, "  %-20s %d rows deleted\n", table, n)
			}
		}
		fmt.Fprintf(out, "  recomputed %d pools, %d users, %d referrals, %d referrers\n",
			res.Pools, res.Users, res.Referrals, res.Referrers)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute the global counters and pool totals and report drift",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), configPath, false)
		if err != nil {
			return err
		}
		defer a.Close()

		auditCfg := pkgconfig.AuditConfig{}
		if a.cfg.Audit != nil {
			auditCfg = *a.cfg.Audit
		}
		auditCfg.ApplyDefaults()

		auditor := counters.NewAuditor(a.store, auditCfg, a.componentLogger(common.ComponentCounters))
		defer auditor.Stop()

		report, err := auditor.Run(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pools checked: %d\n", report.PoolsSeen)
		for _, d := range report.Drift {
			fmt.Fprintf(out, "counter drift: %s\n", d)
		}
		for _, v := range report.Violations {
			fmt.Fprintf(out, "pool %s: total staked %s, users staked %s, total claimed %s, users claimed %s\n",
				v.Pool.Hex(), v.TotalStaked, v.UsersStaked, v.TotalClaimed, v.UsersClaimed)
		}
		if !report.OK() {
			return errors.New("verification failed")
		}
		fmt.Fprintln(out, "ok")
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		r := &jsonschema.Reflector{RequiredFromJSONSchemaTags: true}
		schema := r.Reflect(&pkgconfig.Config{})
		schema.Title = "stakeindex configuration"

		out, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List contract kinds and the events they accept",
	Long: `Without a readable configuration file, list every contract kind.
With one, list the configured contracts per chain.`,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()

		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			fmt.Fprintln(out, "Contract kinds:")
			for _, kind := range pkgconfig.ValidContractKinds {
				fmt.Fprintf(out, "  - %s: %s\n", kind, strings.Join(projector.EventsOf(kind), ", "))
			}
			return
		}

		for _, chain := range cfg.Chains {
			fmt.Fprintf(out, "chain %d (%s):\n", chain.ChainID, chain.Name)
			for _, c := range chain.Contracts {
				fmt.Fprintf(out, "  - %s [%s] %s\n      %s\n", c.Name, c.Kind, c.Address,
					strings.Join(projector.EventsOf(c.Kind), ", "))
			}
		}
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "-", "JSON-lines file of events, - for stdin")
	replayCmd.Flags().BoolVar(&replayRPC, "rpc", false, "read balances from the configured RPC endpoints")

	rollbackCmd.Flags().Uint64Var(&rollbackChain, "chain", 0, "chain id")
	rollbackCmd.Flags().Uint64Var(&rollbackBlock, "block", 0, "common ancestor block; everything above it is discarded")
	_ = rollbackCmd.MarkFlagRequired("chain")
	_ = rollbackCmd.MarkFlagRequired("block")
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAML(t *testing.T) {
	cfg, err := LoadFromYAML("../../config.example.yaml")
	require.NoError(t, err, "failed to load YAML config")

	validateConfig(t, cfg, "YAML")

	require.NotNil(t, cfg.Maintenance)
	require.Equal(t, 30*time.Minute, cfg.Maintenance.CheckInterval.Duration)
	require.Equal(t, "debug", cfg.Logging.GetComponentLevel("reorg-handler"))
	require.Equal(t, "info", cfg.Logging.GetComponentLevel("projector"))
	require.Equal(t, int32(6), cfg.FindChain(1).Contracts[1].Decimals)
}

func TestLoadFromJSON(t *testing.T) {
	cfg, err := LoadFromJSON("../../config.example.json")
	require.NoError(t, err, "failed to load JSON config")

	validateConfig(t, cfg, "JSON")

	require.Equal(t, config.MissingEntityDegraded, cfg.Projector.MissingEntityPolicy)
	require.Equal(t, 2*time.Minute, cfg.BalanceReader.CacheTTL.Duration)
	require.Equal(t, 500*time.Millisecond, cfg.BalanceReader.Retry.InitialBackoff.Duration)
}

func TestLoadFromTOML(t *testing.T) {
	cfg, err := LoadFromTOML("../../config.example.toml")
	require.NoError(t, err, "failed to load TOML config")

	validateConfig(t, cfg, "TOML")
}

func TestLoadFromFile(t *testing.T) {
	for _, path := range []string{
		"../../config.example.yaml",
		"../../config.example.json",
		"../../config.example.toml",
	} {
		t.Run(path, func(t *testing.T) {
			cfg, err := LoadFromFile(path)
			require.NoError(t, err)
			validateConfig(t, cfg, path)
		})
	}
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	_, err := LoadFromFile("config.txt")
	require.ErrorContains(t, err, "unsupported config file format")
}

// validateConfig checks that the loaded config has expected values
func validateConfig(t *testing.T, cfg *config.Config, format string) {
	t.Helper()

	require.NotEmpty(t, cfg.Database.Path, "[%s] database.path should not be empty", format)
	require.Equal(t, "WAL", cfg.Database.JournalMode, "[%s] database.journal_mode", format)
	require.Equal(t, 25, cfg.Database.MaxOpenConnections, "[%s] default max_open_connections", format)

	require.Len(t, cfg.Chains, 2, "[%s] two chains expected", format)

	arbitrum := cfg.FindChain(42161)
	require.NotNil(t, arbitrum, "[%s] arbitrum chain should be configured", format)
	require.Equal(t, uint64(20), arbitrum.ReadinessLag)
	require.NotEmpty(t, arbitrum.RPCURL)

	for i, chain := range cfg.Chains {
		require.NotEmpty(t, chain.Contracts, "[%s] chains[%d] should have contracts", format, i)
		require.Equal(t, 256, chain.QueueSize, "[%s] chains[%d] default queue size", format, i)
		for j, contract := range chain.Contracts {
			require.NotEmpty(t, contract.Address, "[%s] chains[%d].contracts[%d].address", format, i, j)
			require.NotZero(t, contract.Decimals, "[%s] chains[%d].contracts[%d].decimals default", format, i, j)
		}
	}

	require.NotNil(t, cfg.BalanceReader.Retry, "[%s] retry defaults should be applied", format)
	require.NotZero(t, cfg.BalanceReader.CacheSize)
	require.Equal(t, 10*time.Second, cfg.BalanceReader.CallTimeout.Duration)
	require.NotEmpty(t, cfg.Projector.MissingEntityPolicy)
}

func validChain() config.ChainConfig {
	return config.ChainConfig{
		ChainID: 1,
		Contracts: []config.ContractConfig{
			{Name: "DepositPool", Kind: config.ContractKindDepositPool, Address: "0x47176B2Af9885dC6C4575d4eFd63895f7Aaa4790"},
		},
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Path: "./test.db"},
		Chains:   []config.ChainConfig{validChain()},
		API:      &config.APIConfig{CORS: config.CORSConfig{Enabled: true}},
		Audit:    &config.AuditConfig{Enabled: true},
	}

	cfg.ApplyDefaults()

	require.Equal(t, "WAL", cfg.Database.JournalMode)
	require.Equal(t, "NORMAL", cfg.Database.Synchronous)
	require.Equal(t, 5000, cfg.Database.BusyTimeout)
	require.Equal(t, config.MissingEntityStrict, cfg.Projector.MissingEntityPolicy)
	require.Equal(t, 5, cfg.BalanceReader.Retry.MaxAttempts)
	require.Equal(t, 5*time.Minute, cfg.BalanceReader.CacheTTL.Duration)
	require.Equal(t, ":8080", cfg.API.ListenAddress)
	require.Equal(t, []string{"*"}, cfg.API.CORS.AllowedOrigins)
	require.Equal(t, "0 */5 * * * *", cfg.Audit.Schedule)
	require.Equal(t, uint64(10), cfg.Chains[0].ReadinessLag)
	require.Equal(t, int32(18), cfg.Chains[0].Contracts[0].Decimals)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(cfg *config.Config) {},
		},
		{
			name:    "missing database path",
			mutate:  func(cfg *config.Config) { cfg.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "no chains",
			mutate:  func(cfg *config.Config) { cfg.Chains = nil },
			wantErr: "at least one chain",
		},
		{
			name:    "missing chain id",
			mutate:  func(cfg *config.Config) { cfg.Chains[0].ChainID = 0 },
			wantErr: "chain_id is required",
		},
		{
			name:    "duplicate chain id",
			mutate:  func(cfg *config.Config) { cfg.Chains = append(cfg.Chains, validChain()) },
			wantErr: "duplicate chain_id",
		},
		{
			name:    "unknown contract kind",
			mutate:  func(cfg *config.Config) { cfg.Chains[0].Contracts[0].Kind = "vault" },
			wantErr: "kind must be one of",
		},
		{
			name: "duplicate contract name",
			mutate: func(cfg *config.Config) {
				cfg.Chains[0].Contracts = append(cfg.Chains[0].Contracts, cfg.Chains[0].Contracts[0])
			},
			wantErr: "duplicate contract name",
		},
		{
			name:    "invalid missing entity policy",
			mutate:  func(cfg *config.Config) { cfg.Projector.MissingEntityPolicy = "lenient" },
			wantErr: "missing_entity_policy",
		},
		{
			name: "unknown logging component",
			mutate: func(cfg *config.Config) {
				cfg.Logging = &config.LoggingConfig{ComponentLevels: map[string]string{"downloader": "debug"}}
			},
			wantErr: "unknown component",
		},
		{
			name: "invalid metrics path",
			mutate: func(cfg *config.Config) {
				cfg.Metrics = &config.MetricsConfig{Enabled: true, ListenAddress: ":9090", Path: "metrics"}
			},
			wantErr: "path must start with '/'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Database: config.DatabaseConfig{Path: "./test.db"},
				Chains:   []config.ChainConfig{validChain()},
			}
			cfg.ApplyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

const addressConfig = `
database:
  path: "./test.db"
chains:
  - chain_id: 1
    contracts:
`

// writeConfig writes a single-chain config with one flow-style entry per contract.
func writeConfig(t *testing.T, contracts ...string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString(addressConfig)
	for _, c := range contracts {
		fmt.Fprintf(&b, "      - %s\n", c)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestLoadFromFile_ContractAddresses(t *testing.T) {
	const (
		lower   = `{name: "DepositPool", kind: "deposit_pool", address: "0x47176b2af9885dc6c4575d4efd63895f7aaa4790"}`
		mixed   = `{name: "Builders", kind: "builders", address: "0x47176B2Af9885dC6C4575d4eFd63895f7Aaa4790"}`
		short   = `{name: "DepositPool", kind: "deposit_pool", address: "0x47176b2a"}`
		zero    = `{name: "DepositPool", kind: "deposit_pool", address: "0x0000000000000000000000000000000000000000"}`
		builder = `{name: "Builders", kind: "builders", address: "0xC0eD68f163d44B6e9985F0041fDf6f67c6BCFF3f"}`
	)

	tests := []struct {
		name      string
		contracts []string
		want      string
		wantErr   string
	}{
		{name: "lowercase address is checksummed", contracts: []string{lower, builder},
			want: common.HexToAddress("0x47176b2af9885dc6c4575d4efd63895f7aaa4790").Hex()},
		{name: "short address", contracts: []string{short}, wantErr: "invalid address"},
		{name: "zero address", contracts: []string{zero}, wantErr: "zero address"},
		{name: "same address twice", contracts: []string{lower, mixed}, wantErr: "already used by DepositPool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromFile(writeConfig(t, tt.contracts...))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg.Chains[0].Contracts[0].Address)
		})
	}
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDatabasePath, "/var/lib/stakeindex/index.db")
	t.Setenv(ChainRPCEnv(42161), "https://arb-mainnet.example/v2/secret")

	cfg, err := LoadFromFile("../../config.example.yaml")
	require.NoError(t, err)

	require.Equal(t, "/var/lib/stakeindex/index.db", cfg.Database.Path)
	require.Equal(t, "https://arb-mainnet.example/v2/secret", cfg.FindChain(42161).RPCURL)
	require.Empty(t, cfg.FindChain(1).RPCURL)
}

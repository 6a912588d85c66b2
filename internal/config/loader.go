package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	pkgconfig "github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Environment overrides. RPC URLs usually embed provider keys, so they are
// kept out of the file when set here.
const (
	EnvDatabasePath = "STAKEINDEX_DB_PATH"
	envChainRPCURL  = "STAKEINDEX_CHAIN_%d_RPC_URL"
)

// ChainRPCEnv returns the variable that overrides the RPC URL of a chain.
func ChainRPCEnv(chainID uint64) string {
	return fmt.Sprintf(envChainRPCURL, chainID)
}

// LoadFromFile loads configuration from a file, auto-detecting the format by extension.
// Supported formats: .yaml, .yml, .json, .toml
func LoadFromFile(path string) (*pkgconfig.Config, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return LoadFromYAML(path)
	case ".json":
		return LoadFromJSON(path)
	case ".toml":
		return LoadFromTOML(path)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json, .toml)", ext)
	}
}

// LoadFromYAML loads configuration from a YAML file.
func LoadFromYAML(path string) (*pkgconfig.Config, error) {
	return load(path, "YAML", yaml.Unmarshal)
}

// LoadFromJSON loads configuration from a JSON file.
func LoadFromJSON(path string) (*pkgconfig.Config, error) {
	return load(path, "JSON", json.Unmarshal)
}

// LoadFromTOML loads configuration from a TOML file.
func LoadFromTOML(path string) (*pkgconfig.Config, error) {
	return load(path, "TOML", toml.Unmarshal)
}

func load(path, format string, unmarshal func([]byte, any) error) (*pkgconfig.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg pkgconfig.Config
	if err := unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", format, err)
	}

	return processConfig(&cfg)
}

// processConfig applies environment overrides and defaults, then validates
// the configuration and canonicalizes contract addresses.
func processConfig(cfg *pkgconfig.Config) (*pkgconfig.Config, error) {
	applyEnv(cfg)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := normalizeContracts(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *pkgconfig.Config) {
	if path, ok := os.LookupEnv(EnvDatabasePath); ok && path != "" {
		cfg.Database.Path = path
	}
	for i := range cfg.Chains {
		if url, ok := os.LookupEnv(ChainRPCEnv(cfg.Chains[i].ChainID)); ok {
			cfg.Chains[i].RPCURL = url
		}
	}
}

// normalizeContracts rewrites every contract address in checksum form. Event
// routing and entity keys compare addresses, so one address configured under
// two names on the same chain is rejected.
func normalizeContracts(cfg *pkgconfig.Config) error {
	for i := range cfg.Chains {
		chain := &cfg.Chains[i]
		seen := make(map[common.Address]string, len(chain.Contracts))

		for j := range chain.Contracts {
			contract := &chain.Contracts[j]
			if !common.IsHexAddress(contract.Address) {
				return fmt.Errorf("chains[%d] (%d), contract %s: invalid address %q",
					i, chain.ChainID, contract.Name, contract.Address)
			}
			addr := common.HexToAddress(contract.Address)
			if addr == (common.Address{}) {
				return fmt.Errorf("chains[%d] (%d), contract %s: zero address", i, chain.ChainID, contract.Name)
			}
			if other, dup := seen[addr]; dup {
				return fmt.Errorf("chains[%d] (%d), contract %s: address %s already used by %s",
					i, chain.ChainID, contract.Name, addr.Hex(), other)
			}
			seen[addr] = contract.Name
			contract.Address = addr.Hex()
		}
	}
	return nil
}

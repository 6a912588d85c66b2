package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/internal/common"
)

// Contract kinds understood by the projector.
const (
	ContractKindDepositPool = "deposit_pool"
	ContractKindBuilders    = "builders"
	ContractKindToken       = "token"
	ContractKindTreasury    = "treasury"
	ContractKindFactory     = "factory"
)

// Policies applied when a withdraw or claim references an entity that does not exist.
const (
	MissingEntityStrict   = "strict"
	MissingEntityDegraded = "degraded"
)

// ValidContractKinds lists every accepted contract kind.
var ValidContractKinds = []string{
	ContractKindDepositPool,
	ContractKindBuilders,
	ContractKindToken,
	ContractKindTreasury,
	ContractKindFactory,
}

// Config represents the complete configuration of the staking indexer.
type Config struct {
	// Database contains the SQLite configuration shared by every chain
	Database DatabaseConfig `yaml:"database" json:"database" toml:"database"`

	// Maintenance contains optional database maintenance settings
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`

	// Chains contains one entry per indexed chain
	Chains []ChainConfig `yaml:"chains" json:"chains" toml:"chains"`

	// Projector controls event projection policies
	Projector ProjectorConfig `yaml:"projector" json:"projector" toml:"projector"`

	// BalanceReader configures on-chain state reads used as ground truth
	BalanceReader BalanceReaderConfig `yaml:"balance_reader" json:"balance_reader" toml:"balance_reader"`

	// Audit configures the periodic global counter audit
	Audit *AuditConfig `yaml:"audit,omitempty" json:"audit,omitempty" toml:"audit,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// API contains the query API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`
}

// ChainConfig describes a single chain and the contracts indexed on it.
type ChainConfig struct {
	// ChainID is the EIP-155 chain id; it is part of every entity key
	ChainID uint64 `yaml:"chain_id" json:"chain_id" toml:"chain_id"`

	// Name is a human readable chain name (e.g. "arbitrum")
	Name string `yaml:"name" json:"name" toml:"name"`

	// RPCURL is the JSON-RPC endpoint used for ground-truth contract reads.
	// Without it every balance read falls back to event amounts.
	RPCURL string `yaml:"rpc_url,omitempty" json:"rpc_url,omitempty" toml:"rpc_url,omitempty"`

	// StartBlock is the first block the chain follower delivers
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// ReadinessLag is the number of blocks behind head still considered ready
	ReadinessLag uint64 `yaml:"readiness_lag" json:"readiness_lag" toml:"readiness_lag"`

	// QueueSize is the number of pending events buffered per chain worker
	QueueSize int `yaml:"queue_size" json:"queue_size" toml:"queue_size"`

	// HeadPollInterval is how often the chain head is read for readiness (requires rpc_url)
	HeadPollInterval common.Duration `yaml:"head_poll_interval" json:"head_poll_interval" toml:"head_poll_interval"`

	// Contracts contains the list of contracts indexed on this chain
	Contracts []ContractConfig `yaml:"contracts" json:"contracts" toml:"contracts"`
}

// ApplyDefaults sets default values for optional chain configuration fields.
func (c *ChainConfig) ApplyDefaults() {
	if c.ReadinessLag == 0 {
		c.ReadinessLag = 10
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	if c.HeadPollInterval.Duration == 0 {
		c.HeadPollInterval = common.NewDuration(12 * time.Second) //nolint:mnd
	}
	for i := range c.Contracts {
		c.Contracts[i].ApplyDefaults()
	}
}

// ContractConfig represents one contract instance. Contracts of the same kind share a
// single handler; only the name, address and token decimals differ.
type ContractConfig struct {
	// Name identifies the contract in delivered events (e.g. "DepositPoolStETH")
	Name string `yaml:"name" json:"name" toml:"name"`

	// Kind selects the handler: deposit_pool, builders, token, treasury or factory
	Kind string `yaml:"kind" json:"kind" toml:"kind"`

	// Address is the contract address
	Address string `yaml:"address" json:"address" toml:"address"`

	// Decimals of the staked or transferred token, used for display only
	Decimals int32 `yaml:"decimals" json:"decimals" toml:"decimals"`
}

// ApplyDefaults sets default values for optional contract configuration fields.
func (c *ContractConfig) ApplyDefaults() {
	if c.Decimals == 0 {
		c.Decimals = 18
	}
}

// ProjectorConfig controls the projection of events into aggregates.
type ProjectorConfig struct {
	// MissingEntityPolicy is "strict" (fail the event) or "degraded"
	// (synthesize a zero-state entity and log a warning)
	MissingEntityPolicy string `yaml:"missing_entity_policy" json:"missing_entity_policy" toml:"missing_entity_policy"`
}

// ApplyDefaults sets default values for the projector configuration.
func (p *ProjectorConfig) ApplyDefaults() {
	if p.MissingEntityPolicy == "" {
		p.MissingEntityPolicy = MissingEntityStrict
	}
}

// Validate checks if the projector configuration is valid.
func (p *ProjectorConfig) Validate() error {
	if p.MissingEntityPolicy != MissingEntityStrict && p.MissingEntityPolicy != MissingEntityDegraded {
		return fmt.Errorf("projector.missing_entity_policy: must be one of: strict, degraded")
	}
	return nil
}

// BalanceReaderConfig configures ground-truth contract reads.
type BalanceReaderConfig struct {
	// Retry contains retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// CacheSize is the maximum number of cached contract reads
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// CacheTTL is how long a cached read stays valid
	CacheTTL common.Duration `yaml:"cache_ttl" json:"cache_ttl" toml:"cache_ttl"`

	// RequestsPerSecond throttles contract reads per chain (0 = unlimited)
	RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second" toml:"requests_per_second"`

	// CallTimeout bounds a single eth_call
	CallTimeout common.Duration `yaml:"call_timeout" json:"call_timeout" toml:"call_timeout"`
}

// ApplyDefaults sets default values for the balance reader configuration.
func (b *BalanceReaderConfig) ApplyDefaults() {
	if b.Retry == nil {
		b.Retry = &RetryConfig{}
	}
	b.Retry.ApplyDefaults()

	if b.CacheSize == 0 {
		b.CacheSize = 4096
	}
	if b.CacheTTL.Duration == 0 {
		b.CacheTTL = common.NewDuration(5 * time.Minute) //nolint:mnd
	}
	if b.CallTimeout.Duration == 0 {
		b.CallTimeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
}

// Validate checks if the balance reader configuration is valid.
func (b *BalanceReaderConfig) Validate() error {
	if b.CacheSize < 0 {
		return fmt.Errorf("balance_reader.cache_size: must be non-negative")
	}
	if b.RequestsPerSecond < 0 {
		return fmt.Errorf("balance_reader.requests_per_second: must be non-negative")
	}
	if b.Retry != nil && b.Retry.MaxAttempts < 1 {
		return fmt.Errorf("balance_reader.retry.max_attempts: must be at least 1")
	}
	return nil
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	validJournalModes := []string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}
	if d.JournalMode != "" && !slices.Contains(validJournalModes, d.JournalMode) {
		return fmt.Errorf("database.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	validSync := []string{"FULL", "NORMAL", "OFF"}
	if d.Synchronous != "" && !slices.Contains(validSync, d.Synchronous) {
		return fmt.Errorf("database.synchronous must be one of: FULL, NORMAL, OFF")
	}

	return nil
}

// MaintenanceConfig configures database maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval common.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if m.WALCheckpointMode != "" {
		validModes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
		if !slices.Contains(validModes, m.WALCheckpointMode) {
			return fmt.Errorf("maintenance.wal_checkpoint_mode: must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
		}
	}

	return nil
}

// AuditConfig configures the periodic global counter audit.
type AuditConfig struct {
	// Enabled controls whether the audit scheduler runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// Schedule is a cron expression with an optional seconds field
	Schedule string `yaml:"schedule" json:"schedule" toml:"schedule"`

	// Workers is the number of concurrent pool conservation checks
	Workers int `yaml:"workers" json:"workers" toml:"workers"`
}

// ApplyDefaults sets default values for the audit configuration.
func (a *AuditConfig) ApplyDefaults() {
	if a.Schedule == "" {
		a.Schedule = "0 */5 * * * *"
	}
	if a.Workers == 0 {
		a.Workers = 4
	}
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - projector: Event projection
	//   - reorg-handler: Rollback and aggregate recomputation
	//   - balance-reader: Ground-truth contract reads
	//   - coordinator: Per-chain workers
	//   - counters: Global counters and audit
	//   - store: Aggregate store
	//   - api: Query API
	//   - maintenance: Database maintenance
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := common.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := common.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return common.ToLowerWithTrim(level)
	}
	return l.GetDefaultLevel()
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	if l.DefaultLevel == "" {
		return "info"
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// APIConfig configures the query API server.
type APIConfig struct {
	// Enabled controls whether the API server runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout, WriteTimeout and IdleTimeout configure the HTTP server
	ReadTimeout  common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout  common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// Ingestion enables the POST endpoints used by an external chain follower
	Ingestion bool `yaml:"ingestion" json:"ingestion" toml:"ingestion"`

	// CORS configures cross-origin requests
	CORS CORSConfig `yaml:"cors" json:"cors" toml:"cors"`
}

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	if a.CORS.Enabled && len(a.CORS.AllowedOrigins) == 0 {
		a.CORS.AllowedOrigins = []string{"*"}
	}
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Database.ApplyDefaults()

	if c.Maintenance != nil {
		c.Maintenance.ApplyDefaults()
	}

	for i := range c.Chains {
		c.Chains[i].ApplyDefaults()
	}

	c.Projector.ApplyDefaults()
	c.BalanceReader.ApplyDefaults()

	if c.Audit != nil {
		c.Audit.ApplyDefaults()
	}

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}

	if c.API != nil {
		c.API.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}

	if c.Maintenance != nil {
		if err := c.Maintenance.Validate(); err != nil {
			return err
		}
	}

	if err := c.Projector.Validate(); err != nil {
		return err
	}

	if err := c.BalanceReader.Validate(); err != nil {
		return err
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}

	chainIDs := make(map[uint64]bool)
	for i, chain := range c.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("chains[%d]: chain_id is required", i)
		}
		if chainIDs[chain.ChainID] {
			return fmt.Errorf("chains[%d]: duplicate chain_id %d", i, chain.ChainID)
		}
		chainIDs[chain.ChainID] = true

		if len(chain.Contracts) == 0 {
			return fmt.Errorf("chains[%d] (%d): at least one contract must be configured", i, chain.ChainID)
		}

		names := make(map[string]bool)
		for j, contract := range chain.Contracts {
			if contract.Name == "" {
				return fmt.Errorf("chains[%d] (%d), contract[%d]: name is required", i, chain.ChainID, j)
			}
			if names[contract.Name] {
				return fmt.Errorf("chains[%d] (%d), contract[%d]: duplicate contract name '%s'",
					i, chain.ChainID, j, contract.Name)
			}
			names[contract.Name] = true

			if !slices.Contains(ValidContractKinds, contract.Kind) {
				return fmt.Errorf("chains[%d] (%d), contract %s: kind must be one of: %v",
					i, chain.ChainID, contract.Name, ValidContractKinds)
			}
		}
	}

	return nil
}

// FindChain returns the configuration of the given chain, or nil.
func (c *Config) FindChain(chainID uint64) *ChainConfig {
	for i := range c.Chains {
		if c.Chains[i].ChainID == chainID {
			return &c.Chains[i]
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/zkrollup-network/batch-submitter/x/batch"
	"github.com/zkrollup-network/batch-submitter/x/da"
)

// Config holds the complete application configuration
type Config struct {
	Network      NetworkConfig      `mapstructure:"network"      yaml:"network"`
	Contracts    ContractsConfig    `mapstructure:"contracts"    yaml:"contracts"`
	DA           DAConfig           `mapstructure:"da"           yaml:"da"`
	Prover       ProverConfig       `mapstructure:"prover"       yaml:"prover"`
	Fees         FeesConfig         `mapstructure:"fees"         yaml:"fees"`
	Resilience   ResilienceConfig   `mapstructure:"resilience"   yaml:"resilience"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	API          APIServerConfig    `mapstructure:"api"          yaml:"api"`
	Metrics      MetricsConfig      `mapstructure:"metrics"      yaml:"metrics"`
	Log          LogConfig          `mapstructure:"log"          yaml:"log"`
	Batch        SeedConfig         `mapstructure:"batch"        yaml:"batch"`

	// Secrets come from the environment only, never from the YAML file.
	DatabaseURL string `mapstructure:"-" yaml:"-"`
	PrivateKey  string `mapstructure:"-" yaml:"-"`
}

// NetworkConfig holds L1 connectivity configuration
type NetworkConfig struct {
	RPCURL  string `mapstructure:"rpc_url"  yaml:"rpc_url"  env:"NETWORK_RPC_URL"`
	ChainID uint64 `mapstructure:"chain_id" yaml:"chain_id" env:"NETWORK_CHAIN_ID"`
}

// ContractsConfig holds on-chain addresses
type ContractsConfig struct {
	Bridge string `mapstructure:"bridge" yaml:"bridge" env:"CONTRACTS_BRIDGE"`
}

// DAConfig selects the data availability strategy
type DAConfig struct {
	Mode        string `mapstructure:"mode"         yaml:"mode"         env:"DA_MODE"`
	BlobBinding string `mapstructure:"blob_binding" yaml:"blob_binding" env:"DA_BLOB_BINDING"`
	BlobIndex   uint8  `mapstructure:"blob_index"   yaml:"blob_index"   env:"DA_BLOB_INDEX"`
	ArchiverURL string `mapstructure:"archiver_url" yaml:"archiver_url" env:"DA_ARCHIVER_URL"`
}

// ProverConfig holds the proving service configuration. An empty URL selects
// the built-in mock prover.
type ProverConfig struct {
	URL string `mapstructure:"url" yaml:"url" env:"PROVER_URL"`
}

// FeesConfig tunes gas and fee selection
type FeesConfig struct {
	Policy            string `mapstructure:"policy"               yaml:"policy"               env:"FEES_POLICY"`
	FixedTipGwei      uint64 `mapstructure:"fixed_tip_gwei"       yaml:"fixed_tip_gwei"       env:"FEES_FIXED_TIP_GWEI"`
	GasLimitBufferPct uint64 `mapstructure:"gas_limit_buffer_pct" yaml:"gas_limit_buffer_pct" env:"FEES_GAS_LIMIT_BUFFER_PCT"`
	MaxBlobFeeGwei    uint64 `mapstructure:"max_blob_fee_gwei"    yaml:"max_blob_fee_gwei"    env:"FEES_MAX_BLOB_FEE_GWEI"`
}

// ResilienceConfig tunes retries, backoff and the prover circuit breaker
type ResilienceConfig struct {
	MaxRetries              uint32 `mapstructure:"max_retries"               yaml:"max_retries"`
	CircuitBreakerThreshold uint32 `mapstructure:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold"`
	Confirmations           uint64 `mapstructure:"confirmations"             yaml:"confirmations"`
	BaseBackoffMs           uint64 `mapstructure:"base_backoff_ms"           yaml:"base_backoff_ms"`
	MaxBackoffMs            uint64 `mapstructure:"max_backoff_ms"            yaml:"max_backoff_ms"`
	BreakerCooldownMs       uint64 `mapstructure:"breaker_cooldown_ms"       yaml:"breaker_cooldown_ms"`
}

// OrchestratorConfig tunes the saga loop
type OrchestratorConfig struct {
	TickMs          uint32 `mapstructure:"tick_ms"           yaml:"tick_ms"`
	MaxConcurrency  int    `mapstructure:"max_concurrency"   yaml:"max_concurrency"`
	ScanLimit       int    `mapstructure:"scan_limit"        yaml:"scan_limit"`
	ShutdownGraceMs uint64 `mapstructure:"shutdown_grace_ms" yaml:"shutdown_grace_ms"`
}

// APIServerConfig holds HTTP API server configuration
type APIServerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    yaml:"max_header_bytes"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Port    int    `mapstructure:"port"    yaml:"port"    env:"METRICS_PORT"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// SeedConfig describes the single batch the app ingests on startup when the
// pipeline is empty. All fields empty means no seeding.
type SeedConfig struct {
	DataFile          string `mapstructure:"data_file"           yaml:"data_file"`
	NewRoot           string `mapstructure:"new_root"            yaml:"new_root"`
	BlobVersionedHash string `mapstructure:"blob_versioned_hash" yaml:"blob_versioned_hash"`
}

// Enabled reports whether a seed batch is configured.
func (s SeedConfig) Enabled() bool {
	return strings.TrimSpace(s.DataFile) != ""
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.PrivateKey = strings.TrimSpace(os.Getenv("SUBMITTER_PRIVATE_KEY"))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("network.rpc_url", "")
	v.SetDefault("network.chain_id", 0)

	v.SetDefault("contracts.bridge", "")

	v.SetDefault("da.mode", "calldata")
	v.SetDefault("da.blob_binding", "opcode")
	v.SetDefault("da.blob_index", 0)
	v.SetDefault("da.archiver_url", "")

	v.SetDefault("prover.url", "")

	v.SetDefault("fees.policy", "standard")
	v.SetDefault("fees.fixed_tip_gwei", 2)
	v.SetDefault("fees.gas_limit_buffer_pct", 20)
	v.SetDefault("fees.max_blob_fee_gwei", 100)

	v.SetDefault("resilience.max_retries", 5)
	v.SetDefault("resilience.circuit_breaker_threshold", 5)
	v.SetDefault("resilience.confirmations", 1)
	v.SetDefault("resilience.base_backoff_ms", 1000)
	v.SetDefault("resilience.max_backoff_ms", 60000)
	v.SetDefault("resilience.breaker_cooldown_ms", 30000)

	v.SetDefault("orchestrator.tick_ms", 5000)
	v.SetDefault("orchestrator.max_concurrency", 8)
	v.SetDefault("orchestrator.scan_limit", 50)
	v.SetDefault("orchestrator.shutdown_grace_ms", 30000)

	// API defaults (separate HTTP API server)
	v.SetDefault("api.listen_addr", ":8081")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 8081)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("batch.data_file", "")
	v.SetDefault("batch.new_root", "")
	v.SetDefault("batch.blob_versioned_hash", "")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateNetwork(); err != nil {
		return err
	}
	if err := c.validateDA(); err != nil {
		return err
	}
	if err := c.validateFees(); err != nil {
		return err
	}
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	if err := c.validateSecrets(); err != nil {
		return err
	}
	return c.validateSeed()
}

func (c *Config) validateNetwork() error {
	if strings.TrimSpace(c.Network.RPCURL) == "" {
		return fmt.Errorf("network.rpc_url is required")
	}
	if c.Network.ChainID == 0 {
		return fmt.Errorf("network.chain_id must be positive")
	}
	if !common.IsHexAddress(c.Contracts.Bridge) {
		return fmt.Errorf("contracts.bridge is not a valid address: %q", c.Contracts.Bridge)
	}
	return nil
}

func (c *Config) validateDA() error {
	if !batch.DAMode(c.DA.Mode).Valid() {
		return fmt.Errorf("da.mode must be calldata or blob, got %q", c.DA.Mode)
	}
	switch c.DA.BlobBinding {
	case "mock", "opcode":
	default:
		return fmt.Errorf("da.blob_binding must be mock or opcode, got %q", c.DA.BlobBinding)
	}
	return nil
}

func (c *Config) validateFees() error {
	if !da.FeePolicy(c.Fees.Policy).Valid() {
		return fmt.Errorf("fees.policy must be standard, aggressive or fixed, got %q", c.Fees.Policy)
	}
	return nil
}

func (c *Config) validateOrchestrator() error {
	if c.Orchestrator.TickMs == 0 {
		return fmt.Errorf("orchestrator.tick_ms must be positive")
	}
	if c.Orchestrator.MaxConcurrency <= 0 {
		return fmt.Errorf("orchestrator.max_concurrency must be positive, got %d", c.Orchestrator.MaxConcurrency)
	}
	if c.Orchestrator.ScanLimit <= 0 {
		return fmt.Errorf("orchestrator.scan_limit must be positive, got %d", c.Orchestrator.ScanLimit)
	}
	return nil
}

func (c *Config) validateSecrets() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("SUBMITTER_PRIVATE_KEY environment variable is required")
	}
	return nil
}

func (c *Config) validateSeed() error {
	if !c.Batch.Enabled() {
		return nil
	}
	root := strings.TrimSpace(c.Batch.NewRoot)
	if root == "" {
		return fmt.Errorf("batch.new_root is required when batch.data_file is set")
	}
	if raw := common.FromHex(root); len(raw) != common.HashLength {
		return fmt.Errorf("batch.new_root must be a 32-byte hex value, got %q", root)
	}
	if vh := strings.TrimSpace(c.Batch.BlobVersionedHash); vh != "" {
		if raw := common.FromHex(vh); len(raw) != common.HashLength {
			return fmt.Errorf("batch.blob_versioned_hash must be a 32-byte hex value, got %q", vh)
		}
	}
	return nil
}

// TickInterval returns the orchestrator loop interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Orchestrator.TickMs) * time.Millisecond
}

// ShutdownGrace returns the drain window for in-flight steps.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Orchestrator.ShutdownGraceMs) * time.Millisecond
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		DA: DAConfig{
			Mode:        "calldata",
			BlobBinding: "opcode",
		},
		Prover: ProverConfig{},
		Fees: FeesConfig{
			Policy:            "standard",
			FixedTipGwei:      2,
			GasLimitBufferPct: 20,
			MaxBlobFeeGwei:    100,
		},
		Resilience: ResilienceConfig{
			MaxRetries:              5,
			CircuitBreakerThreshold: 5,
			Confirmations:           1,
			BaseBackoffMs:           1000,
			MaxBackoffMs:            60000,
			BreakerCooldownMs:       30000,
		},
		Orchestrator: OrchestratorConfig{
			TickMs:          5000,
			MaxConcurrency:  8,
			ScanLimit:       50,
			ShutdownGraceMs: 30000,
		},
		API: APIServerConfig{
			ListenAddr:        ":8081",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    8081,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

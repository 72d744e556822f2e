// Package config loads the daemon's runtime configuration via viper, following the
// teacher's (shared-publisher-leader-app/config/config.go) load/setDefaults/Validate
// recipe: a YAML file overlaid with environment variables, defaults for every field,
// and a post-unmarshal validation pass.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lightclient/bankai/internal/contractclient"
	"github.com/lightclient/bankai/server/api"
)

// Config holds the complete daemon configuration.
type Config struct {
	Beacon    BeaconConfig          `mapstructure:"beacon"    yaml:"beacon"`
	Contract  contractclient.Config `mapstructure:"contract"  yaml:"contract"`
	Prover    ProverConfig          `mapstructure:"prover"    yaml:"prover"`
	Tracegen  TracegenConfig        `mapstructure:"tracegen"  yaml:"tracegen"`
	Store     StoreConfig           `mapstructure:"store"     yaml:"store"`
	API       api.Config            `mapstructure:"api"       yaml:"api"`
	Metrics   MetricsConfig         `mapstructure:"metrics"   yaml:"metrics"`
	Log       LogConfig             `mapstructure:"log"       yaml:"log"`
	Scheduler SchedulerConfig       `mapstructure:"scheduler" yaml:"scheduler"`
}

// BeaconConfig holds beacon-node RPC/SSE client configuration.
type BeaconConfig struct {
	BaseURL           string        `mapstructure:"base_url"            yaml:"base_url"            env:"BEACON_BASE_URL"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"     yaml:"request_timeout"`
	HeadEventCapacity int           `mapstructure:"head_event_capacity" yaml:"head_event_capacity"`
}

// ProverConfig holds the external off-chain prover's HTTP client configuration.
type ProverConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url" env:"PROVER_BASE_URL"`

	// VerifierProgram identifies the wrapping verifier program passed to the prover's
	// wrap-submission endpoint (spec §6.3); one per daemon deployment.
	VerifierProgram string `mapstructure:"verifier_program" yaml:"verifier_program"`
}

// TracegenConfig holds the external Cairo trace-generation service's client
// configuration.
type TracegenConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url" env:"TRACEGEN_BASE_URL"`
}

// StoreConfig holds the embedded job store's configuration.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path" env:"STORE_PATH"`

	// ArtifactsDir is the root of the deterministic on-disk circuit-input/PIE tree
	// (spec §6.5: batches/committee/committee_{id}/..., batches/epoch_batch/{e0}_to_{e1}/...).
	ArtifactsDir string `mapstructure:"artifacts_dir" yaml:"artifacts_dir" env:"STORE_ARTIFACTS_DIR"`
}

// MetricsConfig holds metrics-endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// SchedulerConfig holds the gating-semaphore sizes spec §5 calls out as
// deployment-tunable (as opposed to the fixed beacon-chain constants in internal/job).
type SchedulerConfig struct {
	MaxConcurrentTraceGenerations int64 `mapstructure:"max_concurrent_trace_generations" yaml:"max_concurrent_trace_generations"`
	MaxConcurrentBeaconRPC        int64 `mapstructure:"max_concurrent_beacon_rpc"        yaml:"max_concurrent_beacon_rpc"`
}

// Load reads configuration from configPath, overlaid with environment variables, and
// validates the result.
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("beacon.base_url", "http://localhost:5052")
	v.SetDefault("beacon.request_timeout", "10s")
	v.SetDefault("beacon.head_event_capacity", 32)

	v.SetDefault("contract.rpc_endpoint", "ws://localhost:8546")
	v.SetDefault("contract.confirmation_delay_seconds", 2)
	v.SetDefault("contract.confirmation_retries", 10)
	v.SetDefault("contract.use_eip1559", true)
	v.SetDefault("contract.gas_limit_buffer_pct", 15)

	v.SetDefault("prover.base_url", "")
	v.SetDefault("prover.verifier_program", "")

	v.SetDefault("tracegen.base_url", "")

	v.SetDefault("store.path", "bankai.db")
	v.SetDefault("store.artifacts_dir", "batches")

	v.SetDefault("api.listen_addr", ":8081")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("scheduler.max_concurrent_trace_generations", 4)
	v.SetDefault("scheduler.max_concurrent_beacon_rpc", 8)
}

// Default returns a Config populated with the same defaults Load applies, for use in
// tests and for printing a starter config file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: default config fails to unmarshal: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Beacon.BaseURL) == "" {
		return fmt.Errorf("beacon.base_url is required")
	}
	if strings.TrimSpace(c.Contract.RPCEndpoint) == "" {
		return fmt.Errorf("contract.rpc_endpoint is required")
	}
	if strings.TrimSpace(c.Contract.VerifierContract) == "" {
		return fmt.Errorf("contract.verifier_contract is required")
	}
	if strings.TrimSpace(c.Contract.SignerPkHex) == "" {
		return fmt.Errorf("contract.signer_pk_hex is required")
	}
	if strings.TrimSpace(c.Prover.BaseURL) == "" {
		return fmt.Errorf("prover.base_url is required")
	}
	if strings.TrimSpace(c.Prover.VerifierProgram) == "" {
		return fmt.Errorf("prover.verifier_program is required")
	}
	if strings.TrimSpace(c.Tracegen.BaseURL) == "" {
		return fmt.Errorf("tracegen.base_url is required")
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required")
	}
	if strings.TrimSpace(c.Store.ArtifactsDir) == "" {
		return fmt.Errorf("store.artifacts_dir is required")
	}
	if c.Scheduler.MaxConcurrentTraceGenerations <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_trace_generations must be positive")
	}
	if c.Scheduler.MaxConcurrentBeaconRPC <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_beacon_rpc must be positive")
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Path) == "" {
		return fmt.Errorf("metrics.path is required when metrics are enabled")
	}
	return nil
}

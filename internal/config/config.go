// Package config defines service configuration and its layered loading.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"tipscore/internal/domain"
)

// Config contains process configuration.
type Config struct {
	// ListenAddr configures the HTTP listen address, e.g. ":8080".
	ListenAddr string `koanf:"listen_addr"`

	// RPCEndpoint is the chain JSON-RPC HTTP endpoint.
	RPCEndpoint string `koanf:"rpc_endpoint"`

	// WSEndpoint is the chain WebSocket endpoint for live subscriptions.
	// Optional: without it the indexer polls by re-running backfill.
	WSEndpoint string `koanf:"ws_endpoint"`

	// ContractAddress is the tipping contract emitting the events.
	ContractAddress string `koanf:"contract_address"`

	// PostgresDSN is the primary store. Empty with UseMemory unset is an
	// error.
	PostgresDSN string `koanf:"postgres_dsn"`

	// ClickhouseDSN enables the analytics archive. Optional.
	ClickhouseDSN string `koanf:"clickhouse_dsn"`

	// UseMemory switches all stores to in-memory implementations.
	UseMemory bool `koanf:"use_memory"`

	// AdminKey guards the admin endpoints. Empty disables them.
	AdminKey string `koanf:"admin_key"`

	// GenesisBlock is where indexing starts on first run.
	GenesisBlock uint64 `koanf:"genesis_block"`

	// ChunkSize is the backfill block-range size per request.
	ChunkSize uint64 `koanf:"chunk_size"`

	// Confirmations is how many blocks behind head are treated as settled.
	Confirmations uint64 `koanf:"confirmations"`

	// RPCTimeout bounds individual JSON-RPC calls.
	RPCTimeout time.Duration `koanf:"rpc_timeout"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		ListenAddr:      ":8080",
		ChunkSize:       2000,
		Confirmations:   12,
		RPCTimeout:      30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults
//  2. file (YAML) if TIPSCORE_CONFIG is set
//  3. env (prefix TIPSCORE_)
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("TIPSCORE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: TIPSCORE_LISTEN_ADDR, TIPSCORE_POSTGRES_DSN, ...
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("TIPSCORE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "tipscore_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		return errors.New("postgres_dsn is required unless use_memory is set")
	}
	if c.RPCEndpoint != "" && !domain.ValidAddress(domain.NormalizeAddress(c.ContractAddress)) {
		return errors.New("contract_address must be a 0x-prefixed 20-byte hex address")
	}
	if c.ChunkSize == 0 {
		return errors.New("chunk_size must be positive")
	}
	return nil
}

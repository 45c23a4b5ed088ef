// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	pstrings "creditmint/pkg/platform/strings"
)

// Config is the full service configuration. It is loaded once in main and passed down.
type Config struct {
	Server  Server
	Chain   Chain
	Mint    Mint
	Sim     Simulation
	Redis   RedisConfig
	Kafka   KafkaConfig
	Log     Log
	Tracing Tracing
}

// Server captures HTTP server level configuration.
type Server struct {
	Port              string        `env:"PORT" envDefault:"8080"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// MintSigningKey, when set, requires an HS256 bearer token on the mint endpoint.
	MintSigningKey string `env:"MINT_API_SIGNING_KEY"`
}

// Addr is the listen address.
func (s Server) Addr() string {
	return ":" + s.Port
}

// Chain selects and addresses the ledger.
type Chain struct {
	// NodeURL is an Ethereum JSON-RPC endpoint. Empty runs the in-process simulated ledger.
	NodeURL         string `env:"ETH_NODE_URL"`
	PrivateKey      string `env:"PRIVATE_KEY"`
	ContractAddress string `env:"CONTRACT_ADDRESS"`
}

// Simulated reports whether the in-process ledger is used.
func (c Chain) Simulated() bool {
	return c.NodeURL == ""
}

// Mint tunes the transaction coordinator.
type Mint struct {
	TokenDecimals  uint8         `env:"TOKEN_DECIMALS" envDefault:"18"`
	GasLimit       uint64        `env:"GAS_LIMIT" envDefault:"300000"`
	PollInterval   time.Duration `env:"CONFIRM_POLL_INTERVAL" envDefault:"5s"`
	ConfirmTimeout time.Duration `env:"CONFIRM_TIMEOUT" envDefault:"5m"`
	SubmitTimeout  time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"30s"`
}

// Simulation configures the in-process ledger.
type Simulation struct {
	BlockInterval time.Duration `env:"SIM_BLOCK_INTERVAL" envDefault:"2s"`
	// InitialSupply is in whole tokens and is credited to the owner at deployment.
	InitialSupply int64    `env:"SIM_INITIAL_SUPPLY" envDefault:"0"`
	Minters       []string `env:"SIM_MINTERS" envSeparator:","`
	NetworkID     int64    `env:"SIM_NETWORK_ID" envDefault:"1337"`
}

// MinLockTTL leaves a held lock at least one renewal attempt before it could expire.
const MinLockTTL = 3 * time.Second

// RedisConfig enables the distributed submission lock when URL is set. Held locks are
// renewed every LockTTL/3, so LockTTL only bounds how long a crashed holder blocks others.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	LockTTL      time.Duration `env:"REDIS_LOCK_TTL" envDefault:"60s"`
}

// KafkaConfig enables the Kafka notification sink when Brokers is set.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"creditmint.ledger-events"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Tracing enables OTLP export when Endpoint is set.
type Tracing struct {
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"creditmint"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the full configuration.
func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.Kafka.Brokers = pstrings.DedupeAndTrim(cfg.Kafka.Brokers)
	cfg.Sim.Minters = pstrings.DedupeBy(cfg.Sim.Minters, strings.ToLower)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if !c.Chain.Simulated() {
		if c.Chain.PrivateKey == "" {
			errs = append(errs, errors.New("PRIVATE_KEY is required with ETH_NODE_URL"))
		}
		if c.Chain.ContractAddress == "" {
			errs = append(errs, errors.New("CONTRACT_ADDRESS is required with ETH_NODE_URL"))
		}
	}
	if c.Mint.PollInterval <= 0 {
		errs = append(errs, errors.New("CONFIRM_POLL_INTERVAL must be positive"))
	}
	if c.Mint.ConfirmTimeout < c.Mint.PollInterval {
		errs = append(errs, errors.New("CONFIRM_TIMEOUT must not be shorter than CONFIRM_POLL_INTERVAL"))
	}
	if c.Mint.SubmitTimeout <= 0 {
		errs = append(errs, errors.New("SUBMIT_TIMEOUT must be positive"))
	}
	if c.Mint.TokenDecimals > 77 {
		errs = append(errs, errors.New("TOKEN_DECIMALS must be at most 77"))
	}
	if c.Chain.Simulated() && c.Sim.BlockInterval <= 0 {
		errs = append(errs, errors.New("SIM_BLOCK_INTERVAL must be positive"))
	}
	if c.Redis.URL != "" && c.Redis.LockTTL < MinLockTTL {
		errs = append(errs, fmt.Errorf("REDIS_LOCK_TTL must be at least %s", MinLockTTL))
	}
	if c.Sim.InitialSupply < 0 {
		errs = append(errs, errors.New("SIM_INITIAL_SUPPLY must not be negative"))
	}
	return errors.Join(errs...)
}

// Package config loads relay configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/R3E-Network/relay_layer/internal/ledger"
	"github.com/R3E-Network/relay_layer/internal/replay"
)

// Config is the full relay configuration.
type Config struct {
	Ledger LedgerConfig
	Relay  RelayConfig

	DegradeAfter int `env:"DEGRADE_AFTER,default=2"`

	RedisURL       string        `env:"REDIS_URL"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	AuditRetention time.Duration `env:"AUDIT_RETENTION,default=720h"`

	KeyDirectoryFile string        `env:"KEY_DIRECTORY_FILE"`
	KeyCacheTTL      time.Duration `env:"KEY_CACHE_TTL,default=5m"`

	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`
	AdminJWTIssuer string `env:"ADMIN_JWT_ISSUER"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// LedgerConfig holds the ledger client settings.
type LedgerConfig struct {
	Network         string        `env:"LEDGER_NETWORK,default=testnet"`
	OperatorID      string        `env:"LEDGER_OPERATOR_ID"`
	OperatorKey     string        `env:"LEDGER_OPERATOR_KEY"`
	RPCURL          string        `env:"LEDGER_RPC_URL"`
	MirrorURL       string        `env:"LEDGER_MIRROR_URL"`
	MaxTxFee        int64         `env:"LEDGER_MAX_TX_FEE"`
	MaxQueryPayment int64         `env:"LEDGER_MAX_QUERY_PAYMENT"`
	DefaultGas      uint64        `env:"LEDGER_DEFAULT_GAS"`
	Timeout         time.Duration `env:"LEDGER_RPC_TIMEOUT,default=30s"`
}

// RelayConfig holds the HTTP relay settings.
type RelayConfig struct {
	ListenAddr     string        `env:"RELAY_LISTEN_ADDR,default=:8080"`
	MaxAge         time.Duration `env:"RELAY_MAX_AGE,default=5m"`
	FutureSkew     time.Duration `env:"RELAY_FUTURE_SKEW,default=5s"`
	RequestTimeout time.Duration `env:"RELAY_REQUEST_TIMEOUT,default=90s"`
	Dedupe         bool          `env:"RELAY_DEDUPE,default=true"`
	RateLimitRPS   float64       `env:"RELAY_RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int           `env:"RELAY_RATE_LIMIT_BURST,default=40"`
	CORSOrigins    string        `env:"RELAY_CORS_ORIGINS"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv decodes the process environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that do not belong to a single component.
// Ledger credentials are checked by ledger.New.
func (c *Config) Validate() error {
	if _, ok := ledger.PresetFor(ledger.Network(c.Ledger.Network)); !ok {
		return &ledger.ConfigurationError{Field: "LEDGER_NETWORK", Reason: fmt.Sprintf("unknown network %q", c.Ledger.Network)}
	}
	if c.Relay.MaxAge <= 0 {
		return fmt.Errorf("RELAY_MAX_AGE must be positive")
	}
	if c.Relay.FutureSkew < 0 {
		return fmt.Errorf("RELAY_FUTURE_SKEW must not be negative")
	}
	if c.Relay.RequestTimeout <= 0 {
		return fmt.Errorf("RELAY_REQUEST_TIMEOUT must be positive")
	}
	if c.DegradeAfter < 1 {
		return fmt.Errorf("DEGRADE_AFTER must be at least 1")
	}
	if c.Relay.RateLimitRPS < 0 {
		return fmt.Errorf("RELAY_RATE_LIMIT_RPS must not be negative")
	}
	return nil
}

// LedgerClientConfig maps the ledger section onto ledger.Config.
func (c *Config) LedgerClientConfig() ledger.Config {
	return ledger.Config{
		Network:           ledger.Network(c.Ledger.Network),
		OperatorID:        c.Ledger.OperatorID,
		OperatorKey:       c.Ledger.OperatorKey,
		RPCURL:            c.Ledger.RPCURL,
		MirrorURL:         c.Ledger.MirrorURL,
		MaxTransactionFee: c.Ledger.MaxTxFee,
		MaxQueryPayment:   c.Ledger.MaxQueryPayment,
		DefaultGas:        c.Ledger.DefaultGas,
		Timeout:           c.Ledger.Timeout,
	}
}

// ReplayWindow returns the configured freshness window.
func (c *Config) ReplayWindow() replay.Window {
	return replay.Window{MaxAge: c.Relay.MaxAge, FutureSkew: c.Relay.FutureSkew}
}

// MirrorURL is the explicit mirror URL, or the network preset's.
func (c *Config) MirrorURL() string {
	if c.Ledger.MirrorURL != "" {
		return c.Ledger.MirrorURL
	}
	p, _ := ledger.PresetFor(ledger.Network(c.Ledger.Network))
	return p.MirrorURL
}

// CORSOrigins splits RELAY_CORS_ORIGINS on commas.
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.Relay.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

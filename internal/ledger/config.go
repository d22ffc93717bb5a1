package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"

	"github.com/R3E-Network/relay_layer/internal/entityid"
	"github.com/R3E-Network/relay_layer/internal/errors"
	"github.com/R3E-Network/relay_layer/pkg/signature"
)

// Network names a ledger deployment.
type Network string

const (
	Mainnet    Network = "mainnet"
	Testnet    Network = "testnet"
	Previewnet Network = "previewnet"
	Local      Network = "local"
)

// Preset holds per-network defaults.
type Preset struct {
	RPCURL            string
	MirrorURL         string
	MaxTransactionFee int64
	MaxQueryPayment   int64
}

var presets = map[Network]Preset{
	Mainnet: {
		MirrorURL:         "https://mainnet-public.mirrornode.hedera.com",
		MaxTransactionFee: 200_000_000,
		MaxQueryPayment:   100_000_000,
	},
	Testnet: {
		MirrorURL:         "https://testnet.mirrornode.hedera.com",
		MaxTransactionFee: 500_000_000,
		MaxQueryPayment:   200_000_000,
	},
	Previewnet: {
		MirrorURL:         "https://previewnet.mirrornode.hedera.com",
		MaxTransactionFee: 500_000_000,
		MaxQueryPayment:   200_000_000,
	},
	Local: {
		RPCURL:            "http://127.0.0.1:7546",
		MirrorURL:         "http://127.0.0.1:5551",
		MaxTransactionFee: 1_000_000_000,
		MaxQueryPayment:   500_000_000,
	},
}

// PresetFor returns the defaults for n.
func PresetFor(n Network) (Preset, bool) {
	p, ok := presets[n]
	return p, ok
}

const (
	DefaultGas           uint64 = 1_000_000
	DefaultTimeout              = 30 * time.Second
	DefaultValidDuration        = 120 * time.Second
)

// Config configures a Client.
type Config struct {
	Network           Network
	OperatorID        string
	OperatorKey       string
	RPCURL            string
	MirrorURL         string
	MaxTransactionFee int64
	MaxQueryPayment   int64
	DefaultGas        uint64
	Timeout           time.Duration
	ValidDuration     time.Duration
}

// ConfigurationError reports unusable client configuration. It is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ledger configuration: %s: %s", e.Field, e.Reason)
}

// ErrorKind implements errors.Kinded.
func (e *ConfigurationError) ErrorKind() errors.Kind { return errors.KindConfiguration }

// resolved is a validated Config.
type resolved struct {
	Config
	operator    entityid.ID
	operatorKey *keys.PrivateKey
}

func (c Config) resolve() (*resolved, error) {
	if c.Network == "" {
		c.Network = Testnet
	}
	preset, ok := presets[c.Network]
	if !ok {
		return nil, &ConfigurationError{Field: "Network", Reason: fmt.Sprintf("unknown network %q", c.Network)}
	}

	if strings.TrimSpace(c.OperatorID) == "" {
		return nil, &ConfigurationError{Field: "OperatorID", Reason: "required"}
	}
	operator, err := entityid.Parse(c.OperatorID)
	if err != nil || operator.IsAlias() {
		return nil, &ConfigurationError{Field: "OperatorID", Reason: fmt.Sprintf("%q is not an account id", c.OperatorID)}
	}

	if strings.TrimSpace(c.OperatorKey) == "" {
		return nil, &ConfigurationError{Field: "OperatorKey", Reason: "required"}
	}
	key, err := signature.ParsePrivateKey(c.OperatorKey)
	if err != nil {
		return nil, &ConfigurationError{Field: "OperatorKey", Reason: "not a valid private key"}
	}

	if c.RPCURL == "" {
		c.RPCURL = preset.RPCURL
	}
	if c.RPCURL == "" {
		return nil, &ConfigurationError{Field: "RPCURL", Reason: fmt.Sprintf("required for network %s", c.Network)}
	}
	if c.MirrorURL == "" {
		c.MirrorURL = preset.MirrorURL
	}
	if c.MaxTransactionFee == 0 {
		c.MaxTransactionFee = preset.MaxTransactionFee
	}
	if c.MaxQueryPayment == 0 {
		c.MaxQueryPayment = preset.MaxQueryPayment
	}
	if c.MaxTransactionFee < 0 || c.MaxQueryPayment < 0 {
		return nil, &ConfigurationError{Field: "MaxTransactionFee", Reason: "fee ceilings must be positive"}
	}
	if c.DefaultGas == 0 {
		c.DefaultGas = DefaultGas
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ValidDuration <= 0 {
		c.ValidDuration = DefaultValidDuration
	}

	return &resolved{Config: c, operator: operator, operatorKey: key}, nil
}

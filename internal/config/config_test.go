package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/relay_layer/internal/ledger"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("LEDGER_OPERATOR_ID", "0.0.1001")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "testnet", cfg.Ledger.Network)
	assert.Equal(t, "0.0.1001", cfg.Ledger.OperatorID)
	assert.Equal(t, 30*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, ":8080", cfg.Relay.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.Relay.MaxAge)
	assert.Equal(t, 5*time.Second, cfg.Relay.FutureSkew)
	assert.True(t, cfg.Relay.Dedupe)
	assert.Equal(t, 2, cfg.DegradeAfter)
	assert.Equal(t, "https://testnet.mirrornode.hedera.com", cfg.MirrorURL())
	assert.Empty(t, cfg.CORSOrigins())

	w := cfg.ReplayWindow()
	assert.Equal(t, 5*time.Minute, w.MaxAge)
	assert.Equal(t, 5*time.Second, w.FutureSkew)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LEDGER_NETWORK", "local")
	t.Setenv("LEDGER_OPERATOR_ID", "0.0.2")
	t.Setenv("LEDGER_OPERATOR_KEY", "abcd")
	t.Setenv("LEDGER_MAX_TX_FEE", "1500")
	t.Setenv("LEDGER_DEFAULT_GAS", "250000")
	t.Setenv("RELAY_MAX_AGE", "90s")
	t.Setenv("RELAY_DEDUPE", "false")
	t.Setenv("RELAY_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DEGRADE_AFTER", "4")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Relay.MaxAge)
	assert.False(t, cfg.Relay.Dedupe)
	assert.Equal(t, 4, cfg.DegradeAfter)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
	assert.Equal(t, "http://127.0.0.1:5551", cfg.MirrorURL())

	lc := cfg.LedgerClientConfig()
	assert.Equal(t, ledger.Local, lc.Network)
	assert.Equal(t, int64(1500), lc.MaxTransactionFee)
	assert.Equal(t, uint64(250000), lc.DefaultGas)
	assert.Equal(t, "abcd", lc.OperatorKey)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Run("unknown network", func(t *testing.T) {
		t.Setenv("LEDGER_NETWORK", "devnet")
		_, err := FromEnv()
		var cfgErr *ledger.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "LEDGER_NETWORK", cfgErr.Field)
	})
	t.Run("degrade threshold", func(t *testing.T) {
		t.Setenv("DEGRADE_AFTER", "0")
		_, err := FromEnv()
		require.Error(t, err)
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("RELAY_MAX_AGE", "soon")
		_, err := FromEnv()
		require.Error(t, err)
	})
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.env")
	require.NoError(t, os.WriteFile(path, []byte("LEDGER_OPERATOR_ID=0.0.77\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("LEDGER_OPERATOR_ID") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.77", cfg.Ledger.OperatorID)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

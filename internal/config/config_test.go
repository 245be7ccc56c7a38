package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_FullModeRequiresOperatorKey(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "operator")
}

func TestValidate_FullModeHappyPath(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"
	cfg.Operator.PrivateKey = "0xdeadbeef"
	require.NoError(t, cfg.Validate())
}

func TestValidate_TelegramFieldsTogether(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "token"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "telegram")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARKET_MODE", "full")
	t.Setenv("MARKET_CHAIN_RPC_URL", "https://rpc.example.org")
	t.Setenv("MARKET_POSTGRES_PORT", "6543")
	t.Setenv("MARKET_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MARKET_REDIS_TLS_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	require.Equal(t, "full", cfg.Mode)
	require.Equal(t, "https://rpc.example.org", cfg.Chain.RPCURL)
	require.Equal(t, 6543, cfg.Postgres.Port)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.True(t, cfg.Redis.TLSEnabled)
}

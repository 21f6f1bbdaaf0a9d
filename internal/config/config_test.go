package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())

	cfg.Mode = "paper"
	cfg.Postgres = PostgresConfig{}
	cfg.Redis = RedisConfig{}
	assert.NoError(t, cfg.Validate(), "paper mode needs no backing services")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.Market.Admin = ""
	cfg.Market.MinInitialLiquidity = "-5"
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "admin must not be empty")
	assert.Contains(t, err.Error(), "min_initial_liquidity")
	assert.Contains(t, err.Error(), "server: port")
}

func TestValidateChainRequiresKeyMaterial(t *testing.T) {
	cfg := Defaults()
	cfg.Chain.Enabled = true
	cfg.Chain.RPCURL = "https://rpc.example"
	cfg.Chain.TokenAddress = "0xToken"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet")

	cfg.Wallet.PrivateKey = "deadbeef"
	assert.NoError(t, cfg.Validate())
}

func TestMinInitialLiquidityInt(t *testing.T) {
	cfg := Defaults()
	v, err := cfg.MinInitialLiquidityInt()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000), v)

	cfg.Market.MinInitialLiquidity = "zero"
	_, err = cfg.MinInitialLiquidityInt()
	assert.Error(t, err)

	cfg.Market.MinInitialLiquidity = "0"
	_, err = cfg.MinInitialLiquidityInt()
	assert.Error(t, err, "minimum must be strictly positive")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "server"
log_level = "debug"

[market]
admin = "0xAdmin"

[oracle]
max_resolution_delay = "48h"
resolvers = ["0xRita", "0xRob"]

[server]
port = 9100
rate_limit = 60
rate_limit_window = "30s"
`), 0o600))

	t.Setenv("PREDICTPOOL_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("PREDICTPOOL_SERVER_RATE_LIMIT", "10")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0xAdmin", cfg.Market.Admin)
	assert.Equal(t, "pool", cfg.Market.PoolAddress, "unset fields keep defaults")
	assert.Equal(t, 48*time.Hour, cfg.Oracle.MaxResolutionDelay.Duration)
	assert.Equal(t, []string{"0xRita", "0xRob"}, cfg.Oracle.Resolvers)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RateLimitWindow.Duration)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr, "env overrides the default")
	assert.Equal(t, 10, cfg.Server.RateLimit, "env overrides the file")

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

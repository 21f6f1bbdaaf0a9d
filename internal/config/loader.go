package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICTPOOL_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTPOOL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PREDICTPOOL_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PREDICTPOOL_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PREDICTPOOL_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setBool(&cfg.Chain.Enabled, "PREDICTPOOL_CHAIN_ENABLED")
	setStr(&cfg.Chain.RPCURL, "PREDICTPOOL_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "PREDICTPOOL_CHAIN_ID")
	setStr(&cfg.Chain.TokenAddress, "PREDICTPOOL_CHAIN_TOKEN_ADDRESS")

	// ── Market ──
	setStr(&cfg.Market.Admin, "PREDICTPOOL_MARKET_ADMIN")
	setStr(&cfg.Market.PoolAddress, "PREDICTPOOL_MARKET_POOL_ADDRESS")
	setStr(&cfg.Market.MinInitialLiquidity, "PREDICTPOOL_MARKET_MIN_INITIAL_LIQUIDITY")

	// ── Oracle ──
	setStr(&cfg.Oracle.Address, "PREDICTPOOL_ORACLE_ADDRESS")
	setDuration(&cfg.Oracle.MaxResolutionDelay, "PREDICTPOOL_ORACLE_MAX_RESOLUTION_DELAY")
	setDuration(&cfg.Oracle.MaxDisputePeriod, "PREDICTPOOL_ORACLE_MAX_DISPUTE_PERIOD")
	setStringSlice(&cfg.Oracle.Resolvers, "PREDICTPOOL_ORACLE_RESOLVERS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICTPOOL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDICTPOOL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTPOOL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTPOOL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTPOOL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTPOOL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTPOOL_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTPOOL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTPOOL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTPOOL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICTPOOL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTPOOL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTPOOL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTPOOL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTPOOL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTPOOL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDICTPOOL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTPOOL_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTPOOL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTPOOL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTPOOL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTPOOL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTPOOL_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PREDICTPOOL_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PREDICTPOOL_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "PREDICTPOOL_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.LockTTL, "PREDICTPOOL_ARCHIVE_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDICTPOOL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDICTPOOL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTPOOL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "PREDICTPOOL_SERVER_ADMIN_API_KEY")
	setInt(&cfg.Server.RateLimit, "PREDICTPOOL_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "PREDICTPOOL_SERVER_RATE_LIMIT_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICTPOOL_MODE")
	setStr(&cfg.LogLevel, "PREDICTPOOL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

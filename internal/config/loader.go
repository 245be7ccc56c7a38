package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known MARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// --- Chain ---
	setStr(&cfg.Chain.RPCURL, "MARKET_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "MARKET_CHAIN_ID")

	// --- Operator ---
	setStr(&cfg.Operator.Address, "MARKET_OPERATOR_ADDRESS")
	setStr(&cfg.Operator.PrivateKey, "MARKET_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "MARKET_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "MARKET_OPERATOR_KEY_PASSWORD")

	// --- Engine ---
	setStr(&cfg.Engine.EscrowAccount, "MARKET_ENGINE_ESCROW_ACCOUNT")
	setInt(&cfg.Engine.EventJournalSize, "MARKET_ENGINE_EVENT_JOURNAL_SIZE")

	// --- Postgres ---
	setStr(&cfg.Postgres.DSN, "MARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKET_POSTGRES_RUN_MIGRATIONS")

	// --- Redis ---
	setStr(&cfg.Redis.Addr, "MARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKET_REDIS_TLS_ENABLED")

	// --- Server ---
	setBool(&cfg.Server.Enabled, "MARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MARKET_SERVER_API_KEY")

	// --- Notify ---
	setStr(&cfg.Notify.TelegramToken, "MARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKET_NOTIFY_EVENTS")

	// --- Top-level ---
	setStr(&cfg.Mode, "MARKET_MODE")
	setStr(&cfg.LogLevel, "MARKET_LOG_LEVEL")
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

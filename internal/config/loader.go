package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VIMANA_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VIMANA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VIMANA_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "VIMANA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VIMANA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VIMANA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VIMANA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VIMANA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VIMANA_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VIMANA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VIMANA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VIMANA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VIMANA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VIMANA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VIMANA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VIMANA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VIMANA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VIMANA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VIMANA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VIMANA_S3_REGION")
	setStr(&cfg.S3.Bucket, "VIMANA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VIMANA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VIMANA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VIMANA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VIMANA_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VIMANA_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VIMANA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VIMANA_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VIMANA_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "VIMANA_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "VIMANA_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VIMANA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VIMANA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VIMANA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VIMANA_NOTIFY_EVENTS")

	// ── OMS ──
	setStr(&cfg.OMS.BaseURL, "VIMANA_OMS_BASE_URL")
	setStr(&cfg.OMS.APIKey, "VIMANA_OMS_API_KEY")
	setStr(&cfg.OMS.APISecret, "VIMANA_OMS_API_SECRET")
	setStr(&cfg.OMS.SealedSecretPath, "VIMANA_OMS_SEALED_SECRET_PATH")
	setStr(&cfg.OMS.SecretPassword, "VIMANA_OMS_SECRET_PASSWORD")
	setDuration(&cfg.OMS.Timeout, "VIMANA_OMS_TIMEOUT")
	setInt(&cfg.OMS.OrdersPerSecond, "VIMANA_OMS_ORDERS_PER_SECOND")

	// ── Algo ──
	setBool(&cfg.Algo.DryRun, "VIMANA_ALGO_DRY_RUN")
	setInt(&cfg.Algo.MailboxSize, "VIMANA_ALGO_MAILBOX_SIZE")
	setDuration(&cfg.Algo.RetryDelay, "VIMANA_ALGO_RETRY_DELAY")
	setDuration(&cfg.Algo.ConciliationInterval, "VIMANA_ALGO_CONCILIATION_INTERVAL")
	setDuration(&cfg.Algo.LegTTL, "VIMANA_ALGO_LEG_TTL")
	setBool(&cfg.Algo.RestoreOnBoot, "VIMANA_ALGO_RESTORE_ON_BOOT")

	// ── Feed ──
	setStr(&cfg.Feed.GatewayURL, "VIMANA_FEED_GATEWAY_URL")
	setStringSlice(&cfg.Feed.Topics, "VIMANA_FEED_TOPICS")
	setStringSlice(&cfg.Feed.Exchanges, "VIMANA_FEED_EXCHANGES")
	setDuration(&cfg.Feed.ReconnectDelay, "VIMANA_FEED_RECONNECT_DELAY")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "VIMANA_METRICS_ENABLED")

	// ── Top-level ──
	setStr(&cfg.Mode, "VIMANA_MODE")
	setStr(&cfg.LogLevel, "VIMANA_LOG_LEVEL")
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

// Package config defines the top-level configuration of the arbitrage engine
// and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VIMANA_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	OMS      OMSConfig      `toml:"oms"`
	Algo     AlgoConfig     `toml:"algo"`
	Feed     FeedConfig     `toml:"feed"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. An empty bucket
// disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit requests per RateWindow and client. Zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// OMSConfig holds the order gateway endpoint and credentials. The secret is
// given raw or as a file sealed with a password.
type OMSConfig struct {
	BaseURL          string   `toml:"base_url"`
	APIKey           string   `toml:"api_key"`
	APISecret        string   `toml:"api_secret"`
	SealedSecretPath string   `toml:"sealed_secret_path"`
	SecretPassword   string   `toml:"secret_password"`
	Timeout          duration `toml:"timeout"`
	// OrdersPerSecond throttles order sends per exchange. Zero disables it.
	OrdersPerSecond int `toml:"orders_per_second"`
}

// AlgoConfig tunes the instance runtime.
type AlgoConfig struct {
	// DryRun logs orders instead of sending them.
	DryRun               bool     `toml:"dry_run"`
	MailboxSize          int      `toml:"mailbox_size"`
	RetryDelay           duration `toml:"retry_delay"`
	ConciliationInterval duration `toml:"conciliation_interval"`
	LegTTL               duration `toml:"leg_ttl"`
	// RestoreOnBoot restarts the instances still flagged active.
	RestoreOnBoot bool `toml:"restore_on_boot"`
}

// FeedConfig holds the upstream market-data gateway parameters.
type FeedConfig struct {
	GatewayURL     string   `toml:"gateway_url"`
	Topics         []string `toml:"topics"`
	Exchanges      []string `toml:"exchanges"`
	ReconnectDelay duration `toml:"reconnect_delay"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "vimana",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "vimana-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"instance_created", "instance_finalized", "instance_error"},
		},
		OMS: OMSConfig{
			BaseURL:         "http://localhost:8080",
			Timeout:         duration{30 * time.Second},
			OrdersPerSecond: 5,
		},
		Algo: AlgoConfig{
			MailboxSize:          256,
			RetryDelay:           duration{3 * time.Second},
			ConciliationInterval: duration{15 * time.Second},
			LegTTL:               duration{10 * time.Minute},
			RestoreOnBoot:        true,
		},
		Feed: FeedConfig{
			Topics:         []string{"md.*"},
			Exchanges:      []string{"foxbit", "bitstamp", "plural"},
			ReconnectDelay: duration{2 * time.Second},
		},
		Metrics:  MetricsConfig{Enabled: true},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Mode values. The engine hosts the instances and the API, the feed relays
// the upstream market data, full does both.
const (
	ModeFull   = "full"
	ModeEngine = "engine"
	ModeFeed   = "feed"
)

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeFull:   true,
	ModeEngine: true,
	ModeFeed:   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsEngine reports whether the mode hosts instances.
func (c *Config) RunsEngine() bool {
	mode := strings.ToLower(c.Mode)
	return mode == ModeFull || mode == ModeEngine
}

// RunsFeed reports whether the mode relays the market-data gateway.
func (c *Config) RunsFeed() bool {
	mode := strings.ToLower(c.Mode)
	return mode == ModeFull || mode == ModeFeed
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, engine, feed)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Redis carries the bus every mode uses.
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.RunsEngine() {
		errs = append(errs, c.validateEngine()...)
	}

	// full mode without a gateway url runs the engine on a bus fed elsewhere
	if c.RunsFeed() {
		if c.Feed.GatewayURL == "" {
			if strings.ToLower(c.Mode) == ModeFeed {
				errs = append(errs, "feed: gateway_url is required for mode feed")
			}
		} else if u, err := url.Parse(c.Feed.GatewayURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Sprintf("feed: gateway_url must be a ws:// or wss:// URL, got %q", c.Feed.GatewayURL))
		}
		if c.Feed.ReconnectDelay.Duration < 0 {
			errs = append(errs, "feed: reconnect_delay must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateEngine() []string {
	var errs []string

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when a bucket is set")
	}

	if !c.Algo.DryRun {
		if c.OMS.BaseURL == "" {
			errs = append(errs, "oms: base_url is required unless algo.dry_run is set")
		}
		if c.OMS.APIKey != "" && c.OMS.APISecret == "" && c.OMS.SealedSecretPath == "" {
			errs = append(errs, "oms: api_secret or sealed_secret_path must be set with api_key")
		}
	}
	if c.OMS.SealedSecretPath != "" && c.OMS.SecretPassword == "" {
		errs = append(errs, "oms: secret_password is required when sealed_secret_path is set")
	}
	if c.OMS.OrdersPerSecond < 0 {
		errs = append(errs, "oms: orders_per_second must be >= 0")
	}

	if c.Algo.RetryDelay.Duration <= 0 {
		errs = append(errs, "algo: retry_delay must be > 0")
	}
	if c.Algo.ConciliationInterval.Duration <= 0 {
		errs = append(errs, "algo: conciliation_interval must be > 0")
	}
	if c.Algo.LegTTL.Duration <= 0 {
		errs = append(errs, "algo: leg_ttl must be > 0")
	}
	if c.Algo.MailboxSize < 0 {
		errs = append(errs, "algo: mailbox_size must be >= 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}
	return errs
}

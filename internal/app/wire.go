package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	s3blob "github.com/jthomazinho/vimana-arbitrage/internal/blob/s3"
	"github.com/jthomazinho/vimana-arbitrage/internal/cache/redis"
	"github.com/jthomazinho/vimana-arbitrage/internal/config"
	"github.com/jthomazinho/vimana-arbitrage/internal/crypto"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/executor"
	"github.com/jthomazinho/vimana-arbitrage/internal/metrics"
	"github.com/jthomazinho/vimana-arbitrage/internal/notify"
	"github.com/jthomazinho/vimana-arbitrage/internal/oms"
	"github.com/jthomazinho/vimana-arbitrage/internal/server/handler"
	"github.com/jthomazinho/vimana-arbitrage/internal/store/postgres"
)

// Dependencies bundles the concrete clients and stores the modes run on. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores, nil outside the engine modes.
	Instances     domain.InstanceStore
	Fees          domain.FeeStore
	Executions    domain.ExecutionStore
	Conciliations domain.ConciliationStore
	Orders        domain.OrderStore

	// Caches
	Bus         *redis.SignalBus
	MarketCache domain.MarketCache
	QuoteCache  *redis.QuoteCache
	Locks       domain.LockManager
	RateLimiter domain.RateLimiter

	// Blob storage, nil when no bucket is configured.
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	OMS      *oms.Client
	Metrics  *metrics.Registry
	Notifier *notify.Notifier

	// HealthChecks are probed by GET /api/health.
	HealthChecks map[string]handler.HealthCheckFunc
}

// Stores groups the persistence the executor works with.
func (d *Dependencies) Stores() executor.Stores {
	return executor.Stores{
		Executions:    d.Executions,
		Conciliations: d.Conciliations,
		Orders:        d.Orders,
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheckFunc)}

	// --- Redis, shared by every mode ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Bus = redis.NewSignalBus(redisClient)
	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
	deps.HealthChecks["redis"] = redisClient.Ping

	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.NewRegistry()
	}

	if !cfg.RunsEngine() {
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Instances = postgres.NewInstanceStore(pool)
	deps.Fees = postgres.NewFeeStore(pool)
	deps.Executions = postgres.NewExecutionStore(pool)
	deps.Conciliations = postgres.NewConciliationStore(pool)
	deps.Orders = postgres.NewOrderStore(pool)
	deps.HealthChecks["postgres"] = pgClient.Ping

	// --- S3 archive ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			reader,
			deps.Executions,
			deps.Orders,
			deps.Conciliations,
			logger,
		)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- OMS gateway ---
	omsClient, err := newOMSClient(cfg.OMS, cfg.Algo.DryRun, redisClient)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: oms: %w", err)
	}
	deps.OMS = omsClient

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// newOMSClient builds the gateway client. In dry-run the secret is optional
// since no order is sent.
func newOMSClient(cfg config.OMSConfig, dryRun bool, rc *redis.Client) (*oms.Client, error) {
	var auth *crypto.HMACAuth
	if cfg.APIKey != "" {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			Raw:        cfg.APISecret,
			SealedPath: cfg.SealedSecretPath,
			Password:   cfg.SecretPassword,
		})
		switch {
		case err == nil:
			auth = &crypto.HMACAuth{Key: cfg.APIKey, Secret: secret}
		case !dryRun:
			return nil, err
		}
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []oms.Option{oms.WithHTTPClient(&http.Client{Timeout: timeout})}
	if cfg.OrdersPerSecond > 0 {
		opts = append(opts, oms.WithLimiter(redis.NewRateLimiter(rc, cfg.OrdersPerSecond, time.Second)))
	}
	return oms.NewClient(cfg.BaseURL, auth, opts...), nil
}

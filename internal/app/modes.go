package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jthomazinho/vimana-arbitrage/internal/feed"
	"github.com/jthomazinho/vimana-arbitrage/internal/server"
	"github.com/jthomazinho/vimana-arbitrage/internal/server/handler"
	"github.com/jthomazinho/vimana-arbitrage/internal/server/ws"
	"github.com/jthomazinho/vimana-arbitrage/internal/service"
)

const shutdownTimeout = 5 * time.Second

// engine is what the engine modes start on top of the dependencies.
type engine struct {
	manager *service.Manager
	audit   *service.AuditTrail
	fees    *service.FeeService
}

// buildEngine assembles the instance runtime and its manager.
func (a *App) buildEngine(deps *Dependencies) *engine {
	audit := service.NewAuditTrail(deps.Bus, deps.Notifier, a.logger)
	fees := service.NewFeeService(deps.Fees, deps.Bus, a.logger)

	var recorders service.RecorderFactory
	if deps.Metrics != nil {
		recorders = deps.Metrics
	}

	rt := &service.Runtime{
		Bus:       deps.Bus,
		Feed:      feed.NewMarketFeed(deps.Bus, deps.MarketCache, a.logger),
		Fees:      fees,
		OMS:       deps.OMS,
		Stores:    deps.Stores(),
		Quotes:    deps.QuoteCache,
		Recorders: recorders,
		Audit:     audit,
		Notifier:  deps.Notifier,
		Settings: service.RuntimeSettings{
			DryRun:               a.cfg.Algo.DryRun,
			MailboxSize:          a.cfg.Algo.MailboxSize,
			RetryDelay:           a.cfg.Algo.RetryDelay.Duration,
			ConciliationInterval: a.cfg.Algo.ConciliationInterval.Duration,
			LegTTL:               a.cfg.Algo.LegTTL.Duration,
		},
		Logger: a.logger,
	}

	manager := service.NewManager(service.ManagerDeps{
		Instances: deps.Instances,
		Locks:     deps.Locks,
		Bus:       deps.Bus,
		Factory:   rt,
		Archiver:  deps.Archiver,
		Notifier:  deps.Notifier,
		Recorders: recorders,
		Quotes:    deps.QuoteCache,
	}, a.logger)

	return &engine{manager: manager, audit: audit, fees: fees}
}

// startEngine runs the audit trail and restores the active instances. The
// runners are stopped when ctx is cancelled.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, eng *engine) {
	a.logger.InfoContext(ctx, "starting engine",
		slog.Bool("dry_run", a.cfg.Algo.DryRun),
		slog.Bool("restore_on_boot", a.cfg.Algo.RestoreOnBoot),
	)

	g.Go(func() error {
		return eng.audit.Run(ctx)
	})

	if a.cfg.Algo.RestoreOnBoot {
		if err := eng.manager.Restore(ctx); err != nil {
			a.logger.ErrorContext(ctx, "restore failed, starting with no instance",
				slog.String("error", err.Error()),
			)
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		eng.manager.Shutdown()
		return nil
	})
}

// startFeed relays the upstream market-data gateway onto the bus.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	gateway := feed.NewGatewayClient(feed.GatewayConfig{
		URL:            a.cfg.Feed.GatewayURL,
		Topics:         a.cfg.Feed.Topics,
		Exchanges:      a.cfg.Feed.Exchanges,
		ReconnectDelay: a.cfg.Feed.ReconnectDelay.Duration,
	}, deps.Bus, deps.MarketCache, a.logger)

	g.Go(func() error {
		return gateway.Run(ctx)
	})
}

// startHTTPServer adds the API server and the WebSocket hub to g. eng is nil
// in feed mode, which serves health and metrics only. The server is shut
// down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine) {
	running := func() int { return 0 }
	if eng != nil {
		running = eng.manager.Running
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.HealthChecks, running, a.logger),
	}
	var opts server.Options
	opts.Limiter = deps.RateLimiter
	if deps.Metrics != nil {
		handlers.Metrics = deps.Metrics.Handler()
		opts.Observer = deps.Metrics
	}

	if eng != nil {
		handlers.Instances = handler.NewInstanceHandler(eng.manager, deps.Executions, a.logger)
		handlers.Fees = handler.NewFeeHandler(eng.fees, a.logger)
		handlers.Orders = handler.NewOrderHandler(deps.Orders, a.logger)
		if deps.BlobReader != nil {
			handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
		}

		hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
			Running:   running,
		})
		opts.Hub = hub
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, opts, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// Handlers adapts plain functions to domain.Subscriber. Nil fields drop the
// corresponding updates.
type Handlers struct {
	Depth  func(domain.Depth)
	Quote  func(domain.Quote)
	Status func(domain.ServiceStatus)
}

func (h Handlers) OnDepth(depth domain.Depth) {
	if h.Depth != nil {
		h.Depth(depth)
	}
}

func (h Handlers) OnQuote(quote domain.Quote) {
	if h.Quote != nil {
		h.Quote(quote)
	}
}

func (h Handlers) OnStatus(status domain.ServiceStatus) {
	if h.Status != nil {
		h.Status(status)
	}
}

// MarketFeed delivers the market data of one instrument from the signal bus
// to a subscriber.
type MarketFeed struct {
	bus    domain.SignalBus
	cache  domain.MarketCache
	logger *slog.Logger
}

// NewMarketFeed creates a MarketFeed. cache may be nil.
func NewMarketFeed(bus domain.SignalBus, cache domain.MarketCache, logger *slog.Logger) *MarketFeed {
	return &MarketFeed{
		bus:    bus,
		cache:  cache,
		logger: logger.With(slog.String("component", "market_feed")),
	}
}

// Watch subscribes to the depth, quote and status topics of inst, replays
// whatever the cache holds for it, then forwards updates to sub until ctx is
// cancelled. Subscribing happens before the replay so no update published in
// between is lost.
func (f *MarketFeed) Watch(ctx context.Context, inst domain.Instrument, sub domain.Subscriber) error {
	depths, err := f.bus.Subscribe(ctx, domain.DepthTopic(inst))
	if err != nil {
		return fmt.Errorf("feed: watch %s: %w", inst, err)
	}
	quotes, err := f.bus.Subscribe(ctx, domain.QuoteTopic(inst))
	if err != nil {
		return fmt.Errorf("feed: watch %s: %w", inst, err)
	}
	statuses, err := f.bus.Subscribe(ctx, domain.StatusTopic(inst.Exchange))
	if err != nil {
		return fmt.Errorf("feed: watch %s: %w", inst, err)
	}

	f.bootstrap(ctx, inst, sub)

	logger := f.logger.With(slog.String("instrument", inst.String()))
	logger.DebugContext(ctx, "watching")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-depths:
			if !ok {
				return nil
			}
			var depth domain.Depth
			if err := json.Unmarshal(data, &depth); err != nil {
				logger.WarnContext(ctx, "bad depth dropped", slog.String("error", err.Error()))
				continue
			}
			depth.Instrument = inst
			sub.OnDepth(depth)
		case data, ok := <-quotes:
			if !ok {
				return nil
			}
			var quote domain.Quote
			if err := json.Unmarshal(data, &quote); err != nil {
				logger.WarnContext(ctx, "bad quote dropped", slog.String("error", err.Error()))
				continue
			}
			quote.Instrument = inst
			sub.OnQuote(quote)
		case data, ok := <-statuses:
			if !ok {
				return nil
			}
			var status domain.ServiceStatus
			if err := json.Unmarshal(data, &status); err != nil {
				logger.WarnContext(ctx, "bad status dropped", slog.String("error", err.Error()))
				continue
			}
			sub.OnStatus(status)
		}
	}
}

func (f *MarketFeed) bootstrap(ctx context.Context, inst domain.Instrument, sub domain.Subscriber) {
	if f.cache == nil {
		return
	}
	if depth, err := f.cache.GetDepth(ctx, inst); err == nil {
		depth.Instrument = inst
		sub.OnDepth(depth)
	} else if !errors.Is(err, domain.ErrNotFound) {
		f.logger.WarnContext(ctx, "cached depth unavailable",
			slog.String("instrument", inst.String()),
			slog.String("error", err.Error()),
		)
	}
	if quote, err := f.cache.GetQuote(ctx, inst); err == nil {
		quote.Instrument = inst
		sub.OnQuote(quote)
	} else if !errors.Is(err, domain.ErrNotFound) {
		f.logger.WarnContext(ctx, "cached quote unavailable",
			slog.String("instrument", inst.String()),
			slog.String("error", err.Error()),
		)
	}
}

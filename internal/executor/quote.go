package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/algo/otc"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// QuotePublisher publishes the prices of an OTC instance: the last one is
// cached and every one is broadcast.
type QuotePublisher struct {
	instanceID  int64
	cache       domain.QuoteCache
	bus         domain.SignalBus
	onFinalized func()
	now         func() time.Time
	logger      *slog.Logger
}

// NewQuotePublisher creates a QuotePublisher. onFinalized may be nil.
func NewQuotePublisher(instanceID int64, cache domain.QuoteCache, bus domain.SignalBus, onFinalized func(), logger *slog.Logger) *QuotePublisher {
	return &QuotePublisher{
		instanceID:  instanceID,
		cache:       cache,
		bus:         bus,
		onFinalized: onFinalized,
		now:         time.Now,
		logger: logger.With(
			slog.String("component", "quote_publisher"),
			slog.Int64("instance_id", instanceID),
		),
	}
}

// SetQuote caches and broadcasts price.
func (p *QuotePublisher) SetQuote(ctx context.Context, price decimal.Decimal) error {
	at := p.now().UTC()
	if err := p.cache.SetQuote(ctx, p.instanceID, price, at); err != nil {
		return fmt.Errorf("executor: cache quote: %w", err)
	}

	payload, err := json.Marshal(domain.OTCQuote{InstanceID: p.instanceID, Price: price, At: at})
	if err != nil {
		return fmt.Errorf("executor: marshal quote: %w", err)
	}
	if err := p.bus.Publish(ctx, domain.OTCQuoteTopic(p.instanceID), payload); err != nil {
		return fmt.Errorf("executor: publish quote: %w", err)
	}
	p.logger.DebugContext(ctx, "quote published", slog.String("price", price.String()))
	return nil
}

// OnFinalized notifies the owner.
func (p *QuotePublisher) OnFinalized() {
	if p.onFinalized != nil {
		p.onFinalized()
	}
}

var _ otc.Executor = (*QuotePublisher)(nil)

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache. It keeps the last depth and the
// last quote of every instrument so a new instance starts from known prices.
//
// Key schema:
//
//	md:{exchange}:{symbol} - hash with fields "depth" and "quote" holding JSON
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(inst domain.Instrument) string {
	return "md:" + inst.Exchange + ":" + inst.Symbol
}

// SetDepth stores the depth of its instrument.
func (mc *MarketCache) SetDepth(ctx context.Context, depth domain.Depth) error {
	return mc.set(ctx, depth.Instrument, "depth", depth)
}

// GetDepth returns the last depth of inst, or domain.ErrNotFound.
func (mc *MarketCache) GetDepth(ctx context.Context, inst domain.Instrument) (domain.Depth, error) {
	var depth domain.Depth
	if err := mc.get(ctx, inst, "depth", &depth); err != nil {
		return domain.Depth{}, err
	}
	return depth, nil
}

// SetQuote stores the quote of its instrument.
func (mc *MarketCache) SetQuote(ctx context.Context, quote domain.Quote) error {
	return mc.set(ctx, quote.Instrument, "quote", quote)
}

// GetQuote returns the last quote of inst, or domain.ErrNotFound.
func (mc *MarketCache) GetQuote(ctx context.Context, inst domain.Instrument) (domain.Quote, error) {
	var quote domain.Quote
	if err := mc.get(ctx, inst, "quote", &quote); err != nil {
		return domain.Quote{}, err
	}
	return quote, nil
}

func (mc *MarketCache) set(ctx context.Context, inst domain.Instrument, field string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s %s: %w", field, inst, err)
	}

	key := marketKey(inst)
	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, field, data)
	pipe.Expire(ctx, key, marketTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set %s %s: %w", field, inst, err)
	}
	return nil
}

func (mc *MarketCache) get(ctx context.Context, inst domain.Instrument, field string, v any) error {
	data, err := mc.rdb.HGet(ctx, marketKey(inst), field).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("redis: get %s %s: %w", field, inst, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("redis: unmarshal %s %s: %w", field, inst, err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)

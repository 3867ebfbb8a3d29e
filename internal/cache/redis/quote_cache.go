package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// QuoteCache implements domain.QuoteCache. The last price published by an
// OTC instance is kept in a hash at "otc:quote:{instanceID}" with fields
// "price" and "ts" (Unix nanoseconds).
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(instanceID int64) string {
	return "otc:quote:" + strconv.FormatInt(instanceID, 10)
}

// SetQuote stores the published price of an instance.
func (qc *QuoteCache) SetQuote(ctx context.Context, instanceID int64, price decimal.Decimal, ts time.Time) error {
	fields := map[string]any{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, quoteKey(instanceID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %d: %w", instanceID, err)
	}
	return nil
}

// GetQuote returns the last published price of an instance, or
// domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, instanceID int64) (decimal.Decimal, time.Time, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(instanceID)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get quote %d: %w", instanceID, err)
	}
	return parseQuote(vals)
}

// Forget drops the cached quote of an ended instance.
func (qc *QuoteCache) Forget(ctx context.Context, instanceID int64) error {
	if err := qc.rdb.Del(ctx, quoteKey(instanceID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis: forget quote %d: %w", instanceID, err)
	}
	return nil
}

func parseQuote(vals map[string]string) (decimal.Decimal, time.Time, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse quote price: %w", err)
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse quote ts: %w", err)
	}
	return price, time.Unix(0, tsNano), nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)

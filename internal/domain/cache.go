package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MarketCache keeps the latest market data per instrument so a new instance
// can initialize without waiting for the next tick.
type MarketCache interface {
	SetDepth(ctx context.Context, depth Depth) error
	GetDepth(ctx context.Context, inst Instrument) (Depth, error)
	SetQuote(ctx context.Context, quote Quote) error
	GetQuote(ctx context.Context, inst Instrument) (Quote, error)
}

// QuoteCache stores the last price published by each OTC instance.
type QuoteCache interface {
	SetQuote(ctx context.Context, instanceID int64, price decimal.Decimal, ts time.Time) error
	GetQuote(ctx context.Context, instanceID int64) (decimal.Decimal, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// Message is a pub/sub payload together with the channel it was published on.
type Message struct {
	Channel string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams. Subscribe accepts glob
// patterns.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("algos.*"))
	assert.True(t, hasPattern("fees.foxbit.?.update"))
	assert.False(t, hasPattern("oms.order_filled.foxbit.3"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "md:foxbit:btcbrl", marketKey(domain.Instrument{Exchange: "foxbit", Symbol: "btcbrl"}))
	assert.Equal(t, "otc:quote:12", quoteKey(12))
	assert.Equal(t, "lock:instance:foxbit-otc", lockKey("instance:foxbit-otc"))
	assert.Equal(t, "ratelimit:oms:foxbit", rateLimitKey("oms:foxbit"))
}

func TestParseQuote(t *testing.T) {
	ts := time.Unix(1700000000, 5)
	price, at, err := parseQuote(map[string]string{"price": "5.8123", "ts": "1700000000000000005"})
	require.NoError(t, err)
	assert.Equal(t, "5.8123", price.String())
	assert.True(t, at.Equal(ts))

	_, _, err = parseQuote(map[string]string{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = parseQuote(map[string]string{"price": "x", "ts": "1"})
	assert.Error(t, err)
}

func TestStreamPayload(t *testing.T) {
	data, ok := streamPayload(map[string]any{"payload": "abc"})
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), data)

	_, ok = streamPayload(map[string]any{"other": 1})
	assert.False(t, ok)
}

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(NewFromRedis(nil), 0, 0)
	assert.Equal(t, 1, rl.limit)
	assert.Equal(t, time.Second, rl.window)

	rl = NewRateLimiter(NewFromRedis(nil), 5, time.Minute)
	assert.Equal(t, 5, rl.limit)
}

package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

func TestQuotePublisher_SetQuote(t *testing.T) {
	cache := &fakeQuoteCache{}
	bus := &fakeBus{}
	finalized := 0
	p := NewQuotePublisher(3, cache, bus, func() { finalized++ }, discardLogger())
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	require.NoError(t, p.SetQuote(context.Background(), d("294.3645")))

	assert.True(t, cache.price.Equal(d("294.3645")))
	assert.Equal(t, at, cache.at)
	require.Len(t, bus.published, 1)
	assert.Equal(t, "otc.quote.3", bus.published[0].channel)

	var q domain.OTCQuote
	require.NoError(t, json.Unmarshal(bus.published[0].payload, &q))
	assert.Equal(t, int64(3), q.InstanceID)
	assert.True(t, q.Price.Equal(d("294.3645")))

	p.OnFinalized()
	assert.Equal(t, 1, finalized)
}

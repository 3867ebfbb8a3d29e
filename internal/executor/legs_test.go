package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

func fill(exchange, exchangeOrderID string, executionID int64, qty, price string) domain.OrderFill {
	return domain.OrderFill{
		Order: domain.Order{
			OrderParams:     domain.OrderParams{Exchange: exchange, ExecutionID: executionID, Quantity: d(qty)},
			ExchangeOrderID: exchangeOrderID,
		},
		Status:           domain.OrderStateFilled,
		QuantityExecuted: d(qty),
		AvgPrice:         d(price),
	}
}

func seed(t *testing.T, store *fakeExecutionStore, needsConciliation bool, long string) int64 {
	t.Helper()
	exec, err := store.Create(context.Background(), domain.ArbitrageExecution{
		AlgoInstanceID:    7,
		Context:           executionContext("0.1", long),
		NeedsConciliation: needsConciliation,
	})
	require.NoError(t, err)
	return exec.ID
}

func TestLegBook_BothLegs(t *testing.T) {
	store := newFakeExecutionStore()
	id := seed(t, store, false, "0.1")
	b := NewLegBook(store, time.Minute, discardLogger())
	defer b.Close()

	ok, err := b.SetShort(context.Background(), fill("foxbit", "s1", id, "0.09", "49000"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, store.updates, "waits for the long leg")
	assert.Equal(t, 1, b.Pending())

	ok, err = b.SetLong(context.Background(), fill("bitstamp", "l1", id, "0.09", "9400"))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, store.updates)
	assert.Equal(t, 0, b.Pending())
	summary := store.executions[id].Summary
	assert.Equal(t, "0.09000000", summary.ShortLeg.Quantity)
	assert.Equal(t, "49000.00", summary.ShortLeg.Price)
}

func TestLegBook_ShortOnly(t *testing.T) {
	store := newFakeExecutionStore()
	id := seed(t, store, true, "0")
	b := NewLegBook(store, time.Minute, discardLogger())
	defer b.Close()

	_, err := b.SetShort(context.Background(), fill("foxbit", "s1", id, "0.0011", "49000"))
	require.NoError(t, err)

	assert.Equal(t, 1, store.updates)
	assert.Equal(t, "0.00110000", store.executions[id].Summary.ShortLeg.Quantity)
	assert.Equal(t, 0, b.Pending())
}

func TestLegBook_ShortFillWithoutExecutedQuantity(t *testing.T) {
	store := newFakeExecutionStore()
	id := seed(t, store, true, "0")
	b := NewLegBook(store, time.Minute, discardLogger())
	defer b.Close()

	short := fill("foxbit", "s1", id, "0.002", "0")
	short.Order.Price = d("49000")
	short.QuantityExecuted = d("0")

	_, err := b.SetShort(context.Background(), short)
	require.NoError(t, err)

	summary := store.executions[id].Summary
	assert.Equal(t, "0.00200000", summary.ShortLeg.Quantity)
	assert.Equal(t, "49000.00", summary.ShortLeg.Price)
}

func TestLegBook_DuplicateFill(t *testing.T) {
	store := newFakeExecutionStore()
	id := seed(t, store, false, "0.1")
	b := NewLegBook(store, time.Minute, discardLogger())
	defer b.Close()

	ok, err := b.SetLong(context.Background(), fill("bitstamp", "l1", id, "0.1", "9400"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.SetLong(context.Background(), fill("bitstamp", "l1", id, "0.1", "9400"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLegBook_FillWithoutExecution(t *testing.T) {
	store := newFakeExecutionStore()
	b := NewLegBook(store, time.Minute, discardLogger())
	defer b.Close()

	ok, err := b.SetLong(context.Background(), fill("bitstamp", "c1", 0, "0.0042", "9400"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, b.Pending())
}

func TestLegBook_UnknownExecution(t *testing.T) {
	b := NewLegBook(newFakeExecutionStore(), time.Minute, discardLogger())
	defer b.Close()

	_, err := b.SetShort(context.Background(), fill("foxbit", "s1", 999, "0.1", "49000"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLegBook_Expiry(t *testing.T) {
	store := newFakeExecutionStore()
	id := seed(t, store, false, "0.1")
	b := NewLegBook(store, 10*time.Millisecond, discardLogger())
	defer b.Close()

	_, err := b.SetShort(context.Background(), fill("foxbit", "s1", id, "0.1", "49000"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDedup(t *testing.T) {
	dd := NewDedup(time.Minute)
	now := time.Unix(1700000000, 0)
	dd.now = func() time.Time { return now }

	assert.False(t, dd.IsDuplicate("a"))
	assert.True(t, dd.IsDuplicate("a"))
	assert.False(t, dd.IsDuplicate("b"))

	now = now.Add(2 * time.Minute)
	assert.False(t, dd.IsDuplicate("a"))

	now = now.Add(2 * time.Minute)
	dd.Cleanup()
	assert.Equal(t, 0, dd.Len())
}

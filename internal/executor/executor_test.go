package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

type harness struct {
	oms    *fakeOMS
	execs  *fakeExecutionStore
	concs  *fakeConciliationStore
	orders *fakeOrderStore
	fills  []domain.OrderFill
	events []string
	exec   *Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		oms:    &fakeOMS{errs: map[string]error{}},
		execs:  newFakeExecutionStore(),
		concs:  &fakeConciliationStore{},
		orders: &fakeOrderStore{},
	}
	hooks := Hooks{
		OnHistoryFill: func(_ context.Context, fill domain.OrderFill) { h.fills = append(h.fills, fill) },
		OnResend:      func(context.Context, int64, int64) { h.events = append(h.events, "resend") },
		OnConciliation: func(context.Context, domain.Conciliation) {
			h.events = append(h.events, "conciliation")
		},
		OnFinalized: func() { h.events = append(h.events, "finalized") },
	}
	stores := Stores{Executions: h.execs, Conciliations: h.concs, Orders: h.orders}
	h.exec = New(context.Background(), 7, h.oms, stores, hooks, discardLogger(), WithRetryDelay(time.Hour))
	t.Cleanup(h.exec.OnFinalized)
	return h
}

func TestExecutor_SendOrders(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.exec.SendOrders(context.Background(), executionContext("0.1", "0.1")))

	require.Len(t, h.execs.executions, 1)
	exec := h.execs.executions[101]
	assert.False(t, exec.NeedsConciliation)
	assert.Equal(t, int64(7), exec.AlgoInstanceID)
	assert.Equal(t, "0.10000000", exec.Summary.ShortLeg.Quantity)

	long := h.oms.sentTo("bitstamp")
	require.Len(t, long, 1)
	assert.Equal(t, domain.OrderSideBuy, long[0].Side)
	assert.Equal(t, "btcusd", long[0].Symbol)
	assert.Equal(t, int64(101), long[0].ExecutionID)

	short := h.oms.sentTo("foxbit")
	require.Len(t, short, 1)
	assert.Equal(t, domain.OrderSideSell, short[0].Side)
	assert.Equal(t, domain.OrderTypeMarket, short[0].Type)
	assert.Equal(t, int64(101), short[0].ExecutionID)

	assert.Len(t, h.orders.orders, 2)
}

func TestExecutor_SendOrdersLegFailure(t *testing.T) {
	h := newHarness(t)
	h.oms.errs["bitstamp"] = &domain.SendOrderError{Code: 504, Message: "gateway timeout"}

	err := h.exec.SendOrders(context.Background(), executionContext("0.1", "0.1"))

	var se *domain.SendOrderError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.IsGatewayTimeout())
	assert.Equal(t, int64(101), se.ExecutionID)
	assert.Equal(t, "gateway timeout", se.Error())
	assert.Len(t, h.oms.sentTo("foxbit"), 1, "the other leg is still sent")
}

func TestExecutor_SendOrdersOtherFailure(t *testing.T) {
	h := newHarness(t)
	h.oms.errs["foxbit"] = errors.New("connection reset")

	err := h.exec.SendOrders(context.Background(), executionContext("0.1", "0.1"))

	var se *domain.SendOrderError
	require.True(t, errors.As(err, &se))
	assert.False(t, se.IsGatewayTimeout())
	assert.Equal(t, int64(101), se.ExecutionID)
}

func TestExecutor_SendOrdersStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.execs.createErr = errors.New("db down")

	err := h.exec.SendOrders(context.Background(), executionContext("0.1", "0.1"))

	require.Error(t, err)
	assert.Empty(t, h.oms.sent)
}

func TestExecutor_SendOrdersMissingFee(t *testing.T) {
	h := newHarness(t)
	ec := executionContext("0.1", "0.1")
	ec.Fees.PegIOF = nil

	err := h.exec.SendOrders(context.Background(), ec)

	assert.ErrorIs(t, err, domain.ErrMissingFee)
	assert.Empty(t, h.execs.executions)
}

func TestExecutor_SendShortOrder(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.exec.SendShortOrder(context.Background(), executionContext("0.0011", "0")))

	exec := h.execs.executions[101]
	assert.True(t, exec.NeedsConciliation)
	assert.Empty(t, h.oms.sentTo("bitstamp"))
	assert.Len(t, h.oms.sentTo("foxbit"), 1)
}

func TestExecutor_SendConciliationOrder(t *testing.T) {
	h := newHarness(t)
	acc := domain.AccumulatedExecutions{
		AlgoInstanceID:   7,
		TotalAccumulated: d("0.0042"),
		Executions: []domain.ConciliatedExecution{
			{ID: 11, QtyAccumulated: d("0.0021")},
			{ID: 12, QtyAccumulated: d("0.0021")},
		},
	}

	require.NoError(t, h.exec.SendConciliationOrder(context.Background(), acc))

	require.Len(t, h.concs.created, 1)
	long := h.oms.sentTo("bitstamp")
	require.Len(t, long, 1)
	assert.True(t, long[0].Quantity.Equal(d("0.0042")))
	assert.Zero(t, long[0].ExecutionID)
	assert.Equal(t, map[int64]int64{11: 1, 12: 1}, h.execs.conciliated)
	assert.Equal(t, []string{"conciliation"}, h.events)
}

func TestExecutor_SendConciliationOrderFailure(t *testing.T) {
	h := newHarness(t)
	h.oms.errs["bitstamp"] = errors.New("rejected")
	acc := domain.AccumulatedExecutions{
		AlgoInstanceID:   7,
		TotalAccumulated: d("0.0042"),
		Executions:       []domain.ConciliatedExecution{{ID: 11, QtyAccumulated: d("0.0042")}},
	}

	require.Error(t, h.exec.SendConciliationOrder(context.Background(), acc))
	assert.Empty(t, h.execs.conciliated)
	assert.Empty(t, h.concs.created, "a rejected order leaves no conciliation")

	delete(h.oms.errs, "bitstamp")
	require.NoError(t, h.exec.SendConciliationOrder(context.Background(), acc))
	assert.Len(t, h.concs.created, 1)
	assert.Equal(t, map[int64]int64{11: 1}, h.execs.conciliated)
}

func TestExecutor_GetOrderHistoryFound(t *testing.T) {
	h := newHarness(t)
	h.oms.history = []domain.OrderHistory{{
		OrderID:          1,
		ClientOrderID:    55,
		QuantityExecuted: d("0.1"),
		AvgPrice:         d("49000"),
	}}

	require.NoError(t, h.exec.GetOrderHistory(context.Background(), 7, 55))

	require.Len(t, h.fills, 1)
	assert.Equal(t, int64(55), h.fills[0].Order.ExecutionID)
	assert.Equal(t, "foxbit", h.fills[0].Order.Exchange)
}

func TestExecutor_GetOrderHistoryError(t *testing.T) {
	h := newHarness(t)
	h.oms.histErr = errors.New("oms down")

	assert.Error(t, h.exec.GetOrderHistory(context.Background(), 7, 55))
}

func TestExecutor_ResendAfterSecondMiss(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.exec.SendShortOrder(context.Background(), executionContext("0.03136437", "0")))

	require.NoError(t, h.exec.GetOrderHistory(context.Background(), 7, 101))
	assert.Len(t, h.oms.sentTo("foxbit"), 1)

	require.NoError(t, h.exec.GetOrderHistory(context.Background(), 7, 101))
	short := h.oms.sentTo("foxbit")
	require.Len(t, short, 2)
	assert.True(t, short[1].Quantity.Equal(d("0.03136437")))
	assert.Equal(t, int64(101), short[1].ExecutionID)
	assert.Equal(t, []string{"resend"}, h.events)
}

func TestExecutor_OnFinalized(t *testing.T) {
	h := newHarness(t)
	h.exec.OnFinalized()
	assert.Equal(t, []string{"finalized"}, h.events)
}

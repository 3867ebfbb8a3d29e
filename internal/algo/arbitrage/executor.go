package arbitrage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// Executor carries out the side effects the algo decides on. Every method
// but OnFinalized may block on the network; the algo never calls them from
// its event loop.
type Executor interface {
	// SendOrders persists the execution and sends both legs concurrently.
	SendOrders(ctx context.Context, ec domain.ExecutionContext) error
	// SendShortOrder persists the execution flagged for conciliation and
	// sends the short leg only.
	SendShortOrder(ctx context.Context, ec domain.ExecutionContext) error
	// SendConciliationOrder sends the catch-up long order.
	SendConciliationOrder(ctx context.Context, acc domain.AccumulatedExecutions) error
	// GetOrderHistory asks the short exchange whether the order of an
	// execution went through. The answer comes back as a fill or as a
	// retry, not as a return value.
	GetOrderHistory(ctx context.Context, instanceID, executionID int64) error
	// OnFinalized notifies the owner that the instance ended.
	OnFinalized()
}

// Conciliator accumulates short-only executions and triggers the catch-up
// order once they are worth sending.
type Conciliator interface {
	UpdateLongPrice(price decimal.Decimal)
	Start(instanceID int64, send func(ctx context.Context, acc domain.AccumulatedExecutions))
	Stop()
}

type nopConciliator struct{}

func (nopConciliator) UpdateLongPrice(decimal.Decimal) {}
func (nopConciliator) Start(int64, func(context.Context, domain.AccumulatedExecutions)) {
}
func (nopConciliator) Stop() {}

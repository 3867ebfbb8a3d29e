// Package conciliation catches up the long leg of executions that were sent
// short only because the long order would have been below the exchange
// minimum.
package conciliation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

const DefaultInterval = 15 * time.Second

// MinUSDValue is the value the accumulated quantity must exceed, at the
// current long price, before a catch-up order is sent.
var MinUSDValue = decimal.NewFromInt(25)

// PendingLister lists the executions still waiting for conciliation.
type PendingLister interface {
	ListPendingConciliation(ctx context.Context, instanceID int64) ([]domain.ArbitrageExecution, error)
}

// SendFunc sends the catch-up order for an accumulation.
type SendFunc func(ctx context.Context, acc domain.AccumulatedExecutions)

// Engine periodically accumulates the pending executions of one instance.
// UpdateLongPrice, Start and Stop are safe for concurrent use.
type Engine struct {
	executions PendingLister
	interval   time.Duration
	parent     context.Context
	logger     *slog.Logger

	mu        sync.Mutex
	longPrice decimal.Decimal
	cancel    context.CancelFunc
}

// NewEngine creates an Engine. A non positive interval uses DefaultInterval.
// parent bounds every run started by Start.
func NewEngine(parent context.Context, executions PendingLister, interval time.Duration, logger *slog.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		executions: executions,
		interval:   interval,
		parent:     parent,
		logger:     logger.With(slog.String("component", "conciliation")),
	}
}

// UpdateLongPrice sets the price used to value the accumulation.
func (e *Engine) UpdateLongPrice(price decimal.Decimal) {
	e.mu.Lock()
	e.longPrice = price
	e.mu.Unlock()
}

func (e *Engine) price() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.longPrice
}

// Accumulate sums the short quantity of every pending execution that sent
// no long order. A store failure yields an empty accumulation.
func (e *Engine) Accumulate(ctx context.Context, instanceID int64) domain.AccumulatedExecutions {
	acc := domain.AccumulatedExecutions{
		AlgoInstanceID:   instanceID,
		TotalAccumulated: decimal.Zero,
		Executions:       []domain.ConciliatedExecution{},
	}

	pending, err := e.executions.ListPendingConciliation(ctx, instanceID)
	if err != nil {
		e.logger.WarnContext(ctx, "list pending executions failed",
			slog.Int64("instance_id", instanceID),
			slog.String("error", err.Error()),
		)
		return acc
	}

	for _, exec := range pending {
		longQty, err := decimal.NewFromString(exec.Summary.LongLeg.Quantity)
		if err != nil || !longQty.IsZero() {
			continue
		}
		shortQty, err := decimal.NewFromString(exec.Summary.ShortLeg.Quantity)
		if err != nil {
			continue
		}
		acc.TotalAccumulated = acc.TotalAccumulated.Add(shortQty)
		acc.Executions = append(acc.Executions, domain.ConciliatedExecution{
			ID:             exec.ID,
			QtyAccumulated: shortQty,
		})
	}
	return acc
}

// Conciliation returns the accumulation of the instance. TotalAccumulated
// is zeroed while its value at the long price does not exceed MinUSDValue.
func (e *Engine) Conciliation(ctx context.Context, instanceID int64) domain.AccumulatedExecutions {
	acc := e.Accumulate(ctx, instanceID)
	if acc.TotalAccumulated.Mul(e.price()).GreaterThan(MinUSDValue) {
		return acc
	}
	acc.TotalAccumulated = decimal.Zero
	return acc
}

// Conciliate sends a catch-up order when the accumulation is worth it. It
// reports whether send was called.
func (e *Engine) Conciliate(ctx context.Context, instanceID int64, send SendFunc) bool {
	acc := e.Conciliation(ctx, instanceID)
	if !acc.TotalAccumulated.IsPositive() {
		return false
	}
	e.logger.InfoContext(ctx, "conciliating",
		slog.Int64("instance_id", instanceID),
		slog.String("total", acc.TotalAccumulated.String()),
		slog.Int("executions", len(acc.Executions)),
	)
	send(ctx, acc)
	return true
}

// Start runs Conciliate every interval until Stop. Starting a running engine
// has no effect.
func (e *Engine) Start(instanceID int64, send func(ctx context.Context, acc domain.AccumulatedExecutions)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(e.parent)
	e.cancel = cancel

	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Conciliate(ctx, instanceID, send)
			}
		}
	}()
}

// Stop cancels the running loop without waiting for an in flight pass. The
// engine can be started again afterwards.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// Package executor carries out the orders the algos decide on: executions
// are persisted, legs are sent to the OMS gateway, fills are paired back to
// their execution and unknown outcomes are recovered.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jthomazinho/vimana-arbitrage/internal/algo"
	"github.com/jthomazinho/vimana-arbitrage/internal/algo/arbitrage"
	"github.com/jthomazinho/vimana-arbitrage/internal/calc"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/retry"
)

// OrderSender is the OMS gateway.
type OrderSender interface {
	SendOrder(ctx context.Context, params domain.OrderParams) (domain.Order, error)
	OrderHistory(ctx context.Context, exchange string, instanceID int64) ([]domain.OrderHistory, error)
}

// Stores groups the persistence the executor writes to.
type Stores struct {
	Executions    domain.ExecutionStore
	Conciliations domain.ConciliationStore
	Orders        domain.OrderStore
}

// Hooks lets the owner of an instance observe what the executor does. Nil
// hooks are skipped.
type Hooks struct {
	// OnHistoryFill receives a fill recovered from the order history.
	OnHistoryFill retry.FillFunc
	// OnResend is called before the short leg of an execution is resent.
	OnResend func(ctx context.Context, instanceID, executionID int64)
	// OnConciliation is called once a catch-up order was accepted.
	OnConciliation func(ctx context.Context, c domain.Conciliation)
	// OnFinalized is called when the algo reaches its terminal state.
	OnFinalized func()
}

// Option configures an Executor.
type Option func(*Executor)

// WithRecorder sets the telemetry sink.
func WithRecorder(rec algo.Recorder) Option {
	return func(e *Executor) { e.rec = rec }
}

// WithRetryDelay sets the wait between two order history lookups.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Executor) { e.retryDelay = d }
}

// Executor sends the orders of one arbitrage instance.
type Executor struct {
	instanceID int64
	oms        OrderSender
	stores     Stores
	hooks      Hooks
	rec        algo.Recorder
	retryDelay time.Duration
	retry      *retry.Flow
	logger     *slog.Logger
}

// New creates the Executor of an instance. ctx bounds the scheduled order
// history lookups.
func New(ctx context.Context, instanceID int64, oms OrderSender, stores Stores, hooks Hooks, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		instanceID: instanceID,
		oms:        oms,
		stores:     stores,
		hooks:      hooks,
		rec:        algo.NopRecorder{},
		retryDelay: retry.DefaultDelay,
		logger: logger.With(
			slog.String("component", "executor"),
			slog.Int64("instance_id", instanceID),
		),
	}
	for _, opt := range opts {
		opt(e)
	}

	onFill := hooks.OnHistoryFill
	if onFill == nil {
		onFill = func(context.Context, domain.OrderFill) {}
	}
	e.retry = retry.NewFlow(ctx, retry.Config{
		Delay:    e.retryDelay,
		Exchange: arbitrage.ShortLeg.Exchange,
		Symbol:   arbitrage.ShortLeg.Symbol,
		OnResend: hooks.OnResend,
	}, e, e, onFill, logger)
	return e
}

// SendOrders persists the execution and sends both legs concurrently. A
// failure of either leg does not cancel the other one.
func (e *Executor) SendOrders(ctx context.Context, ec domain.ExecutionContext) error {
	exec, err := e.createExecution(ctx, ec, false)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := e.send(ctx, longOrder(e.instanceID, ec.QuantityLong, exec.ID))
		return err
	})
	g.Go(func() error {
		_, err := e.send(ctx, shortOrder(e.instanceID, ec.QuantityShort, exec.ID))
		return err
	})
	if err := g.Wait(); err != nil {
		return e.failed(ctx, err, exec.ID)
	}
	return nil
}

// SendShortOrder persists the execution flagged for conciliation and sends
// the short leg only.
func (e *Executor) SendShortOrder(ctx context.Context, ec domain.ExecutionContext) error {
	exec, err := e.createExecution(ctx, ec, true)
	if err != nil {
		return err
	}
	if _, err := e.send(ctx, shortOrder(e.instanceID, ec.QuantityShort, exec.ID)); err != nil {
		return e.failed(ctx, err, exec.ID)
	}
	return nil
}

// SendConciliationOrder sends the catch-up long order, then records the
// conciliation and marks the contributing executions. A rejected order leaves
// no record, so the next tick accumulates the same executions again. The
// order carries no execution id, so its fill is told apart from the fills of
// a cycle.
func (e *Executor) SendConciliationOrder(ctx context.Context, acc domain.AccumulatedExecutions) error {
	if _, err := e.send(ctx, longOrder(e.instanceID, acc.TotalAccumulated, 0)); err != nil {
		return e.failed(ctx, err, 0)
	}

	conc, err := e.stores.Conciliations.Create(ctx, domain.Conciliation{
		AlgoInstanceID: acc.AlgoInstanceID,
		Conciliation:   acc,
	})
	if err != nil {
		return fmt.Errorf("executor: create conciliation: %w", err)
	}

	ids := make([]int64, 0, len(acc.Executions))
	for _, ex := range acc.Executions {
		ids = append(ids, ex.ID)
	}
	if err := e.stores.Executions.MarkConciliated(ctx, ids, conc.ID); err != nil {
		return fmt.Errorf("executor: mark conciliated: %w", err)
	}

	e.rec.Count("conciliations")
	e.logger.InfoContext(ctx, "conciliation order sent",
		slog.Int64("conciliation_id", conc.ID),
		slog.String("quantity", acc.TotalAccumulated.String()),
		slog.Int("executions", len(ids)),
	)
	if e.hooks.OnConciliation != nil {
		e.hooks.OnConciliation(ctx, conc)
	}
	return nil
}

// GetOrderHistory looks the execution up in the short exchange history and
// hands the answer to the retry flow.
func (e *Executor) GetOrderHistory(ctx context.Context, instanceID, executionID int64) error {
	history, err := e.oms.OrderHistory(ctx, arbitrage.ShortLeg.Exchange, instanceID)
	if err != nil {
		return fmt.Errorf("executor: get order history: %w", err)
	}
	e.retry.OnHistory(ctx, instanceID, executionID, history)
	return nil
}

// ResendShortOrder sends the short leg of a persisted execution again, for
// the quantity of its summary.
func (e *Executor) ResendShortOrder(ctx context.Context, executionID int64) error {
	exec, err := e.stores.Executions.GetByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("executor: load execution %d: %w", executionID, err)
	}
	qty, err := decimal.NewFromString(exec.Summary.ShortLeg.Quantity)
	if err != nil {
		return fmt.Errorf("executor: short quantity of execution %d: %w", executionID, err)
	}
	e.rec.Count("order_retry")
	if _, err := e.send(ctx, shortOrder(e.instanceID, qty, executionID)); err != nil {
		return e.failed(ctx, err, executionID)
	}
	return nil
}

// OnFinalized drops the recovery state of the instance and notifies the
// owner.
func (e *Executor) OnFinalized() {
	e.retry.Close()
	if e.hooks.OnFinalized != nil {
		e.hooks.OnFinalized()
	}
}

func (e *Executor) createExecution(ctx context.Context, ec domain.ExecutionContext, needsConciliation bool) (domain.ArbitrageExecution, error) {
	summary, err := calc.Summarize(ec)
	if err != nil {
		return domain.ArbitrageExecution{}, fmt.Errorf("executor: summarize: %w", err)
	}
	exec, err := e.stores.Executions.Create(ctx, domain.ArbitrageExecution{
		AlgoInstanceID:    e.instanceID,
		Summary:           summary,
		Context:           ec,
		NeedsConciliation: needsConciliation,
	})
	if err != nil {
		return domain.ArbitrageExecution{}, fmt.Errorf("executor: create execution: %w", err)
	}
	return exec, nil
}

func (e *Executor) send(ctx context.Context, params domain.OrderParams) (domain.Order, error) {
	order, err := e.oms.SendOrder(ctx, params)
	if err != nil {
		return domain.Order{}, err
	}
	e.rec.Count("orders_sent")

	if order.Exchange == "" {
		order.OrderParams = params
	}
	if _, err := e.stores.Orders.Create(ctx, order); err != nil {
		e.logger.WarnContext(ctx, "order record failed",
			slog.String("exchange_order_id", order.ExchangeOrderID),
			slog.String("error", err.Error()),
		)
	}
	return order, nil
}

// failed tags err with the execution id as a *domain.SendOrderError.
func (e *Executor) failed(ctx context.Context, err error, executionID int64) error {
	out := &domain.SendOrderError{Message: err.Error(), ExecutionID: executionID, Err: err}
	var se *domain.SendOrderError
	if errors.As(err, &se) {
		out.Code = se.Code
		out.Message = se.Message
	}
	e.rec.Count("order_send_failed_" + strconv.Itoa(out.Code))
	e.logger.ErrorContext(ctx, "order send failed",
		slog.Int64("execution_id", executionID),
		slog.Int("code", out.Code),
		slog.String("error", err.Error()),
	)
	return out
}

func longOrder(instanceID int64, qty decimal.Decimal, executionID int64) domain.OrderParams {
	return domain.OrderParams{
		AlgoInstanceID: instanceID,
		Exchange:       arbitrage.LongLeg.Exchange,
		Symbol:         arbitrage.LongLeg.Symbol,
		Side:           domain.OrderSideBuy,
		Type:           domain.OrderTypeMarket,
		Quantity:       qty,
		ExecutionID:    executionID,
	}
}

func shortOrder(instanceID int64, qty decimal.Decimal, executionID int64) domain.OrderParams {
	return domain.OrderParams{
		AlgoInstanceID: instanceID,
		Exchange:       arbitrage.ShortLeg.Exchange,
		Symbol:         arbitrage.ShortLeg.Symbol,
		Side:           domain.OrderSideSell,
		Type:           domain.OrderTypeMarket,
		Quantity:       qty,
		ExecutionID:    executionID,
	}
}

var (
	_ arbitrage.Executor     = (*Executor)(nil)
	_ retry.HistoryRequester = (*Executor)(nil)
	_ retry.ShortResender    = (*Executor)(nil)
)

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jthomazinho/vimana-arbitrage/internal/algo"
	"github.com/jthomazinho/vimana-arbitrage/internal/algo/arbitrage"
	"github.com/jthomazinho/vimana-arbitrage/internal/conciliation"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/executor"
	"github.com/jthomazinho/vimana-arbitrage/internal/feed"
	"github.com/jthomazinho/vimana-arbitrage/internal/notify"
)

const defaultLegTTL = 10 * time.Minute

// ArbitrageRunner hosts a triangular arbitrage instance: the algo runs on a
// mailbox fed by the market data, fee and fill subscriptions of the instance.
type ArbitrageRunner struct {
	rt      *Runtime
	inst    domain.AlgoInstance
	mailbox *algo.Mailbox
	algo    *arbitrage.Algo
	exec    *executor.Executor
	legs    *executor.LegBook
	logger  *slog.Logger
}

func newArbitrageRunner(ctx context.Context, rt *Runtime, inst domain.AlgoInstance, onFinalized func()) *ArbitrageRunner {
	logger := rt.Logger.With(
		slog.String("component", "arbitrage_runner"),
		slog.Int64("instance_id", inst.ID),
	)
	rec := rt.recorder(inst)
	ttl := rt.Settings.LegTTL
	if ttl <= 0 {
		ttl = defaultLegTTL
	}

	r := &ArbitrageRunner{
		rt:      rt,
		inst:    inst,
		mailbox: algo.NewMailbox(rt.Settings.MailboxSize, logger),
		legs:    executor.NewLegBook(rt.Stores.Executions, ttl, logger),
		logger:  logger,
	}

	hooks := executor.Hooks{
		OnHistoryFill: func(ctx context.Context, fill domain.OrderFill) { r.onShortFill(ctx, fill) },
		OnResend: func(ctx context.Context, instanceID, executionID int64) {
			rt.notify(ctx, notify.EventOrderRetry, "Order retry",
				fmt.Sprintf("%s resends the short leg of execution %d", inst.Name(), executionID))
		},
		OnConciliation: func(ctx context.Context, c domain.Conciliation) {
			rt.notify(ctx, notify.EventConciliationSent, "Conciliation sent",
				fmt.Sprintf("%s bought %s BTC for %d executions (conciliation %d)",
					inst.Name(), c.Conciliation.TotalAccumulated, len(c.Conciliation.Executions), c.ID))
		},
		OnFinalized: onFinalized,
	}
	execOpts := []executor.Option{executor.WithRecorder(rec)}
	if rt.Settings.RetryDelay > 0 {
		execOpts = append(execOpts, executor.WithRetryDelay(rt.Settings.RetryDelay))
	}
	r.exec = executor.New(ctx, inst.ID, rt.OMS, rt.Stores, hooks, rt.Logger, execOpts...)

	engine := conciliation.NewEngine(ctx, rt.Stores.Executions, rt.Settings.ConciliationInterval, logger)
	r.algo = arbitrage.New(inst.ID, r.exec,
		arbitrage.WithDispatcher(r.mailbox),
		arbitrage.WithConciliator(engine),
		arbitrage.WithRecorder(rec),
		arbitrage.WithLogger(rt.Logger),
		arbitrage.WithDryRun(rt.Settings.DryRun),
		arbitrage.WithContext(ctx),
		arbitrage.WithTransitionListener(func(from, to arbitrage.State, _ arbitrage.Event) {
			var msg string
			if r.algo != nil {
				msg = r.algo.ErrorMsg()
			}
			rt.Audit.Record(inst, string(from), string(to), msg)
		}),
	)
	return r
}

// Instance returns the instance the runner hosts.
func (r *ArbitrageRunner) Instance() domain.AlgoInstance { return r.inst }

func (r *ArbitrageRunner) feeSlots() []feeSlot {
	return []feeSlot{
		{
			provider: arbitrage.ShortLeg.Exchange,
			services: []string{domain.ServiceTradeTaker, domain.ServiceWithdrawBRL},
			set:      r.algo.OnShortFee,
		},
		{
			provider: arbitrage.LongLeg.Exchange,
			services: []string{domain.ServiceTradeTaker, domain.ServiceWithdrawBTC},
			set:      r.algo.OnLongFee,
		},
		{
			provider: arbitrage.PegLeg.Exchange,
			services: []string{domain.ServiceExchange, domain.ServiceIOF},
			set:      r.algo.OnPegFee,
		},
	}
}

// Run drives the instance until ctx is cancelled. A failing subscription
// stops the whole runner.
func (r *ArbitrageRunner) Run(ctx context.Context) error {
	defer r.legs.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.mailbox.Run(ctx) })

	post := r.mailbox.Post
	watch := func(inst domain.Instrument, h feed.Handlers) {
		g.Go(func() error { return r.rt.Feed.Watch(ctx, inst, h) })
	}
	watch(arbitrage.ShortLeg, feed.Handlers{
		Depth:  func(d domain.Depth) { post(func() { r.algo.OnShortDepth(d) }) },
		Status: func(s domain.ServiceStatus) { post(func() { r.algo.OnStatus(s) }) },
	})
	watch(arbitrage.LongLeg, feed.Handlers{
		Depth:  func(d domain.Depth) { post(func() { r.algo.OnLongDepth(d) }) },
		Status: func(s domain.ServiceStatus) { post(func() { r.algo.OnStatus(s) }) },
	})
	watch(arbitrage.PegLeg, feed.Handlers{
		Quote:  func(q domain.Quote) { post(func() { r.algo.OnPegQuote(q) }) },
		Status: func(s domain.ServiceStatus) { post(func() { r.algo.OnPegStatus(s) }) },
	})

	slots := r.feeSlots()
	for _, run := range watchFees(ctx, r.rt.Bus, r.mailbox, slots, r.logger) {
		g.Go(run)
	}
	g.Go(func() error { return loadFees(ctx, r.rt.Fees, r.mailbox, slots) })

	g.Go(func() error {
		return subscribe(ctx, r.rt.Bus, domain.OrderFilledTopic(arbitrage.LongLeg.Exchange, r.inst.ID), r.logger,
			func(fill domain.OrderFill) { r.onLongFill(ctx, fill) })
	})
	g.Go(func() error {
		return subscribe(ctx, r.rt.Bus, domain.OrderFilledTopic(arbitrage.ShortLeg.Exchange, r.inst.ID), r.logger,
			func(fill domain.OrderFill) { r.onShortFill(ctx, fill) })
	})

	r.logger.InfoContext(ctx, "instance started", slog.Bool("dry_run", r.rt.Settings.DryRun))
	err := g.Wait()
	r.mailbox.Wait()
	if ended(err) {
		r.logger.Info("instance stopped")
		return nil
	}
	return fmt.Errorf("service: run %s: %w", r.inst.Name(), err)
}

// onLongFill books a long fill. The catch-up order of a conciliation carries
// no execution id and only adds to the executed quantity.
func (r *ArbitrageRunner) onLongFill(ctx context.Context, fill domain.OrderFill) {
	accepted, err := r.legs.SetLong(ctx, fill)
	r.logFill(ctx, "long", fill, accepted, err)
	if !accepted {
		return
	}
	if fill.Order.ExecutionID == 0 {
		qty := fill.QuantityExecuted
		if qty.IsZero() {
			qty = fill.Order.Quantity
		}
		r.mailbox.Post(func() { r.algo.OnConciliationFilled(qty) })
		return
	}
	r.mailbox.Post(r.algo.OnLongOrderFilled)
}

func (r *ArbitrageRunner) onShortFill(ctx context.Context, fill domain.OrderFill) {
	accepted, err := r.legs.SetShort(ctx, fill)
	r.logFill(ctx, "short", fill, accepted, err)
	if !accepted {
		return
	}
	r.mailbox.Post(r.algo.OnShortOrderFilled)
}

func (r *ArbitrageRunner) logFill(ctx context.Context, leg string, fill domain.OrderFill, accepted bool, err error) {
	attrs := []any{
		slog.String("leg", leg),
		slog.Int64("execution_id", fill.Order.ExecutionID),
		slog.String("exchange_order_id", fill.Order.ExchangeOrderID),
		slog.String("quantity_executed", fill.QuantityExecuted.String()),
	}
	switch {
	case err != nil:
		r.logger.ErrorContext(ctx, "fill bookkeeping failed", append(attrs, slog.String("error", err.Error()))...)
	case !accepted:
		r.logger.DebugContext(ctx, "duplicate fill dropped", attrs...)
	default:
		r.logger.InfoContext(ctx, "order filled", attrs...)
	}
}

// Data returns the public view of the instance.
func (r *ArbitrageRunner) Data(ctx context.Context) (domain.AlgoData, error) {
	var data domain.AlgoData
	err := do(ctx, r.mailbox, func() { data = r.algo.Data() })
	return data, err
}

// SetInput parses and applies the operator parameters.
func (r *ArbitrageRunner) SetInput(ctx context.Context, params map[string]string) (domain.AlgoData, error) {
	in, err := ParseArbitrageInput(params)
	if err != nil {
		return domain.AlgoData{}, err
	}
	var (
		data     domain.AlgoData
		inputErr error
	)
	if err := do(ctx, r.mailbox, func() {
		if inputErr = r.algo.SetInput(in); inputErr == nil {
			data = r.algo.Data()
		}
	}); err != nil {
		return domain.AlgoData{}, err
	}
	return data, inputErr
}

// TogglePause pauses or resumes the instance.
func (r *ArbitrageRunner) TogglePause(ctx context.Context) error {
	return do(ctx, r.mailbox, r.algo.TogglePause)
}

// Finalize ends the instance.
func (r *ArbitrageRunner) Finalize(ctx context.Context) error {
	return do(ctx, r.mailbox, r.algo.Finalize)
}

// Requote is not supported by the arbitrage.
func (r *ArbitrageRunner) Requote(context.Context) error {
	return domain.NewInputValidationError("requote is not supported by %s", r.inst.AlgoKind)
}

var _ Runner = (*ArbitrageRunner)(nil)

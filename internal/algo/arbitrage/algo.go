// Package arbitrage implements the BTC-BRL / BTC-USD / USD-BRL triangular
// arbitrage algo.
//
// An Algo is an actor: every exported method must be called from the event
// loop of its Dispatcher. Blocking collaborator calls leave the loop through
// Dispatcher.Go and their outcome re-enters it through Dispatcher.Post.
package arbitrage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/algo"
	"github.com/jthomazinho/vimana-arbitrage/internal/calc"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/fsm"
)

// Legs of the triangular arbitrage.
var (
	ShortLeg = domain.Instrument{Exchange: "foxbit", Symbol: "btcbrl"}
	LongLeg  = domain.Instrument{Exchange: "bitstamp", Symbol: "btcusd"}
	PegLeg   = domain.Instrument{Exchange: "plural", Symbol: "usdbrl"}
)

// MinManualPegQuote is the lowest accepted manual peg quote.
var MinManualPegQuote = decimal.RequireFromString("4.5")

// Option configures an Algo.
type Option func(*Algo)

// WithDispatcher sets the event loop the algo runs on. Defaults to
// algo.Inline.
func WithDispatcher(d algo.Dispatcher) Option {
	return func(a *Algo) { a.disp = d }
}

// WithConciliator sets the conciliation engine started while monitoring.
func WithConciliator(c Conciliator) Option {
	return func(a *Algo) { a.conc = c }
}

// WithRecorder sets the telemetry sink.
func WithRecorder(r algo.Recorder) Option {
	return func(a *Algo) { a.rec = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Algo) { a.logger = l }
}

// WithDryRun makes the algo compute opportunities without sending orders.
func WithDryRun(dry bool) Option {
	return func(a *Algo) { a.dryRun = dry }
}

// WithContext sets the context passed to executor calls.
func WithContext(ctx context.Context) Option {
	return func(a *Algo) { a.ctx = ctx }
}

// WithTransitionListener registers fn before the machine starts.
func WithTransitionListener(fn func(from, to State, event Event)) Option {
	return func(a *Algo) { a.listeners = append(a.listeners, fn) }
}

// Algo is one running triangular arbitrage instance.
type Algo struct {
	id     int64
	exec   Executor
	conc   Conciliator
	disp   algo.Dispatcher
	rec    algo.Recorder
	logger *slog.Logger
	ctx    context.Context
	dryRun bool

	machine   *fsm.Machine[State, Event]
	listeners []func(from, to State, event Event)

	params domain.ArbitrageInput

	fees      domain.ArbitrageFees
	factors   calc.FeeFactors
	factorsOK bool

	shortBestOffer   *domain.DepthLevel
	shortBook        domain.Depth
	longBestOffer    *domain.DepthLevel
	longBook         domain.Depth
	pegPrice         decimal.NullDecimal
	usingManualQuote bool

	marketSpread decimal.Decimal
	orderQty     decimal.NullDecimal
	errorMsg     string

	longQtyExecuted  decimal.Decimal
	shortQtyExecuted decimal.Decimal
	waitingQty       decimal.Decimal
	noWaitingOrders  int
}

// New builds an algo for instance id and starts it in Initializing.
func New(id int64, exec Executor, opts ...Option) *Algo {
	a := &Algo{
		id:           id,
		exec:         exec,
		conc:         nopConciliator{},
		disp:         algo.Inline{},
		rec:          algo.NopRecorder{},
		logger:       slog.Default(),
		ctx:          context.Background(),
		marketSpread: decimal.NewFromInt(1),
		params: domain.ArbitrageInput{
			CrowdFactor: decimal.NewFromInt(1),
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(
		slog.String("component", "arbitrage"),
		slog.Int64("instance_id", id),
	)

	a.machine = fsm.New(a.definition())
	a.machine.OnTransition(func(from, to State, event Event) {
		a.logger.Debug("transition",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.String("event", string(event)),
		)
		a.rec.Count("transition_" + string(to))
	})
	for _, fn := range a.listeners {
		a.machine.OnTransition(fn)
	}
	a.machine.Start()
	return a
}

// ID returns the instance id.
func (a *Algo) ID() int64 { return a.id }

// State returns the current state.
func (a *Algo) State() State { return a.machine.State() }

// ErrorMsg returns the last error recorded.
func (a *Algo) ErrorMsg() string { return a.errorMsg }

// UsingManualQuote reports whether the peg price is the manual quote.
func (a *Algo) UsingManualQuote() bool { return a.usingManualQuote }

// TogglePause pauses a trading algo or resumes a paused one. Other states
// ignore it.
func (a *Algo) TogglePause() {
	switch a.State() {
	case StatePaused:
		a.machine.Send(EventResumePlease)
	case StateMonitoring, StateWaitingOrders:
		a.machine.Send(EventPausePlease)
	}
}

// Finalize ends the instance from any non terminal state.
func (a *Algo) Finalize() {
	a.machine.Send(EventFinalizePlease)
}

// SetInput replaces the parameters as a whole. An invalid input returns an
// *domain.InputValidationError and leaves the previous parameters in place.
func (a *Algo) SetInput(in domain.ArbitrageInput) error {
	if err := ValidateInput(in); err != nil {
		return err
	}
	a.params = in
	a.updated()
	return nil
}

// ValidateInput checks a full parameter set.
func ValidateInput(in domain.ArbitrageInput) error {
	if !validInput(in) {
		return domain.NewInputValidationError("Invalid input")
	}
	if in.ManualPegQuote.IsPositive() && in.ManualPegQuote.LessThan(MinManualPegQuote) {
		return domain.NewInputValidationError("Manual Quote must be greater or equal than %s", MinManualPegQuote.String())
	}
	return nil
}

func validInput(in domain.ArbitrageInput) bool {
	return in.TotalQuantity.IsPositive() &&
		in.MaxOrderQuantity.IsPositive() &&
		in.CrowdFactor.IsPositive() &&
		in.CrowdFactor.LessThanOrEqual(decimal.NewFromInt(1)) &&
		!in.ManualPegQuote.IsNegative()
}

// Input returns the current parameters as strings.
func (a *Algo) Input() map[string]string {
	return map[string]string{
		"totalQuantity":    a.params.TotalQuantity.String(),
		"maxOrderQuantity": a.params.MaxOrderQuantity.String(),
		"targetSpread":     a.params.TargetSpread.String(),
		"crowdFactor":      a.params.CrowdFactor.String(),
		"manualPegQuote":   a.params.ManualPegQuote.String(),
	}
}

// Parameters returns the current parameters.
func (a *Algo) Parameters() domain.ArbitrageInput { return a.params }

// PegPrice returns the peg price in use, market or manual.
func (a *Algo) PegPrice() (decimal.Decimal, bool) {
	return a.pegPrice.Decimal, a.pegPrice.Valid
}

// SetPegPrice overrides the peg price without touching the manual flag.
func (a *Algo) SetPegPrice(price decimal.Decimal) {
	a.pegPrice = decimal.NewNullDecimal(price)
}

// DefinePegPriceManual falls back to the manual peg quote while the market
// one is missing or zero.
func (a *Algo) DefinePegPriceManual() {
	if a.pegPrice.Valid && !a.pegPrice.Decimal.IsZero() {
		return
	}
	if a.params.ManualPegQuote.IsZero() {
		return
	}
	a.usingManualQuote = true
	a.pegPrice = decimal.NewNullDecimal(a.params.ManualPegQuote)
	a.rec.Gauge("md_peg", a.params.ManualPegQuote)
}

// OnShortDepth takes the best bid of the short book.
func (a *Algo) OnShortDepth(book domain.Depth) {
	a.shortBestOffer = book.BestBid()
	a.shortBook = book
	if a.shortBestOffer != nil {
		a.rec.Gauge("md_short", a.shortBestOffer.Price)
	}
	a.updated()
}

// OnLongDepth takes the best ask of the long book.
func (a *Algo) OnLongDepth(book domain.Depth) {
	a.longBestOffer = book.BestAsk()
	a.longBook = book
	if a.longBestOffer != nil {
		a.rec.Gauge("md_long", a.longBestOffer.Price)
		a.conc.UpdateLongPrice(a.longBestOffer.Price)
	}
	a.updated()
}

// OnPegQuote takes a market peg quote. Any market quote clears the manual
// quote flag, even a zero one.
func (a *Algo) OnPegQuote(quote domain.Quote) {
	a.usingManualQuote = false
	a.pegPrice = decimal.NewNullDecimal(quote.Price)
	a.rec.Gauge("md_peg", quote.Price)
	a.updated()
}

// OnStatus handles the status of the short and long feeds.
func (a *Algo) OnStatus(status domain.ServiceStatus) {
	if status.Available {
		return
	}
	a.OnMDError(status.Message)
}

// OnPegStatus handles the status of the peg feed. Losing it is tolerated
// while initializing or when the manual quote is in use.
func (a *Algo) OnPegStatus(status domain.ServiceStatus) {
	if status.Available {
		return
	}
	if a.State() == StateInitializing || a.usingManualQuote {
		return
	}
	a.OnMDError(status.Message)
}

// OnMDError moves the algo to Error.
func (a *Algo) OnMDError(msg string) {
	a.rec.Count("md_error")
	a.handleError(msg)
}

// OnShortFee sets a short leg fee. Services other than trade-taker and
// withdraw-brl are ignored.
func (a *Algo) OnShortFee(service string, fee *domain.Fee) {
	switch service {
	case domain.ServiceTradeTaker:
		a.fees.ShortTradeTaker = fee
	case domain.ServiceWithdrawBRL:
		a.fees.ShortWithdrawBRL = fee
	default:
		return
	}
	a.feeUpdated()
}

// OnLongFee sets a long leg fee. Services other than trade-taker and
// withdraw-btc are ignored.
func (a *Algo) OnLongFee(service string, fee *domain.Fee) {
	switch service {
	case domain.ServiceTradeTaker:
		a.fees.LongTradeTaker = fee
	case domain.ServiceWithdrawBTC:
		a.fees.LongWithdrawBTC = fee
	default:
		return
	}
	a.feeUpdated()
}

// OnPegFee sets a peg leg fee. Services other than exchange and iof are
// ignored.
func (a *Algo) OnPegFee(service string, fee *domain.Fee) {
	switch service {
	case domain.ServiceExchange:
		a.fees.PegExchange = fee
	case domain.ServiceIOF:
		a.fees.PegIOF = fee
	default:
		return
	}
	a.feeUpdated()
}

func (a *Algo) feeUpdated() {
	if f, ok := calc.NewFeeFactors(a.fees); ok {
		a.factors, a.factorsOK = f, true
	}
	a.updated()
}

// OnLongOrderFilled accounts a fill of the long leg.
func (a *Algo) OnLongOrderFilled() {
	a.longQtyExecuted = a.longQtyExecuted.Add(a.waitingQty)
	a.noWaitingOrders--
	a.rec.Gauge("long_qty_executed", a.longQtyExecuted)
	a.machine.Send(EventWaitOrdersOk)
}

// OnShortOrderFilled accounts a fill of the short leg.
func (a *Algo) OnShortOrderFilled() {
	a.shortQtyExecuted = a.shortQtyExecuted.Add(a.waitingQty)
	a.noWaitingOrders--
	a.rec.Gauge("short_qty_executed", a.shortQtyExecuted)
	a.machine.Send(EventWaitOrdersOk)
}

// OnConciliationFilled accounts the catch-up long order of a conciliation.
// It is not part of any cycle, so no outstanding order is released.
func (a *Algo) OnConciliationFilled(qty decimal.Decimal) {
	a.longQtyExecuted = a.longQtyExecuted.Add(qty)
	a.rec.Gauge("long_qty_executed", a.longQtyExecuted)
	if a.State() == StateMonitoring && a.OperationDone() {
		a.machine.Send(EventFinalizePlease)
	}
}

func (a *Algo) ordersDone() bool {
	done := a.noWaitingOrders == 0
	if done {
		a.waitingQty = decimal.Zero
	}
	a.rec.Count("orders_done")
	return done
}

// OperationDone reports whether both legs reached the total quantity.
func (a *Algo) OperationDone() bool {
	return a.longQtyExecuted.GreaterThanOrEqual(a.params.TotalQuantity) &&
		a.shortQtyExecuted.GreaterThanOrEqual(a.params.TotalQuantity)
}

// updated reacts to any parameter, market data or fee change according to
// the current state.
func (a *Algo) updated() {
	switch a.State() {
	case StateInitializing:
		a.checkInitialization()
	case StateMonitoring:
		a.recalculate()
	}
}

func (a *Algo) initializationOK() bool {
	a.DefinePegPriceManual()

	mdOK := a.shortBestOffer != nil &&
		a.longBestOffer != nil &&
		a.pegPrice.Valid && !a.pegPrice.Decimal.IsZero()

	return mdOK && a.fees.Complete() && validInput(a.params)
}

func (a *Algo) checkInitialization() {
	if a.initializationOK() {
		a.rec.Count("initialized")
		a.machine.Send(EventInitializingOk)
	}
}

func (a *Algo) recalculate() {
	a.DefinePegPriceManual()

	if a.longBestOffer != nil {
		a.conc.UpdateLongPrice(a.longBestOffer.Price)
	}
	if !a.factorsOK || a.shortBestOffer == nil || a.longBestOffer == nil ||
		!a.pegPrice.Valid || a.pegPrice.Decimal.IsZero() {
		a.orderQty = decimal.NullDecimal{}
		return
	}

	a.marketSpread = calc.MarketSpread(a.factors,
		a.shortBestOffer.Price, a.longBestOffer.Price, a.pegPrice.Decimal)
	a.rec.Gauge("market_spread", a.marketSpread)

	if !a.marketSpread.GreaterThan(a.params.TargetSpread) {
		a.orderQty = decimal.NullDecimal{}
		return
	}

	qty := calc.OrderQuantity(a.shortBestOffer.Quantity, a.longBestOffer.Quantity, a.params, a.longQtyExecuted)
	if !qty.IsPositive() {
		a.orderQty = decimal.NullDecimal{}
		return
	}
	a.orderQty = decimal.NewNullDecimal(qty)
	short, long := calc.LegQuantities(qty, a.longBestOffer.Price)

	if a.dryRun {
		return
	}
	a.startExecution(short, long)
}

func (a *Algo) snapshot(short, long decimal.Decimal) domain.ExecutionContext {
	return domain.ExecutionContext{
		QuantityShort:  short,
		QuantityLong:   long,
		ShortBestOffer: *a.shortBestOffer,
		LongBestOffer:  *a.longBestOffer,
		PegPrice:       a.pegPrice.Decimal,
		MarketSpread:   a.marketSpread,
		Fees:           a.fees.Clone(),
		Parameters:     a.params,
		ShortBook:      cloneDepth(a.shortBook),
		LongBook:       cloneDepth(a.longBook),
	}
}

func cloneDepth(d domain.Depth) domain.Depth {
	return domain.Depth{
		Instrument: d.Instrument,
		Bids:       append([]domain.DepthLevel(nil), d.Bids...),
		Asks:       append([]domain.DepthLevel(nil), d.Asks...),
	}
}

// startExecution records the orders as in flight and moves to WaitingOrders
// before any order leaves, so a fill can never arrive for an order the algo
// does not know about.
func (a *Algo) startExecution(short, long decimal.Decimal) {
	ec := a.snapshot(short, long)

	a.waitingQty = short
	send := a.exec.SendShortOrder
	a.noWaitingOrders = 1
	if long.IsPositive() {
		send = a.exec.SendOrders
		a.noWaitingOrders = 2
	}
	a.machine.Send(EventWaitOrdersPlease)

	ctx := a.ctx
	a.disp.Go(func() {
		if err := send(ctx, ec); err != nil {
			a.disp.Post(func() { a.handleSendOrderError(err) })
		}
	})
}

func (a *Algo) handleSendOrderError(err error) {
	a.rec.Count("order_send_error")
	var sendErr *domain.SendOrderError
	if errors.As(err, &sendErr) && sendErr.IsGatewayTimeout() {
		a.errorMsg = sendErr.Error()
		a.rec.Count("waiting_order_response")
		a.rec.Count("error")
		a.logger.Warn("order outcome unknown, recovering from history",
			slog.Int64("execution_id", sendErr.ExecutionID),
			slog.String("error", a.errorMsg),
		)
		a.machine.Send(EventWaitOrderResponse)
		a.startRetryFlow(sendErr.ExecutionID)
		return
	}
	a.handleError(err.Error())
}

func (a *Algo) startRetryFlow(executionID int64) {
	ctx, id := a.ctx, a.id
	a.disp.Go(func() {
		if err := a.exec.GetOrderHistory(ctx, id, executionID); err != nil {
			a.disp.Post(func() { a.handleError(err.Error()) })
		}
	})
}

func (a *Algo) handleError(msg string) {
	a.errorMsg = msg
	a.logger.Error("algo error", slog.String("state", string(a.State())), slog.String("error", msg))
	a.rec.Count("error")
	a.machine.Send(EventErrorDetected)
}

func (a *Algo) disableResponses() {
	a.orderQty = decimal.NullDecimal{}
}

func (a *Algo) startConciliation() {
	exec, logger := a.exec, a.logger
	a.conc.Start(a.id, func(ctx context.Context, acc domain.AccumulatedExecutions) {
		if err := exec.SendConciliationOrder(ctx, acc); err != nil {
			logger.Error("send conciliation order", slog.String("error", err.Error()))
		}
	})
}

func (a *Algo) onEnterInitializing() {
	a.checkInitialization()
}

func (a *Algo) onEnterMonitoring() {
	if a.noWaitingOrders != 0 {
		a.machine.Send(EventWaitOrdersPlease)
		return
	}
	if a.OperationDone() {
		a.machine.Send(EventFinalizePlease)
		return
	}
	a.startConciliation()
	a.recalculate()
}

func (a *Algo) onEnterWaitingOrders() {
	a.disableResponses()
}

// WaitingOrderResponse is never a resting state: the order outcome is
// unknown, so the algo stops and lets the retry flow and the operator
// reconcile it.
func (a *Algo) onEnterWaitingOrderResponse() {
	a.machine.Send(EventErrorDetected)
}

func (a *Algo) onEnterPausing() {
	a.disableResponses()
	a.conc.Stop()
	a.machine.Send(EventPauseOk)
}

func (a *Algo) onEnterPaused() {}

func (a *Algo) onEnterError() {
	a.disableResponses()
	a.conc.Stop()
}

func (a *Algo) onEnterFinalizing() {
	a.disableResponses()
	a.conc.Stop()
	a.machine.Send(EventFinalizeOk)
}

func (a *Algo) onEnterFinalized() {
	a.exec.OnFinalized()
}

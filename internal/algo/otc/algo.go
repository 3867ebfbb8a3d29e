// Package otc implements the OTC quoting algo. It never trades: it keeps a
// BRL price for BTC up to date from the long book, the peg quote and the
// configured spread.
package otc

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/algo"
	"github.com/jthomazinho/vimana-arbitrage/internal/calc"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/fsm"
)

var (
	LongLeg = domain.Instrument{Exchange: "bitstamp", Symbol: "btcusd"}
	PegLeg  = domain.Instrument{Exchange: "plural", Symbol: "usdbrl"}
)

// DepthWindow is the BTC quantity the quote price is averaged over.
var DepthWindow = decimal.NewFromInt(5)

// MinManualPegQuote is the lowest accepted manual peg quote.
var MinManualPegQuote = decimal.RequireFromString("4.5")

type State string

const (
	StateInitializing State = "initializing"
	StateQuote        State = "quote"
	StatePausing      State = "pausing"
	StatePaused       State = "paused"
	StateError        State = "error"
	StateFinalizing   State = "finalizing"
	StateFinalized    State = "finalized"
)

type Event string

const (
	EventInitializingOk Event = "initializeOk"
	EventQuoteOk        Event = "QuoteOk"
	EventPausePlease    Event = "pausePlease"
	EventPauseOk        Event = "pauseOk"
	EventResumePlease   Event = "resumePlease"
	EventErrorDetected  Event = "errorDetected"
	EventFinalizePlease Event = "finalizePlease"
	EventFinalizeOk     Event = "finalizeOk"
)

// Executor publishes what the algo computes.
type Executor interface {
	// SetQuote publishes a new quote price. It may block.
	SetQuote(ctx context.Context, price decimal.Decimal) error
	OnFinalized()
}

type Option func(*Algo)

func WithDispatcher(d algo.Dispatcher) Option { return func(a *Algo) { a.disp = d } }
func WithRecorder(r algo.Recorder) Option     { return func(a *Algo) { a.rec = r } }
func WithLogger(l *slog.Logger) Option        { return func(a *Algo) { a.logger = l } }
func WithContext(ctx context.Context) Option  { return func(a *Algo) { a.ctx = ctx } }

// WithTransitionListener registers fn before the machine starts.
func WithTransitionListener(fn func(from, to State, event Event)) Option {
	return func(a *Algo) { a.listeners = append(a.listeners, fn) }
}

// Algo is one OTC quoting instance. Like the arbitrage algo it must only be
// driven from its dispatcher's event loop.
type Algo struct {
	id     int64
	exec   Executor
	disp   algo.Dispatcher
	rec    algo.Recorder
	logger *slog.Logger
	ctx    context.Context

	machine   *fsm.Machine[State, Event]
	listeners []func(from, to State, event Event)

	params domain.OTCInput
	fees   domain.ArbitrageFees

	longBestOffer    *domain.DepthLevel
	longBook         domain.Depth
	pegPrice         decimal.NullDecimal
	usingManualQuote bool

	quotePrice        decimal.Decimal
	averageDepthPrice decimal.Decimal
	errorMsg          string
}

// New builds an OTC algo and starts it in Initializing.
func New(id int64, exec Executor, opts ...Option) *Algo {
	a := &Algo{
		id:     id,
		exec:   exec,
		disp:   algo.Inline{},
		rec:    algo.NopRecorder{},
		logger: slog.Default(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("component", "otc"), slog.Int64("instance_id", id))

	a.machine = fsm.New(fsm.Definition[State, Event]{
		Initial: StateInitializing,
		States: map[State]fsm.State[State, Event]{
			StateInitializing: {
				Entry: a.checkInitialization,
				On: map[Event]fsm.Transition[State]{
					EventInitializingOk: {To: StateQuote},
					EventPausePlease:    {To: StatePausing},
					EventFinalizePlease: {To: StateFinalizing},
					EventErrorDetected:  {To: StateError},
				},
			},
			StateQuote: {
				Entry: a.quote,
				On: map[Event]fsm.Transition[State]{
					EventQuoteOk:        {To: StateQuote},
					EventPausePlease:    {To: StatePausing},
					EventFinalizePlease: {To: StateFinalizing},
					EventErrorDetected:  {To: StateError},
				},
			},
			StatePausing: {
				Entry: func() { a.machine.Send(EventPauseOk) },
				On: map[Event]fsm.Transition[State]{
					EventPauseOk: {To: StatePaused},
				},
			},
			StatePaused: {
				On: map[Event]fsm.Transition[State]{
					EventResumePlease:   {To: StateQuote},
					EventFinalizePlease: {To: StateFinalizing},
					EventErrorDetected:  {To: StateError},
				},
			},
			StateError: {
				On: map[Event]fsm.Transition[State]{
					EventFinalizePlease: {To: StateFinalizing},
				},
			},
			StateFinalizing: {
				Entry: func() { a.machine.Send(EventFinalizeOk) },
				On: map[Event]fsm.Transition[State]{
					EventFinalizeOk: {To: StateFinalized},
				},
			},
			StateFinalized: {
				Entry: func() { a.exec.OnFinalized() },
			},
		},
	})
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

func (a *Algo) ID() int64        { return a.id }
func (a *Algo) State() State     { return a.machine.State() }
func (a *Algo) ErrorMsg() string { return a.errorMsg }

// QuotePrice returns the last computed quote.
func (a *Algo) QuotePrice() decimal.Decimal { return a.quotePrice }

// UsingManualQuote reports whether the peg price is the manual quote.
func (a *Algo) UsingManualQuote() bool { return a.usingManualQuote }

func (a *Algo) TogglePause() {
	switch a.State() {
	case StatePaused:
		a.machine.Send(EventResumePlease)
	case StateQuote:
		a.machine.Send(EventPausePlease)
	}
}

func (a *Algo) Finalize() {
	a.machine.Send(EventFinalizePlease)
}

// Requote recomputes and republishes the quote. Only effective in Quote.
func (a *Algo) Requote() {
	a.machine.Send(EventQuoteOk)
}

// SetInput replaces the parameters as a whole.
func (a *Algo) SetInput(in domain.OTCInput) error {
	if err := ValidateInput(in); err != nil {
		return err
	}
	a.params = in
	a.updated()
	return nil
}

// ValidateInput checks a full parameter set.
func ValidateInput(in domain.OTCInput) error {
	if !in.QuoteSpread.IsPositive() || in.ManualPegQuote.IsNegative() {
		return domain.NewInputValidationError("Invalid input")
	}
	if in.ManualPegQuote.IsPositive() && in.ManualPegQuote.LessThan(MinManualPegQuote) {
		return domain.NewInputValidationError("Manual Quote must be greater or equal than %s", MinManualPegQuote.String())
	}
	return nil
}

func (a *Algo) Input() map[string]string {
	return map[string]string{
		"quoteSpread":    a.params.QuoteSpread.String(),
		"manualPegQuote": a.params.ManualPegQuote.String(),
	}
}

// PegPrice returns the peg price in use, market or manual.
func (a *Algo) PegPrice() (decimal.Decimal, bool) {
	return a.pegPrice.Decimal, a.pegPrice.Valid
}

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
}

func (a *Algo) OnLongDepth(book domain.Depth) {
	a.longBestOffer = book.BestAsk()
	a.longBook = book
	a.updated()
}

func (a *Algo) OnPegQuote(quote domain.Quote) {
	a.usingManualQuote = false
	a.pegPrice = decimal.NewNullDecimal(quote.Price)
	a.updated()
}

func (a *Algo) OnStatus(status domain.ServiceStatus) {
	if !status.Available {
		a.OnMDError(status.Message)
	}
}

// OnPegStatus tolerates losing the peg feed while initializing or while the
// manual quote is in use.
func (a *Algo) OnPegStatus(status domain.ServiceStatus) {
	if status.Available || a.State() == StateInitializing || a.usingManualQuote {
		return
	}
	a.OnMDError(status.Message)
}

func (a *Algo) OnMDError(msg string) {
	a.rec.Count("md_error")
	a.errorMsg = msg
	a.logger.Error("market data error", slog.String("error", msg))
	a.machine.Send(EventErrorDetected)
}

// OnLongFee sets a long leg fee; other services are ignored.
func (a *Algo) OnLongFee(service string, fee *domain.Fee) {
	switch service {
	case domain.ServiceTradeTaker:
		a.fees.LongTradeTaker = fee
	case domain.ServiceWithdrawBTC:
		a.fees.LongWithdrawBTC = fee
	default:
		return
	}
	a.updated()
}

// OnPegFee sets a peg leg fee; other services are ignored.
func (a *Algo) OnPegFee(service string, fee *domain.Fee) {
	switch service {
	case domain.ServiceExchange:
		a.fees.PegExchange = fee
	case domain.ServiceIOF:
		a.fees.PegIOF = fee
	default:
		return
	}
	a.updated()
}

func (a *Algo) updated() {
	switch a.State() {
	case StateInitializing:
		a.checkInitialization()
	case StateQuote:
		a.quote()
	}
}

func (a *Algo) checkInitialization() {
	a.DefinePegPriceManual()
	mdOK := a.longBestOffer != nil && a.pegPrice.Valid && !a.pegPrice.Decimal.IsZero()
	feesOK := a.fees.PegIOF != nil && a.fees.PegExchange != nil
	if mdOK && feesOK && ValidateInput(a.params) == nil {
		a.machine.Send(EventInitializingOk)
	}
}

func rateOf(fee *domain.Fee) decimal.Decimal {
	if fee == nil {
		return decimal.Zero
	}
	return fee.Rate
}

// longFee is 1 - long trade taker once the fees needed for a quote are known.
func (a *Algo) longFee() decimal.Decimal {
	if a.fees.PegExchange == nil || a.fees.PegIOF == nil || a.fees.LongTradeTaker == nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Sub(a.fees.LongTradeTaker.Rate)
}

func (a *Algo) quote() {
	a.DefinePegPriceManual()

	a.averageDepthPrice = calc.WeightedAveragePrice(calc.TrimAsks(a.longBook, DepthWindow))
	a.quotePrice = calc.OTCQuote{
		AveragePrice: a.averageDepthPrice,
		PegPrice:     a.pegPrice.Decimal,
		ExchangeRate: rateOf(a.fees.PegExchange),
		IOFRate:      rateOf(a.fees.PegIOF),
		LongFee:      a.longFee(),
		QuoteSpread:  a.params.QuoteSpread,
	}.Price()
	a.rec.Gauge("otc_quote", a.quotePrice)

	if !a.quotePrice.IsPositive() {
		return
	}
	price, ctx := a.quotePrice, a.ctx
	a.disp.Go(func() {
		if err := a.exec.SetQuote(ctx, price); err != nil {
			a.logger.Warn("publish quote", slog.String("error", err.Error()))
		}
	})
}

func (a *Algo) Output() map[string]string {
	out := map[string]string{
		"state":             string(a.State()),
		"errorMsg":          a.errorMsg,
		"longLeg":           LongLeg.String(),
		"longBestOffer":     calc.FormatDepthLevel(a.longBestOffer),
		"pegLeg":            PegLeg.String(),
		"pegPrice":          calc.FormatPrice(a.pegPrice),
		"quotePrice":        calc.FormatPrice(decimal.NewNullDecimal(a.quotePrice)),
		"averageDepthPrice": calc.FormatPrice(decimal.NewNullDecimal(a.averageDepthPrice)),
	}
	if a.usingManualQuote {
		out["usingManualQuote"] = "true"
	}
	for _, fee := range []*domain.Fee{
		a.fees.LongTradeTaker,
		a.fees.LongWithdrawBTC,
		a.fees.PegIOF,
		a.fees.PegExchange,
	} {
		out[calc.FormatFeeService(fee)] = calc.FormatFeeNumbers(fee)
	}
	return out
}

func (a *Algo) Data() domain.AlgoData {
	return domain.AlgoData{
		State:  strings.ToUpper(string(a.State())),
		Output: a.Output(),
		Input:  a.Input(),
	}
}

// Package retry recovers an order send whose outcome is unknown. The short
// exchange order history is searched for the execution; a match becomes a
// fill, a miss is looked up again and resent on the second miss.
package retry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

const DefaultDelay = 3 * time.Second

// CheckOrderPlaced returns the history row whose client order id is the
// execution id. With several matches the last one wins.
func CheckOrderPlaced(executionID int64, history []domain.OrderHistory) (domain.OrderHistory, bool) {
	var (
		found domain.OrderHistory
		ok    bool
	)
	for _, order := range history {
		if order.ClientOrderID == executionID {
			found, ok = order, true
		}
	}
	return found, ok
}

// Tracker counts the failed lookups of each execution.
type Tracker struct {
	mu       sync.Mutex
	attempts map[int64]int
}

func NewTracker() *Tracker {
	return &Tracker{attempts: make(map[int64]int)}
}

// IsRetryNeeded records a failed lookup and reports whether it was not the
// first one for the execution.
func (t *Tracker) IsRetryNeeded(executionID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[executionID]++
	return t.attempts[executionID] > 1
}

// Attempts returns the failed lookups recorded for the execution.
func (t *Tracker) Attempts(executionID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[executionID]
}

// Forget drops the counters of the given executions, or all of them when
// none is given.
func (t *Tracker) Forget(executionIDs ...int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(executionIDs) == 0 {
		clear(t.attempts)
		return
	}
	for _, id := range executionIDs {
		delete(t.attempts, id)
	}
}

// HistoryRequester triggers a new order history lookup.
type HistoryRequester interface {
	GetOrderHistory(ctx context.Context, instanceID, executionID int64) error
}

// ShortResender sends the short leg of a persisted execution again.
type ShortResender interface {
	ResendShortOrder(ctx context.Context, executionID int64) error
}

// FillFunc receives a fill synthesized from the order history.
type FillFunc func(ctx context.Context, fill domain.OrderFill)

// Config tunes a Flow.
type Config struct {
	Delay    time.Duration
	Exchange string
	Symbol   string
	// OnResend is called before a resend, for notifications.
	OnResend func(ctx context.Context, instanceID, executionID int64)
}

// Flow drives the recovery of one instance. Pending lookups are cancelled
// and counters dropped by Close.
type Flow struct {
	cfg       Config
	tracker   *Tracker
	requester HistoryRequester
	resender  ShortResender
	onFill    FillFunc
	logger    *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	timers map[int64]*time.Timer
}

// NewFlow creates a Flow bound to parent.
func NewFlow(parent context.Context, cfg Config, requester HistoryRequester, resender ShortResender, onFill FillFunc, logger *slog.Logger) *Flow {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	ctx, cancel := context.WithCancel(parent)
	return &Flow{
		cfg:       cfg,
		tracker:   NewTracker(),
		requester: requester,
		resender:  resender,
		onFill:    onFill,
		logger:    logger.With(slog.String("component", "retry")),
		ctx:       ctx,
		cancel:    cancel,
		timers:    make(map[int64]*time.Timer),
	}
}

// OnHistory handles the order history returned for an execution.
func (f *Flow) OnHistory(ctx context.Context, instanceID, executionID int64, history []domain.OrderHistory) {
	log := f.logger.With(
		slog.Int64("instance_id", instanceID),
		slog.Int64("execution_id", executionID),
	)

	if order, ok := CheckOrderPlaced(executionID, history); ok {
		log.InfoContext(ctx, "order found in history",
			slog.Int64("order_id", order.OrderID),
			slog.String("quantity_executed", order.QuantityExecuted.String()),
		)
		f.onFill(ctx, f.fillFromHistory(instanceID, executionID, order))
		return
	}

	if f.tracker.IsRetryNeeded(executionID) {
		log.WarnContext(ctx, "order not found in history, resending short leg",
			slog.Int("attempts", f.tracker.Attempts(executionID)),
		)
		if f.cfg.OnResend != nil {
			f.cfg.OnResend(ctx, instanceID, executionID)
		}
		if err := f.resender.ResendShortOrder(ctx, executionID); err != nil {
			log.ErrorContext(ctx, "resend short order failed", slog.String("error", err.Error()))
		}
		return
	}

	log.InfoContext(ctx, "order not found in history, looking again",
		slog.Duration("delay", f.cfg.Delay),
	)
	f.schedule(instanceID, executionID)
}

func (f *Flow) schedule(instanceID, executionID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx.Err() != nil {
		return
	}
	if t, ok := f.timers[executionID]; ok {
		t.Stop()
	}
	ctx := f.ctx
	f.timers[executionID] = time.AfterFunc(f.cfg.Delay, func() {
		f.mu.Lock()
		delete(f.timers, executionID)
		f.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err := f.requester.GetOrderHistory(ctx, instanceID, executionID); err != nil {
			f.logger.ErrorContext(ctx, "order history lookup failed",
				slog.Int64("instance_id", instanceID),
				slog.Int64("execution_id", executionID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// Pending reports how many lookups are scheduled.
func (f *Flow) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// Close cancels scheduled lookups and forgets every counter.
func (f *Flow) Close() {
	f.mu.Lock()
	f.cancel()
	for id, t := range f.timers {
		t.Stop()
		delete(f.timers, id)
	}
	f.mu.Unlock()
	f.tracker.Forget()
}

func (f *Flow) fillFromHistory(instanceID, executionID int64, order domain.OrderHistory) domain.OrderFill {
	return domain.OrderFill{
		Order: domain.Order{
			OrderParams: domain.OrderParams{
				AlgoInstanceID: instanceID,
				Exchange:       f.cfg.Exchange,
				Symbol:         f.cfg.Symbol,
				Side:           domain.OrderSideSell,
				Type:           domain.OrderTypeMarket,
				Quantity:       order.Quantity,
				Price:          order.Price,
				ExecutionID:    executionID,
			},
			ExchangeOrderID: strconv.FormatInt(order.OrderID, 10),
		},
		Status:           domain.OrderStateFilled,
		QuantityExecuted: order.QuantityExecuted,
		AvgPrice:         order.AvgPrice,
	}
}

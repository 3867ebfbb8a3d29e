package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/calc"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// SummaryUpdater is the part of the execution store the leg book needs.
type SummaryUpdater interface {
	GetByID(ctx context.Context, id int64) (domain.ArbitrageExecution, error)
	UpdateSummary(ctx context.Context, id int64, summary domain.Summary) error
}

type pendingLegs struct {
	long  *domain.OrderFill
	short *domain.OrderFill
	timer *time.Timer
}

// LegBook pairs the fills of each execution and rewrites its summary with
// the executed quantities and prices once the execution is complete. An
// execution whose legs do not complete within the TTL is dropped.
type LegBook struct {
	mu         sync.Mutex
	legs       map[int64]*pendingLegs
	executions SummaryUpdater
	dedup      *Dedup
	ttl        time.Duration
	logger     *slog.Logger
}

// NewLegBook creates a LegBook.
func NewLegBook(executions SummaryUpdater, ttl time.Duration, logger *slog.Logger) *LegBook {
	return &LegBook{
		legs:       make(map[int64]*pendingLegs),
		executions: executions,
		dedup:      NewDedup(ttl),
		ttl:        ttl,
		logger:     logger.With(slog.String("component", "leg_book")),
	}
}

// SetLong records a long fill. It returns false for a duplicate event.
func (b *LegBook) SetLong(ctx context.Context, fill domain.OrderFill) (bool, error) {
	return b.set(ctx, fill, true)
}

// SetShort records a short fill. It returns false for a duplicate event.
func (b *LegBook) SetShort(ctx context.Context, fill domain.OrderFill) (bool, error) {
	return b.set(ctx, fill, false)
}

func (b *LegBook) set(ctx context.Context, fill domain.OrderFill, long bool) (bool, error) {
	if fill.Order.ExchangeOrderID != "" &&
		b.dedup.IsDuplicate(fill.Order.Exchange+":"+fill.Order.ExchangeOrderID) {
		return false, nil
	}
	id := fill.Order.ExecutionID
	if id == 0 {
		return true, nil
	}

	b.mu.Lock()
	p, ok := b.legs[id]
	if !ok {
		p = &pendingLegs{}
		p.timer = time.AfterFunc(b.ttl, func() { b.expire(id) })
		b.legs[id] = p
	}
	f := fill
	if long {
		p.long = &f
	} else {
		p.short = &f
	}
	longFill, shortFill := p.long, p.short
	b.mu.Unlock()

	return true, b.checkExecution(ctx, id, longFill, shortFill)
}

func (b *LegBook) expire(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.legs[id]; ok {
		delete(b.legs, id)
		b.logger.Warn("legs of execution never completed", slog.Int64("execution_id", id))
	}
}

func (b *LegBook) checkExecution(ctx context.Context, id int64, longFill, shortFill *domain.OrderFill) error {
	if shortFill == nil {
		return nil
	}
	exec, err := b.executions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("executor: load execution %d: %w", id, err)
	}

	longQty, longPrice := decimal.Zero, decimal.Zero
	if longFill == nil {
		if !exec.NeedsConciliation {
			return nil
		}
	} else {
		longQty = firstNonZero(longFill.QuantityExecuted, longFill.Order.Quantity)
		longPrice = firstNonZero(longFill.AvgPrice, longFill.Order.Price)
	}

	ec := exec.Context
	ec.QuantityShort = firstNonZero(shortFill.QuantityExecuted, shortFill.Order.Quantity)
	ec.QuantityLong = longQty
	ec.ShortBestOffer = domain.DepthLevel{Quantity: decimal.Zero, Price: firstNonZero(shortFill.AvgPrice, shortFill.Order.Price)}
	ec.LongBestOffer = domain.DepthLevel{Quantity: decimal.Zero, Price: longPrice}

	summary, err := calc.Summarize(ec)
	if err != nil {
		return fmt.Errorf("executor: summarize execution %d: %w", id, err)
	}
	if err := b.executions.UpdateSummary(ctx, id, summary); err != nil {
		return fmt.Errorf("executor: update summary %d: %w", id, err)
	}

	b.mu.Lock()
	if p, ok := b.legs[id]; ok {
		p.timer.Stop()
		delete(b.legs, id)
	}
	b.mu.Unlock()
	b.dedup.Cleanup()

	b.logger.InfoContext(ctx, "execution summary updated",
		slog.Int64("execution_id", id),
		slog.String("pnl_usd", summary.PAndL.USD),
	)
	return nil
}

// Pending returns the number of executions still waiting for a leg.
func (b *LegBook) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.legs)
}

// Close stops every expiry timer.
func (b *LegBook) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, p := range b.legs {
		p.timer.Stop()
		delete(b.legs, id)
	}
	b.dedup.Cleanup()
}

func firstNonZero(a, b decimal.Decimal) decimal.Decimal {
	if !a.IsZero() {
		return a
	}
	return b
}

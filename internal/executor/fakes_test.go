package executor

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fee(service, rate string) *domain.Fee {
	return &domain.Fee{Service: service, ServiceProvider: "test", Rate: d(rate), Fixed: decimal.Zero}
}

func executionContext(short, long string) domain.ExecutionContext {
	return domain.ExecutionContext{
		QuantityShort:  d(short),
		QuantityLong:   d(long),
		ShortBestOffer: domain.DepthLevel{Quantity: d("1"), Price: d("49220.01")},
		LongBestOffer:  domain.DepthLevel{Quantity: d("1"), Price: d("9500.38")},
		PegPrice:       d("5.7603"),
		MarketSpread:   d("0.02"),
		Fees: domain.ArbitrageFees{
			ShortTradeTaker:  fee("trade-taker", "0.005"),
			ShortWithdrawBRL: fee("withdraw-brl", "0.0099"),
			LongTradeTaker:   fee("trade-taker", "0.005"),
			LongWithdrawBTC:  fee("withdraw-btc", "0.0005"),
			PegExchange:      fee("exchange", "0.002"),
			PegIOF:           fee("iof", "0.0038"),
		},
		Parameters: domain.ArbitrageInput{
			TotalQuantity:    d("1"),
			MaxOrderQuantity: d("0.1"),
			TargetSpread:     d("0.01"),
			CrowdFactor:      d("1"),
		},
	}
}

type fakeOMS struct {
	mu      sync.Mutex
	sent    []domain.OrderParams
	errs    map[string]error
	history []domain.OrderHistory
	histErr error
	nextID  int64
}

func (f *fakeOMS) SendOrder(_ context.Context, params domain.OrderParams) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	if err := f.errs[params.Exchange]; err != nil {
		return domain.Order{}, err
	}
	f.nextID++
	return domain.Order{OrderParams: params, ID: f.nextID, ExchangeOrderID: "x" + strconv.FormatInt(f.nextID, 10)}, nil
}

func (f *fakeOMS) OrderHistory(context.Context, string, int64) ([]domain.OrderHistory, error) {
	return f.history, f.histErr
}

func (f *fakeOMS) sentTo(exchange string) []domain.OrderParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OrderParams
	for _, p := range f.sent {
		if p.Exchange == exchange {
			out = append(out, p)
		}
	}
	return out
}

type fakeExecutionStore struct {
	mu          sync.Mutex
	executions  map[int64]domain.ArbitrageExecution
	nextID      int64
	createErr   error
	conciliated map[int64]int64
	updates     int
}

func newFakeExecutionStore() *fakeExecutionStore {
	return &fakeExecutionStore{
		executions:  make(map[int64]domain.ArbitrageExecution),
		conciliated: make(map[int64]int64),
		nextID:      100,
	}
}

func (f *fakeExecutionStore) Create(_ context.Context, exec domain.ArbitrageExecution) (domain.ArbitrageExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.ArbitrageExecution{}, f.createErr
	}
	f.nextID++
	exec.ID = f.nextID
	f.executions[exec.ID] = exec
	return exec, nil
}

func (f *fakeExecutionStore) GetByID(_ context.Context, id int64) (domain.ArbitrageExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exec, ok := f.executions[id]
	if !ok {
		return domain.ArbitrageExecution{}, domain.ErrNotFound
	}
	return exec, nil
}

func (f *fakeExecutionStore) ListByInstance(context.Context, int64, domain.ListOpts) ([]domain.ArbitrageExecution, error) {
	return nil, nil
}

func (f *fakeExecutionStore) ListPendingConciliation(context.Context, int64) ([]domain.ArbitrageExecution, error) {
	return nil, nil
}

func (f *fakeExecutionStore) UpdateSummary(_ context.Context, id int64, summary domain.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	exec := f.executions[id]
	exec.Summary = summary
	f.executions[id] = exec
	f.updates++
	return nil
}

func (f *fakeExecutionStore) MarkConciliated(_ context.Context, ids []int64, conciliationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.conciliated[id] = conciliationID
	}
	return nil
}

type fakeConciliationStore struct {
	created []domain.Conciliation
}

func (f *fakeConciliationStore) Create(_ context.Context, c domain.Conciliation) (domain.Conciliation, error) {
	c.ID = int64(len(f.created) + 1)
	f.created = append(f.created, c)
	return c, nil
}

func (f *fakeConciliationStore) ListByInstance(context.Context, int64) ([]domain.Conciliation, error) {
	return f.created, nil
}

type fakeOrderStore struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (f *fakeOrderStore) Create(_ context.Context, o domain.Order) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	return o, nil
}

func (f *fakeOrderStore) ListByInstance(context.Context, int64, domain.ListOpts) ([]domain.Order, error) {
	return f.orders, nil
}

type fakeQuoteCache struct {
	price decimal.Decimal
	at    time.Time
}

func (f *fakeQuoteCache) SetQuote(_ context.Context, _ int64, price decimal.Decimal, ts time.Time) error {
	f.price, f.at = price, ts
	return nil
}

func (f *fakeQuoteCache) GetQuote(context.Context, int64) (decimal.Decimal, time.Time, error) {
	return f.price, f.at, nil
}

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	published []published
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.published = append(f.published, published{channel, payload})
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (f *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

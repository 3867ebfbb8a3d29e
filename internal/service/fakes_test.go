package service

import (
	"context"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type busSub struct {
	pattern string
	ch      chan []byte
}

// memBus is an in-process SignalBus with glob subscriptions.
type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	stream    [][]byte
	subs      []busSub
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	for _, s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); ok {
			s.ch <- payload
		}
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 64)
	b.subs = append(b.subs, busSub{pattern: channel, ch: ch})
	return ch, nil
}

func (b *memBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream = append(b.stream, payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memBus) subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *memBus) subscribed(pattern string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.pattern == pattern {
			return true
		}
	}
	return false
}

func (b *memBus) messages(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.published[channel]...)
}

func (b *memBus) streamLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.stream)
}

type fakeFeeStore struct {
	mu   sync.Mutex
	fees []domain.Fee
}

func (f *fakeFeeStore) List(context.Context) ([]domain.Fee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Fee(nil), f.fees...), nil
}

func (f *fakeFeeStore) Find(_ context.Context, provider string, services []string) ([]domain.Fee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Fee
	for _, fee := range f.fees {
		if fee.ServiceProvider != provider {
			continue
		}
		for _, s := range services {
			if fee.Service == s {
				out = append(out, fee)
			}
		}
	}
	return out, nil
}

func (f *fakeFeeStore) Upsert(_ context.Context, fee domain.Fee) (domain.Fee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.fees {
		if existing.ServiceProvider == fee.ServiceProvider && existing.Service == fee.Service {
			fee.ID = existing.ID
			f.fees[i] = fee
			return fee, nil
		}
	}
	fee.ID = int64(len(f.fees) + 1)
	f.fees = append(f.fees, fee)
	return fee, nil
}

type fakeInstanceStore struct {
	mu        sync.Mutex
	instances map[int64]domain.AlgoInstance
	nextID    int64
}

func newFakeInstanceStore() *fakeInstanceStore {
	return &fakeInstanceStore{instances: map[int64]domain.AlgoInstance{}}
}

func (f *fakeInstanceStore) CreateActive(_ context.Context, kind domain.AlgoKind) (domain.AlgoInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inst := range f.instances {
		if inst.AlgoKind == kind && inst.Active != nil {
			return domain.AlgoInstance{}, domain.ErrAlreadyExists
		}
	}
	f.nextID++
	active := true
	inst := domain.AlgoInstance{ID: f.nextID, AlgoKind: kind, Active: &active, CreatedAt: time.Now()}
	f.instances[inst.ID] = inst
	return inst, nil
}

func (f *fakeInstanceStore) GetByID(_ context.Context, id int64) (domain.AlgoInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[id]
	if !ok {
		return domain.AlgoInstance{}, domain.ErrNotFound
	}
	return inst, nil
}

func (f *fakeInstanceStore) ListActive(context.Context) ([]domain.AlgoInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AlgoInstance
	for _, inst := range f.instances {
		if inst.Active != nil {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeInstanceStore) End(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[id]
	if !ok || inst.EndedAt != nil {
		return domain.ErrNotFound
	}
	now := time.Now()
	inst.Active, inst.EndedAt = nil, &now
	f.instances[id] = inst
	return nil
}

func (f *fakeInstanceStore) ended(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instances[id].EndedAt != nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []int64
}

func (f *fakeArchiver) ArchiveInstance(_ context.Context, inst domain.AlgoInstance) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, inst.ID)
	return 3, nil
}

func (f *fakeArchiver) ids() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.archived...)
}

type fakeQuoteCache struct {
	mu        sync.Mutex
	prices    map[int64]decimal.Decimal
	forgotten []int64
}

func newFakeQuoteCache() *fakeQuoteCache {
	return &fakeQuoteCache{prices: map[int64]decimal.Decimal{}}
}

func (f *fakeQuoteCache) SetQuote(_ context.Context, id int64, price decimal.Decimal, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[id] = price
	return nil
}

func (f *fakeQuoteCache) GetQuote(_ context.Context, id int64) (decimal.Decimal, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[id]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return p, time.Now(), nil
}

func (f *fakeQuoteCache) Forget(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prices, id)
	f.forgotten = append(f.forgotten, id)
	return nil
}

// fakeRunner stands in for a live instance.
type fakeRunner struct {
	inst        domain.AlgoInstance
	onFinalized func()
	started     chan struct{}

	mu      sync.Mutex
	paused  bool
	input   map[string]string
	stopped bool
}

func (r *fakeRunner) Instance() domain.AlgoInstance { return r.inst }

func (r *fakeRunner) Run(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	return nil
}

func (r *fakeRunner) Data(context.Context) (domain.AlgoData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := "INITIALIZING"
	if r.paused {
		state = "PAUSED"
	}
	return domain.AlgoData{State: state, Output: map[string]string{}, Input: r.input}, nil
}

func (r *fakeRunner) SetInput(_ context.Context, params map[string]string) (domain.AlgoData, error) {
	r.mu.Lock()
	r.input = params
	r.mu.Unlock()
	return r.Data(context.Background())
}

func (r *fakeRunner) TogglePause(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = !r.paused
	return nil
}

func (r *fakeRunner) Finalize(context.Context) error {
	r.onFinalized()
	return nil
}

func (r *fakeRunner) Requote(context.Context) error { return nil }

func (r *fakeRunner) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

type fakeFactory struct {
	mu      sync.Mutex
	runners map[int64]*fakeRunner
}

func (f *fakeFactory) Build(_ context.Context, inst domain.AlgoInstance, onFinalized func()) (Runner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runners == nil {
		f.runners = map[int64]*fakeRunner{}
	}
	r := &fakeRunner{inst: inst, onFinalized: onFinalized, started: make(chan struct{})}
	f.runners[inst.ID] = r
	return r, nil
}

func (f *fakeFactory) get(id int64) *fakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runners[id]
}

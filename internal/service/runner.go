package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jthomazinho/vimana-arbitrage/internal/algo"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/executor"
	"github.com/jthomazinho/vimana-arbitrage/internal/feed"
	"github.com/jthomazinho/vimana-arbitrage/internal/notify"
)

// Runner hosts one live algo instance. Every method but Run goes through the
// instance event loop and fails with domain.ErrInstanceNotRunning once Run
// returned.
type Runner interface {
	Instance() domain.AlgoInstance
	// Run drives the instance until ctx is cancelled.
	Run(ctx context.Context) error
	Data(ctx context.Context) (domain.AlgoData, error)
	SetInput(ctx context.Context, params map[string]string) (domain.AlgoData, error)
	TogglePause(ctx context.Context) error
	Finalize(ctx context.Context) error
	Requote(ctx context.Context) error
}

// RecorderFactory hands out the telemetry sink of each instance.
type RecorderFactory interface {
	For(instance string) algo.Recorder
	Forget(instance string)
}

// RuntimeSettings tunes the runners.
type RuntimeSettings struct {
	DryRun               bool
	MailboxSize          int
	RetryDelay           time.Duration
	ConciliationInterval time.Duration
	LegTTL               time.Duration
}

// Runtime builds the runner of each algo kind from the shared dependencies.
type Runtime struct {
	Bus       domain.SignalBus
	Feed      *feed.MarketFeed
	Fees      *FeeService
	OMS       executor.OrderSender
	Stores    executor.Stores
	Quotes    domain.QuoteCache
	Recorders RecorderFactory
	Audit     *AuditTrail
	Notifier  *notify.Notifier
	Settings  RuntimeSettings
	Logger    *slog.Logger
}

// Build creates the runner of inst. ctx bounds everything the runner starts
// in the background; onFinalized is called once when the algo ends.
func (rt *Runtime) Build(ctx context.Context, inst domain.AlgoInstance, onFinalized func()) (Runner, error) {
	switch inst.AlgoKind {
	case domain.AlgoKindArbitrage:
		return newArbitrageRunner(ctx, rt, inst, onFinalized), nil
	case domain.AlgoKindOTC:
		return newOTCRunner(ctx, rt, inst, onFinalized), nil
	default:
		return nil, domain.NewInputValidationError("unknown algo kind %q", inst.AlgoKind)
	}
}

func (rt *Runtime) recorder(inst domain.AlgoInstance) algo.Recorder {
	if rt.Recorders == nil {
		return algo.NopRecorder{}
	}
	return rt.Recorders.For(inst.Name())
}

func (rt *Runtime) notify(ctx context.Context, event, title, message string) {
	if !rt.Notifier.Enabled(event) {
		return
	}
	if err := rt.Notifier.Notify(ctx, event, title, message); err != nil {
		rt.Logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// do runs fn on the loop of a running instance.
func do(ctx context.Context, mb *algo.Mailbox, fn func()) error {
	if err := mb.Do(ctx, fn); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("service: %w", domain.ErrInstanceNotRunning)
	}
	return nil
}

// subscribe decodes every payload of channel into T and hands it to fn
// until ctx is cancelled.
func subscribe[T any](ctx context.Context, bus domain.SignalBus, channel string, logger *slog.Logger, fn func(T)) error {
	ch, err := bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("service: subscribe %s: %w", channel, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				logger.WarnContext(ctx, "undecodable message dropped",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			fn(v)
		}
	}
}

// ended reports whether err only says the runner was asked to stop.
func ended(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// feeSlot routes a fee update to the algo setter of its provider.
type feeSlot struct {
	provider string
	services []string
	set      func(service string, fee *domain.Fee)
}

// loadFees fetches the stored fees of every slot and posts them to the loop.
func loadFees(ctx context.Context, fees *FeeService, mb *algo.Mailbox, slots []feeSlot) error {
	for _, slot := range slots {
		loaded, err := fees.LoadFees(ctx, slot.provider, slot.services)
		if err != nil {
			return err
		}
		for _, service := range slot.services {
			fee, ok := loaded[service]
			if !ok {
				continue
			}
			mb.Post(func() { slot.set(service, fee) })
		}
	}
	return nil
}

// watchFees forwards the fee updates of every slot to the loop.
func watchFees(ctx context.Context, bus domain.SignalBus, mb *algo.Mailbox, slots []feeSlot, logger *slog.Logger) []func() error {
	var runs []func() error
	for _, slot := range slots {
		runs = append(runs, func() error {
			return subscribe(ctx, bus, domain.FeeProviderPattern(slot.provider), logger, func(fee domain.Fee) {
				mb.Post(func() { slot.set(fee.Service, &fee) })
			})
		})
	}
	return runs
}

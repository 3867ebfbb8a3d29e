package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jthomazinho/vimana-arbitrage/internal/algo"
	"github.com/jthomazinho/vimana-arbitrage/internal/algo/arbitrage"
	"github.com/jthomazinho/vimana-arbitrage/internal/algo/otc"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/executor"
	"github.com/jthomazinho/vimana-arbitrage/internal/feed"
)

// OTCRunner hosts an OTC quoting instance.
type OTCRunner struct {
	rt      *Runtime
	inst    domain.AlgoInstance
	mailbox *algo.Mailbox
	algo    *otc.Algo
	logger  *slog.Logger
}

func newOTCRunner(ctx context.Context, rt *Runtime, inst domain.AlgoInstance, onFinalized func()) *OTCRunner {
	logger := rt.Logger.With(
		slog.String("component", "otc_runner"),
		slog.Int64("instance_id", inst.ID),
	)
	r := &OTCRunner{
		rt:      rt,
		inst:    inst,
		mailbox: algo.NewMailbox(rt.Settings.MailboxSize, logger),
		logger:  logger,
	}
	publisher := executor.NewQuotePublisher(inst.ID, rt.Quotes, rt.Bus, onFinalized, rt.Logger)
	r.algo = otc.New(inst.ID, publisher,
		otc.WithDispatcher(r.mailbox),
		otc.WithRecorder(rt.recorder(inst)),
		otc.WithLogger(rt.Logger),
		otc.WithContext(ctx),
		otc.WithTransitionListener(func(from, to otc.State, _ otc.Event) {
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
func (r *OTCRunner) Instance() domain.AlgoInstance { return r.inst }

func (r *OTCRunner) feeSlots() []feeSlot {
	return []feeSlot{
		{
			provider: otc.LongLeg.Exchange,
			services: []string{domain.ServiceTradeTaker, domain.ServiceWithdrawBTC},
			set:      r.algo.OnLongFee,
		},
		{
			provider: otc.PegLeg.Exchange,
			services: []string{domain.ServiceExchange, domain.ServiceIOF},
			set:      r.algo.OnPegFee,
		},
	}
}

// Run drives the instance until ctx is cancelled. The quotes are sold on
// the short exchange, so losing its feed stops quoting as well.
func (r *OTCRunner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.mailbox.Run(ctx) })

	post := r.mailbox.Post
	watch := func(inst domain.Instrument, h feed.Handlers) {
		g.Go(func() error { return r.rt.Feed.Watch(ctx, inst, h) })
	}
	watch(arbitrage.ShortLeg, feed.Handlers{
		Status: func(s domain.ServiceStatus) { post(func() { r.algo.OnStatus(s) }) },
	})
	watch(otc.LongLeg, feed.Handlers{
		Depth:  func(d domain.Depth) { post(func() { r.algo.OnLongDepth(d) }) },
		Status: func(s domain.ServiceStatus) { post(func() { r.algo.OnStatus(s) }) },
	})
	watch(otc.PegLeg, feed.Handlers{
		Quote:  func(q domain.Quote) { post(func() { r.algo.OnPegQuote(q) }) },
		Status: func(s domain.ServiceStatus) { post(func() { r.algo.OnPegStatus(s) }) },
	})

	slots := r.feeSlots()
	for _, run := range watchFees(ctx, r.rt.Bus, r.mailbox, slots, r.logger) {
		g.Go(run)
	}
	g.Go(func() error { return loadFees(ctx, r.rt.Fees, r.mailbox, slots) })

	r.logger.InfoContext(ctx, "instance started")
	err := g.Wait()
	r.mailbox.Wait()
	if ended(err) {
		r.logger.Info("instance stopped")
		return nil
	}
	return fmt.Errorf("service: run %s: %w", r.inst.Name(), err)
}

func (r *OTCRunner) Data(ctx context.Context) (domain.AlgoData, error) {
	var data domain.AlgoData
	err := do(ctx, r.mailbox, func() { data = r.algo.Data() })
	return data, err
}

// SetInput parses and applies the operator parameters.
func (r *OTCRunner) SetInput(ctx context.Context, params map[string]string) (domain.AlgoData, error) {
	in, err := ParseOTCInput(params)
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

func (r *OTCRunner) TogglePause(ctx context.Context) error {
	return do(ctx, r.mailbox, r.algo.TogglePause)
}

func (r *OTCRunner) Finalize(ctx context.Context) error {
	return do(ctx, r.mailbox, r.algo.Finalize)
}

// Requote forces the quote to be computed and published again.
func (r *OTCRunner) Requote(ctx context.Context) error {
	return do(ctx, r.mailbox, r.algo.Requote)
}

var _ Runner = (*OTCRunner)(nil)

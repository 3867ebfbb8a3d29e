package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
	"github.com/jthomazinho/vimana-arbitrage/internal/notify"
)

const (
	auditBuffer = 1024
	stateError  = "error"
)

// AuditTrail appends every state change of every instance to the audit
// stream and broadcasts it on the instance state topic. Record never blocks
// the algo loop: changes are queued and written by Run.
type AuditTrail struct {
	bus      domain.SignalBus
	notifier *notify.Notifier
	queue    chan domain.StateChange
	now      func() time.Time
	logger   *slog.Logger
}

// NewAuditTrail creates an AuditTrail. notifier may be nil.
func NewAuditTrail(bus domain.SignalBus, notifier *notify.Notifier, logger *slog.Logger) *AuditTrail {
	return &AuditTrail{
		bus:      bus,
		notifier: notifier,
		queue:    make(chan domain.StateChange, auditBuffer),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "audit_trail")),
	}
}

// Record queues a transition of inst. A full queue drops the change.
func (a *AuditTrail) Record(inst domain.AlgoInstance, from, to, errorMsg string) {
	if a == nil {
		return
	}
	change := domain.StateChange{
		InstanceID: inst.ID,
		AlgoKind:   inst.AlgoKind,
		From:       from,
		To:         to,
		ErrorMsg:   errorMsg,
		At:         a.now().UTC(),
	}
	select {
	case a.queue <- change:
	default:
		a.logger.Warn("audit queue full, change dropped",
			slog.Int64("instance_id", inst.ID),
			slog.String("to", to),
		)
	}
}

// Run writes queued changes until ctx is cancelled.
func (a *AuditTrail) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change := <-a.queue:
			if err := a.write(ctx, change); err != nil {
				a.logger.ErrorContext(ctx, "audit write failed",
					slog.Int64("instance_id", change.InstanceID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (a *AuditTrail) write(ctx context.Context, change domain.StateChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}
	if err := a.bus.StreamAppend(ctx, domain.AuditStream, payload); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	if err := a.bus.Publish(ctx, domain.InstanceStateTopic(change.AlgoKind, change.InstanceID), payload); err != nil {
		return fmt.Errorf("audit: publish: %w", err)
	}

	if change.To == stateError && a.notifier.Enabled(notify.EventInstanceError) {
		name := domain.InstanceName(change.AlgoKind, change.InstanceID)
		if err := a.notifier.Notify(ctx, notify.EventInstanceError, "Instance error",
			fmt.Sprintf("%s stopped in error: %s", name, change.ErrorMsg)); err != nil {
			a.logger.WarnContext(ctx, "error notification failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

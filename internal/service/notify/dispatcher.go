// Package notify drains the transfer event outbox and delivers each event to
// the external notification endpoint. Rendering of receipts and alerts
// happens downstream; this side stops at the webhook boundary.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kwabena-osei/vaultcore/internal/domain"
)

const maxDeliveryAttempts = 5

type outboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]domain.TransferEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransferEventStatus) error
}

type sender interface {
	Send(ctx context.Context, payload []byte) error
}

type Dispatcher struct {
	outbox   outboxRepo
	sender   sender
	logger   *slog.Logger
	interval time.Duration
}

func NewDispatcher(outbox outboxRepo, s sender, logger *slog.Logger, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		outbox:   outbox,
		sender:   s,
		logger:   logger,
		interval: interval,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("notification dispatcher started", "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	events, err := d.outbox.GetPending(ctx, 10)
	if err != nil {
		d.logger.Error("failed to fetch pending transfer events", "error", err)
		return
	}

	for _, event := range events {
		d.dispatch(ctx, event)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event domain.TransferEvent) {
	if err := d.sender.Send(ctx, event.Payload); err != nil {
		status := domain.TransferEventStatusPending
		if event.Attempts+1 >= maxDeliveryAttempts {
			status = domain.TransferEventStatusFailed
			d.logger.Error("giving up on transfer event",
				"event_id", event.ID,
				"tx_ref", event.TxRef,
				"attempts", event.Attempts+1,
			)
		} else {
			d.logger.Warn("transfer event delivery failed, will retry",
				"event_id", event.ID,
				"tx_ref", event.TxRef,
				"error", err,
			)
		}
		if err := d.outbox.UpdateStatus(ctx, event.ID, status); err != nil {
			d.logger.Error("failed to update transfer event", "event_id", event.ID, "error", err)
		}
		return
	}

	if err := d.outbox.UpdateStatus(ctx, event.ID, domain.TransferEventStatusDispatched); err != nil {
		d.logger.Error("failed to mark transfer event dispatched", "event_id", event.ID, "error", err)
		return
	}

	d.logger.Info("transfer event dispatched",
		"event_id", event.ID,
		"tx_ref", event.TxRef,
		"event_type", event.EventType,
	)
}

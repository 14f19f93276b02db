package batch

import (
	"context"
	"log/slog"

	"github.com/dsrph/payment-disbursement/internal/core/events"
)

// RegisterEventHandlers subscribes the batch finalizer to payment settlement
// events. Every completed, failed or cancelled payment that belongs to a
// batch triggers a finalization check; the check is a no-op while siblings
// are still in flight, so firing once per settlement is safe.
func RegisterEventHandlers(bus *events.EventBus, service *Service, logger *slog.Logger) {
	finalize := func(ctx context.Context, event events.Event) error {
		batchID := batchIDFromEvent(event)
		if batchID == "" {
			return nil
		}

		done, err := service.FinalizeIfDone(ctx, batchID)
		if err != nil {
			return err
		}
		if done {
			logger.Debug("batch finalized by settlement event",
				"batch_id", batchID, "event_type", event.EventType())
		}
		return nil
	}

	bus.Subscribe(events.EventTypePaymentCompleted, finalize)
	bus.Subscribe(events.EventTypePaymentFailed, finalize)
	bus.Subscribe(events.EventTypePaymentCancelled, finalize)
}

func batchIDFromEvent(event events.Event) string {
	switch e := event.(type) {
	case *events.PaymentCompletedEvent:
		return e.BatchID
	case *events.PaymentFailedEvent:
		return e.BatchID
	case *events.PaymentCancelledEvent:
		return e.BatchID
	}
	return ""
}

package reconcile

import (
	"context"
	"encoding/json"
	"errors"

	"tokopaya-be/internal/gateway"
	"tokopaya-be/internal/logger"
	"tokopaya-be/internal/metrics"
	"tokopaya-be/internal/order"
	"tokopaya-be/internal/payment"

	"go.uber.org/zap"
)

// Processor is what the worker needs from the applier.
type Processor interface {
	ProcessNotification(ctx context.Context, notificationID int64) (*payment.TransitionResult, error)
}

// NotificationStore is the non-transactional bookkeeping the worker does
// when a job has exhausted its attempts.
type NotificationStore interface {
	MarkNotificationFailed(ctx context.Context, id int64, note string) error
}

// Broadcaster pushes payment updates to connected clients. Implemented by
// the websocket hub; a no-op is fine in tests.
type Broadcaster interface {
	BroadcastPaymentUpdate(orderID int64, paymentStatus gateway.PaymentStatus, orderStatus order.Status)
}

// Message is the queue envelope published by the webhook handler.
type Message struct {
	NotificationID int64 `json:"notification_id"`
}

// Worker consumes queued notification ids and drives them through the
// reconciliation job. Returning a non-nil error signals the consumer to
// retry the delivery; nil acknowledges it.
type Worker struct {
	processor Processor
	notifs    NotificationStore
	broadcast Broadcaster
	mtr       *metrics.Reconciliation
}

func NewWorker(processor Processor, notifs NotificationStore, broadcast Broadcaster, mtr *metrics.Reconciliation) *Worker {
	return &Worker{processor: processor, notifs: notifs, broadcast: broadcast, mtr: mtr}
}

// HandleDelivery processes one queue message body.
func (w *Worker) HandleDelivery(ctx context.Context, body []byte) error {
	log := logger.FromCtx(ctx)

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		// Not produced by our webhook handler; retrying cannot help.
		log.Error("dropping malformed queue message", zap.Error(err), zap.ByteString("body", body))
		w.mtr.NotificationsFailed.Inc()
		return nil
	}
	log = log.With(zap.Int64("notification_id", msg.NotificationID))

	timer := metrics.StartTimer()
	res, err := w.processor.ProcessNotification(ctx, msg.NotificationID)
	switch {
	case errors.Is(err, payment.ErrPaymentNotFound):
		// Terminal: the applier already marked the notification failed.
		log.Warn("notification references unknown payment")
		w.mtr.NotificationsFailed.Inc()
		return nil
	case errors.Is(err, payment.ErrNotificationNotFound):
		log.Warn("notification row missing")
		w.mtr.NotificationsFailed.Inc()
		return nil
	case err != nil:
		log.Error("reconciliation failed", zap.Error(err))
		w.mtr.NotificationsFailed.Inc()
		return err
	}

	w.mtr.NotificationsProcessed.Inc()
	if res.Changed && w.broadcast != nil {
		w.broadcast.BroadcastPaymentUpdate(res.Payment.OrderID, res.Payment.Status, res.OrderStatus)
	}

	log.Info("notification processed",
		zap.String("payment_status", string(res.Payment.Status)),
		zap.String("order_status", string(res.OrderStatus)),
		zap.Bool("changed", res.Changed),
		zap.Duration("duration", timer.Duration()),
	)
	return nil
}

// RecordFailure is called by the consumer when a delivery has been retried
// and failed again, just before the message is dropped.
func (w *Worker) RecordFailure(ctx context.Context, body []byte, cause error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return
	}
	if err := w.notifs.MarkNotificationFailed(ctx, msg.NotificationID, cause.Error()); err != nil {
		logger.FromCtx(ctx).Error("failed to record notification failure",
			zap.Int64("notification_id", msg.NotificationID), zap.Error(err))
	}
}

package expiry

import (
	"context"
	"time"

	"tokopaya-be/internal/gateway"
	"tokopaya-be/internal/logger"
	"tokopaya-be/internal/metrics"
	"tokopaya-be/internal/order"
	"tokopaya-be/internal/payment"

	"go.uber.org/zap"
)

// Store is the slice of the payment repository the sweep needs.
type Store interface {
	FindExpiredPending(ctx context.Context, now time.Time) ([]*payment.Payment, error)
	ExpirePaymentTx(ctx context.Context, paymentID, orderID int64) (bool, error)
}

type Broadcaster interface {
	BroadcastPaymentUpdate(orderID int64, paymentStatus gateway.PaymentStatus, orderStatus order.Status)
}

// Scheduler periodically expires pending payments whose gateway deadline
// has passed. It writes directly rather than going through the transition
// applier: the guarded UPDATE predicates already make each expiry a no-op
// when a webhook settles the payment first.
type Scheduler struct {
	store     Store
	broadcast Broadcaster
	mtr       *metrics.Reconciliation
	interval  time.Duration
	now       func() time.Time
}

func NewScheduler(store Store, broadcast Broadcaster, mtr *metrics.Reconciliation, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:     store,
		broadcast: broadcast,
		mtr:       mtr,
		interval:  interval,
		now:       time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log := logger.L()
	log.Info("expiry scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("expiry scheduler stopped")
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				log.Error("expiry sweep failed", zap.Error(err))
			} else if n > 0 {
				log.Info("expired stale payments", zap.Int("count", n))
			}
		}
	}
}

// SweepOnce expires every overdue pending payment it can, one transaction
// per payment, and returns how many were expired. A failure on one
// payment does not stop the sweep.
func (s *Scheduler) SweepOnce(ctx context.Context) (int, error) {
	log := logger.L()

	stale, err := s.store.FindExpiredPending(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, p := range stale {
		moved, err := s.store.ExpirePaymentTx(ctx, p.ID, p.OrderID)
		if err != nil {
			log.Error("failed to expire payment",
				zap.Int64("payment_id", p.ID),
				zap.Int64("order_id", p.OrderID),
				zap.Error(err),
			)
			continue
		}
		if !moved {
			// a webhook settled the payment between the scan and the
			// guarded update; nothing expired, nothing to announce
			continue
		}
		expired++
		s.mtr.PaymentsExpired.Inc()
		if s.broadcast != nil {
			s.broadcast.BroadcastPaymentUpdate(p.OrderID, gateway.StatusExpire, order.StatusExpired)
		}
	}
	return expired, nil
}

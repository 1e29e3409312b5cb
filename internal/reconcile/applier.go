package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tokopaya-be/internal/gateway"
	"tokopaya-be/internal/order"
	"tokopaya-be/internal/payment"
)

// Applier is the transactional core of payment reconciliation. Every
// status transition goes through it: webhook workers via
// ProcessNotification, the poll and cancel paths via ApplyTransition.
// The payment row lock serializes concurrent observations of the same
// payment, and the no-op guard on unchanged status makes replays safe.
type Applier struct {
	db *sql.DB
}

func NewApplier(db *sql.DB) *Applier {
	return &Applier{db: db}
}

// ApplyTransition applies one observed gateway status to a payment and
// projects the result onto its order, all in one transaction.
func (a *Applier) ApplyTransition(ctx context.Context, in payment.TransitionInput) (*payment.TransitionResult, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := lockPayment(ctx, tx, in.GatewayOrderID)
	if err != nil {
		return nil, err
	}

	res, err := applyLocked(ctx, tx, p, in)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return res, nil
}

// ProcessNotification runs the full reconciliation job for one stored
// webhook delivery: load, parse, resolve the payment, apply the mapped
// transition, and mark the notification processed, atomically.
//
// A payload naming an unknown payment is terminal: the notification is
// marked failed in its own committed write and payment.ErrPaymentNotFound
// is returned so callers do not retry.
func (a *Applier) ProcessNotification(ctx context.Context, notificationID int64) (*payment.TransitionResult, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT payload FROM payment_notifications WHERE id = $1 FOR UPDATE`,
		notificationID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}

	payload, err := payment.ParseNotificationPayload(raw)
	if err != nil {
		if markErr := markNotification(ctx, tx, notificationID, payment.NotificationFailed, "Malformed payload"); markErr != nil {
			return nil, markErr
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, commitErr
		}
		return nil, fmt.Errorf("malformed notification payload: %w", err)
	}

	p, err := lockPayment(ctx, tx, payload.OrderID)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		if markErr := markNotification(ctx, tx, notificationID, payment.NotificationFailed, "Payment not found"); markErr != nil {
			return nil, markErr
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, commitErr
		}
		return nil, payment.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE payment_notifications SET payment_id = $2 WHERE id = $1`,
		notificationID, p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to link notification: %w", err)
	}

	res, err := applyLocked(ctx, tx, p, payment.TransitionInput{
		GatewayOrderID:       payload.OrderID,
		NewStatus:            gateway.MapStatus(payload.TransactionStatus, payload.FraudStatus),
		GatewayTransactionID: payload.TransactionID,
		RawPayload:           payload.Raw,
	})
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Payment status updated to: %s, Order status: %s", res.Payment.Status, res.OrderStatus)
	if err := markNotification(ctx, tx, notificationID, payment.NotificationProcessed, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	return res, nil
}

func lockPayment(ctx context.Context, tx *sql.Tx, gatewayOrderID string) (*payment.Payment, error) {
	query := `SELECT ` + payment.Columns + ` FROM payments WHERE gateway_order_id = $1 FOR UPDATE`
	return payment.ScanPayment(tx.QueryRowContext(ctx, query, gatewayOrderID))
}

// applyLocked performs the transition against an already locked payment
// row. Same-status observations write nothing.
func applyLocked(ctx context.Context, tx *sql.Tx, p *payment.Payment, in payment.TransitionInput) (*payment.TransitionResult, error) {
	// Cancel only ever comes from the user path (the gateway's cancel and
	// deny statuses map to failed), so the locked row decides: a payment
	// that settled after the caller's read stays settled.
	if in.NewStatus == gateway.StatusCancel && p.Status == gateway.StatusSuccess {
		return nil, payment.ErrPaymentAlreadySucceeded
	}

	var orderStatus order.Status
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, p.OrderID,
	).Scan(&orderStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	if p.Status == in.NewStatus {
		return &payment.TransitionResult{Payment: p, OrderStatus: orderStatus, Changed: false}, nil
	}

	if err := updatePayment(ctx, tx, p, in); err != nil {
		return nil, err
	}
	p.Status = in.NewStatus
	if in.GatewayTransactionID != "" {
		p.GatewayTransactionID = in.GatewayTransactionID
	}

	if next, ok := order.NextStatus(orderStatus, in.NewStatus); ok {
		_, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
			p.OrderID, next,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}
		orderStatus = next
	}

	return &payment.TransitionResult{Payment: p, OrderStatus: orderStatus, Changed: true}, nil
}

// updatePayment writes the new status and, when the transition carries a
// gateway document, appends it verbatim to the raw_response history.
func updatePayment(ctx context.Context, tx *sql.Tx, p *payment.Payment, in payment.TransitionInput) error {
	if len(in.RawPayload) == 0 {
		_, err := tx.ExecContext(ctx,
			`UPDATE payments
			SET status = $2,
			    gateway_transaction_id = COALESCE(NULLIF($3, ''), gateway_transaction_id),
			    updated_at = now()
			WHERE id = $1`,
			p.ID, in.NewStatus, in.GatewayTransactionID,
		)
		if err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		return nil
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE payments
		SET status = $2,
		    gateway_transaction_id = COALESCE(NULLIF($3, ''), gateway_transaction_id),
		    raw_response = jsonb_set(
		        COALESCE(raw_response, '{}'::jsonb),
		        '{history}',
		        COALESCE(raw_response->'history', '[]'::jsonb) || $4::jsonb
		    ),
		    updated_at = now()
		WHERE id = $1`,
		p.ID, in.NewStatus, in.GatewayTransactionID, []byte(in.RawPayload),
	)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}

func markNotification(ctx context.Context, tx *sql.Tx, id int64, status payment.NotificationStatus, note string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payment_notifications SET status = $2, note = $3, processed_at = now() WHERE id = $1`,
		id, status, note,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s: %w", status, err)
	}
	return nil
}

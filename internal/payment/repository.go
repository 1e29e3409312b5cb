package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tokopaya-be/internal/gateway"
)

type Repository interface {
	SavePayment(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Payment, error)
	GetLatestByOrder(ctx context.Context, orderID int64) (*Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]*Payment, error)

	SaveNotification(ctx context.Context, payload json.RawMessage) (int64, error)
	GetNotification(ctx context.Context, id int64) (*PaymentNotification, error)
	HasProcessedNotification(ctx context.Context, gatewayOrderID, transactionStatus string) (bool, error)
	MarkNotificationFailed(ctx context.Context, id int64, note string) error

	FindExpiredPending(ctx context.Context, now time.Time) ([]*Payment, error)
	ExpirePaymentTx(ctx context.Context, paymentID, orderID int64) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Columns is the canonical payments select list; ScanPayment expects rows
// in this order.
const Columns = `id, order_id, method, gateway_order_id, gateway_transaction_id,
		amount, status, snap_token, payment_url, qr_code_url, deeplink_url,
		va_number, bank, bill_key, biller_code, expiry_time, raw_response,
		created_at, updated_at`

func (r *repository) SavePayment(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (
			order_id, method, gateway_order_id, gateway_transaction_id,
			amount, status, snap_token, payment_url, qr_code_url, deeplink_url,
			va_number, bank, bill_key, biller_code, expiry_time, raw_response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		p.OrderID, p.Method, p.GatewayOrderID, nullString(p.GatewayTransactionID),
		p.Amount, p.Status, nullString(p.SnapToken), nullString(p.PaymentURL),
		nullString(p.QRCodeURL), nullString(p.DeeplinkURL), nullString(p.VANumber),
		nullString(p.Bank), nullString(p.BillKey), nullString(p.BillerCode),
		p.ExpiryTime, nullRaw(p.RawResponse),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Payment, error) {
	query := `SELECT ` + Columns + ` FROM payments WHERE id = $1`
	return ScanPayment(r.db.QueryRowContext(ctx, query, id))
}

func (r *repository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Payment, error) {
	query := `SELECT ` + Columns + ` FROM payments WHERE gateway_order_id = $1`
	return ScanPayment(r.db.QueryRowContext(ctx, query, gatewayOrderID))
}

func (r *repository) GetLatestByOrder(ctx context.Context, orderID int64) (*Payment, error) {
	query := `SELECT ` + Columns + ` FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`
	return ScanPayment(r.db.QueryRowContext(ctx, query, orderID))
}

func (r *repository) ListByOrder(ctx context.Context, orderID int64) ([]*Payment, error) {
	query := `SELECT ` + Columns + ` FROM payments WHERE order_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := ScanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repository) SaveNotification(ctx context.Context, payload json.RawMessage) (int64, error) {
	query := `
		INSERT INTO payment_notifications (payload, status)
		VALUES ($1, $2)
		RETURNING id`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, []byte(payload), NotificationPending).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to save notification: %w", err)
	}
	return id, nil
}

func (r *repository) GetNotification(ctx context.Context, id int64) (*PaymentNotification, error) {
	query := `
		SELECT id, payment_id, payload, received_at, processed_at, status, COALESCE(note, '')
		FROM payment_notifications WHERE id = $1`

	n := &PaymentNotification{}
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.PaymentID, &payload, &n.ReceivedAt, &n.ProcessedAt, &n.Status, &n.Note,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	n.Payload = payload
	return n, nil
}

// HasProcessedNotification probes the stored payloads for an already
// processed delivery of the same (order, transaction_status) pair. The
// gateway retries webhooks; this keeps the retry a cheap 200.
func (r *repository) HasProcessedNotification(ctx context.Context, gatewayOrderID, transactionStatus string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payment_notifications
			WHERE payload->>'order_id' = $1
			  AND payload->>'transaction_status' = $2
			  AND status = $3
		)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, gatewayOrderID, transactionStatus, NotificationProcessed).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate notification: %w", err)
	}
	return exists, nil
}

func (r *repository) MarkNotificationFailed(ctx context.Context, id int64, note string) error {
	query := `
		UPDATE payment_notifications
		SET status = $2, note = $3, processed_at = now()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, NotificationFailed, note); err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

func (r *repository) FindExpiredPending(ctx context.Context, now time.Time) ([]*Payment, error) {
	query := `SELECT ` + Columns + `
		FROM payments
		WHERE status = $1 AND expiry_time IS NOT NULL AND expiry_time < $2`

	rows, err := r.db.QueryContext(ctx, query, gateway.StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := ScanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ExpirePaymentTx moves a timed-out payment and its order to their expired
// states in one transaction. The status = 'pending' predicates make the
// sweep a no-op when a webhook won the race in between; the returned bool
// reports whether the payment row actually moved, so callers do not count
// or announce expiries that never happened.
func (r *repository) ExpirePaymentTx(ctx context.Context, paymentID, orderID int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		paymentID, gateway.StatusExpire, gateway.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire payment: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to expire payment: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		orderID, "expired", "pending",
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return moved > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ScanPayment scans one payments row selected with Columns.
func ScanPayment(row rowScanner) (*Payment, error) {
	p := &Payment{}
	var (
		txnID, snapToken, paymentURL, qrCodeURL, deeplinkURL sql.NullString
		vaNumber, bank, billKey, billerCode                  sql.NullString
		raw                                                  []byte
	)

	err := row.Scan(
		&p.ID, &p.OrderID, &p.Method, &p.GatewayOrderID, &txnID,
		&p.Amount, &p.Status, &snapToken, &paymentURL, &qrCodeURL, &deeplinkURL,
		&vaNumber, &bank, &billKey, &billerCode, &p.ExpiryTime, &raw,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	p.GatewayTransactionID = txnID.String
	p.SnapToken = snapToken.String
	p.PaymentURL = paymentURL.String
	p.QRCodeURL = qrCodeURL.String
	p.DeeplinkURL = deeplinkURL.String
	p.VANumber = vaNumber.String
	p.Bank = bank.String
	p.BillKey = billKey.String
	p.BillerCode = billerCode.String
	p.RawResponse = raw
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

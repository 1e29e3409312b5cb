package payment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tokopaya-be/internal/gateway"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "order_id", "method", "gateway_order_id", "gateway_transaction_id",
		"amount", "status", "snap_token", "payment_url", "qr_code_url", "deeplink_url",
		"va_number", "bank", "bill_key", "biller_code", "expiry_time", "raw_response",
		"created_at", "updated_at",
	})
}

func TestRepository_SavePayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)
	now := time.Now()

	p := &Payment{
		OrderID:        42,
		Method:         gateway.MethodVirtualAccount,
		GatewayOrderID: "ORDER-42-1700000000",
		Amount:         270,
		Status:         gateway.StatusPending,
		VANumber:       "8808123456",
		Bank:           "bca",
		RawResponse:    json.RawMessage(`{"va_numbers":[{"bank":"bca"}]}`),
	}

	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(5, now, now))

	require.NoError(t, repo.SavePayment(context.Background(), p))
	assert.Equal(t, int64(5), p.ID)
}

func TestRepository_GetByGatewayOrderID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM payments WHERE gateway_order_id = \$1`).
			WithArgs("ORDER-42-1700000000").
			WillReturnRows(paymentRows(now).AddRow(
				5, 42, "virtual_account", "ORDER-42-1700000000", "txn-1",
				270, "pending", nil, nil, nil, nil,
				"8808123456", "bca", nil, nil, nil, []byte(`{}`),
				now, now,
			))

		p, err := repo.GetByGatewayOrderID(context.Background(), "ORDER-42-1700000000")
		require.NoError(t, err)
		assert.Equal(t, int64(42), p.OrderID)
		assert.Equal(t, "8808123456", p.VANumber)
		assert.Equal(t, gateway.StatusPending, p.Status)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM payments WHERE gateway_order_id = \$1`).
			WithArgs("ORDER-99-1").
			WillReturnRows(paymentRows(now))

		_, err := repo.GetByGatewayOrderID(context.Background(), "ORDER-99-1")
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})
}

func TestRepository_HasProcessedNotification(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	t.Run("Duplicate", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("ORDER-42-1700000000", "settlement", NotificationProcessed).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		dup, err := repo.HasProcessedNotification(context.Background(), "ORDER-42-1700000000", "settlement")
		require.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("SameOrderDifferentStatus", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("ORDER-42-1700000000", "expire", NotificationProcessed).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		dup, err := repo.HasProcessedNotification(context.Background(), "ORDER-42-1700000000", "expire")
		require.NoError(t, err)
		assert.False(t, dup)
	})
}

func TestRepository_SaveNotification(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	payload := json.RawMessage(`{"order_id":"ORDER-42-1700000000","transaction_status":"settlement"}`)
	mock.ExpectQuery(`INSERT INTO payment_notifications`).
		WithArgs([]byte(payload), NotificationPending).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	id, err := repo.SaveNotification(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
}

func TestRepository_MarkNotificationFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectExec(`UPDATE payment_notifications`).
		WithArgs(int64(11), NotificationFailed, "Payment not found").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkNotificationFailed(context.Background(), 11, "Payment not found"))
}

func TestRepository_FindExpiredPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)
	now := time.Now()
	past := now.Add(-time.Hour)

	mock.ExpectQuery(`SELECT (.+) FROM payments`).
		WithArgs(gateway.StatusPending, now).
		WillReturnRows(paymentRows(now).AddRow(
			5, 42, "qris", "QRIS-42-1700000000", nil,
			270, "pending", nil, nil, "https://qr", nil,
			nil, nil, nil, nil, past, []byte(`{}`),
			past, past,
		))

	payments, err := repo.FindExpiredPending(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(5), payments[0].ID)
}

func TestRepository_ExpirePaymentTx(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payments SET status = \$2`).
			WithArgs(int64(5), gateway.StatusExpire, gateway.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE orders SET status = \$2`).
			WithArgs(int64(42), "expired", "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		moved, err := repo.ExpirePaymentTx(context.Background(), 5, 42)
		require.NoError(t, err)
		assert.True(t, moved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WebhookWonRace_CommitsButReportsNoMove", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payments SET status = \$2`).
			WithArgs(int64(5), gateway.StatusExpire, gateway.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`UPDATE orders SET status = \$2`).
			WithArgs(int64(42), "expired", "pending").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		moved, err := repo.ExpirePaymentTx(context.Background(), 5, 42)
		require.NoError(t, err)
		assert.False(t, moved)
	})
}

func TestParseNotificationPayload(t *testing.T) {
	raw := []byte(`{"order_id":"ORDER-42-1700000000","status_code":"200","gross_amount":"270.00","transaction_status":"capture","fraud_status":"accept","signature_key":"abc"}`)

	p, err := ParseNotificationPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, "ORDER-42-1700000000", p.OrderID)
	assert.Equal(t, "capture", p.TransactionStatus)
	assert.Equal(t, "accept", p.FraudStatus)
	assert.JSONEq(t, string(raw), string(p.Raw))

	_, err = ParseNotificationPayload([]byte(`not json`))
	assert.Error(t, err)
}

package payment

import (
	"encoding/json"
	"time"

	"tokopaya-be/internal/gateway"
)

// Payment rows are never deleted; they are the audit trail of every charge
// attempt. One active payment per order by convention, retries allowed.
type Payment struct {
	ID      int64
	OrderID int64
	Method  gateway.Method

	GatewayOrderID       string
	GatewayTransactionID string

	Amount int64
	Status gateway.PaymentStatus

	// Method-specific completion fields; only the block matching Method
	// is populated.
	SnapToken   string
	PaymentURL  string
	QRCodeURL   string
	DeeplinkURL string
	VANumber    string
	Bank        string
	BillKey     string
	BillerCode  string

	ExpiryTime  *time.Time
	RawResponse json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationProcessed NotificationStatus = "processed"
	NotificationFailed    NotificationStatus = "failed"
)

// PaymentNotification stores every verified webhook delivery. The payload
// is immutable once written; status/processed_at/note are written by the
// reconciliation worker.
type PaymentNotification struct {
	ID          int64
	PaymentID   *int64
	Payload     json.RawMessage
	ReceivedAt  time.Time
	ProcessedAt *time.Time
	Status      NotificationStatus
	Note        string
}

// NotificationPayload is the typed envelope over the gateway's webhook
// body: the named fields the system acts on, plus the verbatim raw bytes
// preserved for audit and history.
type NotificationPayload struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`

	Raw json.RawMessage `json:"-"`
}

func ParseNotificationPayload(raw []byte) (*NotificationPayload, error) {
	var p NotificationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	p.Raw = append(json.RawMessage(nil), raw...)
	return &p, nil
}
